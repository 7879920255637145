// Package stt defines the streaming transcriber collaborator and its
// Deepgram implementation.
package stt

import "context"

// EventKind classifies a transcript event.
type EventKind int

const (
	// EventPartial is an interim hypothesis; it replaces any previous
	// partial for the utterance in progress.
	EventPartial EventKind = iota

	// EventFinal is a finalized transcript segment.
	EventFinal

	// EventUtteranceEnd marks the end of the speaker's utterance. Text is
	// empty; the turn boundary is derived from this event.
	EventUtteranceEnd

	// EventSpeechStarted fires when voice activity begins.
	EventSpeechStarted
)

func (k EventKind) String() string {
	switch k {
	case EventPartial:
		return "partial"
	case EventFinal:
		return "final"
	case EventUtteranceEnd:
		return "utterance_end"
	case EventSpeechStarted:
		return "speech_started"
	default:
		return "unknown"
	}
}

// TranscriptEvent is one event from the transcriber stream.
type TranscriptEvent struct {
	Kind       EventKind
	Text       string
	Confidence float64
}

// Transcriber is the streaming STT collaborator. One instance serves one
// session; audio flows in through SendAudio and events come back on Events.
type Transcriber interface {
	// Start opens the streaming session. Safe to call again after a Stop.
	Start(ctx context.Context) error

	// SendAudio forwards one frame of 16 kHz mono s16le PCM.
	SendAudio(pcm []byte) error

	// Events returns the channel transcript events are delivered on. The
	// channel is closed by Close.
	Events() <-chan TranscriptEvent

	// Stop flushes and ends the streaming session.
	Stop() error

	// Close releases the transcriber. The instance is unusable afterwards.
	Close() error
}
