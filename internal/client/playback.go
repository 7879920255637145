package client

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/talkeasy/voice-pipeline/internal/audio"
	"github.com/talkeasy/voice-pipeline/internal/protocol"
)

// Clock abstracts time for the scheduler so tests can drive it
// deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Sink receives scheduled PCM in playback order. The device layer drains it
// contiguously, so back-to-back enqueues play gaplessly.
type Sink interface {
	Enqueue(pcm []byte) error
}

// SchedulerConfig tunes the playback scheduler.
type SchedulerConfig struct {
	// SampleRate of the synthesized audio, in Hz.
	SampleRate int

	// LookAhead is the buffered duration required before playback starts.
	LookAhead time.Duration

	// Padding is the minimum margin between scheduling and playback when
	// the playhead has fallen behind the clock.
	Padding time.Duration

	// StartBuffers starts playback early once this many chunks are queued,
	// even if LookAhead is not yet covered.
	StartBuffers int
}

// DefaultSchedulerConfig matches the server's synthesis output.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		SampleRate:   44100,
		LookAhead:    150 * time.Millisecond,
		Padding:      20 * time.Millisecond,
		StartBuffers: 2,
	}
}

// PlaybackScheduler turns the per-turn stream of base64 audio chunks into
// gapless scheduled playback. Chunks are scheduled at the later of the
// playhead and now+padding, so consecutive chunks abut exactly and a late
// chunk restarts cleanly instead of overlapping.
type PlaybackScheduler struct {
	clock  Clock
	sink   Sink
	config SchedulerConfig
	logger zerolog.Logger

	mu            sync.Mutex
	playhead      time.Time
	started       bool
	headerPending bool
	queued        [][]byte
	queuedDur     time.Duration
}

// NewPlaybackScheduler creates a scheduler in the reset state: playhead
// unset and the WAV header skip armed for the first chunk of the turn.
func NewPlaybackScheduler(clock Clock, sink Sink, config SchedulerConfig, logger zerolog.Logger) *PlaybackScheduler {
	if config.SampleRate <= 0 {
		config = DefaultSchedulerConfig()
	}
	return &PlaybackScheduler{
		clock:         clock,
		sink:          sink,
		config:        config,
		logger:        logger.With().Str("component", "playback").Logger(),
		headerPending: true,
	}
}

// OnChunk ingests one audio chunk from the wire. The final chunk flushes
// anything still held by the start hysteresis and resets the scheduler for
// the next turn.
func (s *PlaybackScheduler) OnChunk(chunk protocol.TTSAudioChunk) error {
	pcm, err := base64.StdEncoding.DecodeString(chunk.AudioBase64)
	if err != nil {
		return fmt.Errorf("failed to decode audio chunk %d: %w", chunk.ChunkNumber, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The first chunk of each turn carries a WAV header; the skip is armed
	// exactly once per turn so a header-sized payload later in the stream
	// is not mistaken for one.
	if s.headerPending {
		pcm = audio.TrimWAVHeader(pcm)
		s.headerPending = false
	}
	if len(pcm) == 0 {
		if chunk.IsFinal {
			s.resetLocked()
		}
		return nil
	}

	duration := s.pcmDuration(len(pcm))
	at := s.playhead
	if earliest := s.clock.Now().Add(s.config.Padding); at.Before(earliest) {
		at = earliest
	}
	s.playhead = at.Add(duration)

	if !s.started {
		s.queued = append(s.queued, pcm)
		s.queuedDur += duration
		if s.queuedDur >= s.config.LookAhead || len(s.queued) >= s.config.StartBuffers || chunk.IsFinal {
			if err := s.flushLocked(); err != nil {
				return err
			}
			s.started = true
		}
	} else if err := s.sink.Enqueue(pcm); err != nil {
		return err
	}

	if chunk.IsFinal {
		s.logger.Debug().Int("chunks", chunk.ChunkNumber).Msg("Final audio chunk scheduled")
		s.resetLocked()
	}
	return nil
}

// Reset abandons the turn in progress, for interruption handling.
func (s *PlaybackScheduler) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
}

// Playhead returns the time up to which audio has been scheduled. Zero when
// nothing is scheduled.
func (s *PlaybackScheduler) Playhead() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playhead
}

func (s *PlaybackScheduler) flushLocked() error {
	for _, pcm := range s.queued {
		if err := s.sink.Enqueue(pcm); err != nil {
			return err
		}
	}
	s.queued = nil
	s.queuedDur = 0
	return nil
}

// resetLocked re-arms the scheduler for the next turn. Queued audio that
// never met the hysteresis is flushed rather than dropped.
func (s *PlaybackScheduler) resetLocked() {
	if len(s.queued) > 0 {
		if err := s.flushLocked(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to flush queued audio on reset")
			s.queued = nil
			s.queuedDur = 0
		}
	}
	s.playhead = time.Time{}
	s.started = false
	s.headerPending = true
}

func (s *PlaybackScheduler) pcmDuration(bytes int) time.Duration {
	samples := bytes / 2
	return time.Duration(samples) * time.Second / time.Duration(s.config.SampleRate)
}
