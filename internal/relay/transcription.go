package relay

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/talkeasy/voice-pipeline/internal/observability"
	"github.com/talkeasy/voice-pipeline/internal/orchestrator"
	"github.com/talkeasy/voice-pipeline/internal/protocol"
	"github.com/talkeasy/voice-pipeline/internal/session"
	"github.com/talkeasy/voice-pipeline/internal/stt"
)

// transcriptRelay consumes transcriber events for one session and turns
// them into wire events. Partials replace each other; final segments
// accumulate; the turn boundary is reported at most once per turn.
type transcriptRelay struct {
	sess    *session.Session
	send    orchestrator.Sender
	orch    *orchestrator.Orchestrator
	metrics *observability.Metrics
	logger  zerolog.Logger

	mu               sync.Mutex
	finals           []string
	lastFinal        string
	boundaryReported bool
	boundaryTimer    *time.Timer
}

func newTranscriptRelay(sess *session.Session, send orchestrator.Sender, orch *orchestrator.Orchestrator, metrics *observability.Metrics, logger zerolog.Logger) *transcriptRelay {
	return &transcriptRelay{
		sess:    sess,
		send:    send,
		orch:    orch,
		metrics: metrics,
		logger:  logger.With().Str("component", "transcript_relay").Logger(),
	}
}

// beginTurn clears the accumulated transcript state for a fresh turn.
func (r *transcriptRelay) beginTurn() {
	r.mu.Lock()
	r.finals = nil
	r.lastFinal = ""
	r.boundaryReported = false
	if r.boundaryTimer != nil {
		r.boundaryTimer.Stop()
		r.boundaryTimer = nil
	}
	r.mu.Unlock()
}

// armBoundaryTimeout bounds the wait for the transcriber's terminal event
// once capture has closed. A transcriber that goes silent fails the turn
// with a transcription error instead of leaving the session hanging.
func (r *transcriptRelay) armBoundaryTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.boundaryReported {
		return
	}
	if r.boundaryTimer != nil {
		r.boundaryTimer.Stop()
	}
	r.boundaryTimer = time.AfterFunc(d, r.onBoundaryTimeout)
}

func (r *transcriptRelay) onBoundaryTimeout() {
	r.mu.Lock()
	if r.boundaryReported {
		r.mu.Unlock()
		return
	}
	r.boundaryReported = true
	r.mu.Unlock()

	if r.sess.Turn.State() != session.StateAwaitingFinalTranscript {
		return
	}
	r.logger.Warn().Msg("Transcriber produced no terminal event before timeout")
	if err := r.send.Send(protocol.NewStageError(protocol.StageTranscription, "no transcript received before timeout")); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to send transcription error")
	}
	r.sess.Turn.Fail()
	r.metrics.RecordTurnEnd("error")
}

// consume processes transcriber events until the channel closes or ctx is
// cancelled. Runs on its own goroutine; never blocks the read loop.
func (r *transcriptRelay) consume(ctx context.Context, events <-chan stt.TranscriptEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case stt.EventPartial:
				r.onPartial(ev.Text)
			case stt.EventFinal:
				r.onFinal(ev.Text)
			case stt.EventUtteranceEnd:
				r.onBoundary(ctx)
			case stt.EventSpeechStarted:
				r.logger.Debug().Msg("Speech started")
			}
		}
	}
}

// onPartial forwards an interim hypothesis. Each partial fully replaces the
// previous one on the client; nothing is accumulated here.
func (r *transcriptRelay) onPartial(text string) {
	if r.sess.Turn.State() != session.StateCapturing {
		return
	}
	if err := r.send.Send(protocol.NewPartialTranscript(text)); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to send partial transcript")
	}
}

// onFinal records a finalized segment. Deepgram occasionally re-delivers
// the last final after the utterance ends; identical consecutive segments
// are dropped.
func (r *transcriptRelay) onFinal(text string) {
	state := r.sess.Turn.State()
	if state != session.StateCapturing && state != session.StateAwaitingFinalTranscript {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if text == r.lastFinal {
		return
	}
	r.finals = append(r.finals, text)
	r.lastFinal = text
}

// onBoundary handles the end of the utterance. Idempotent: whichever signal
// arrives first (utterance-end event or a stopped stream flush) reports the
// boundary; later signals are no-ops.
func (r *transcriptRelay) onBoundary(ctx context.Context) {
	r.mu.Lock()
	if r.boundaryReported {
		r.mu.Unlock()
		return
	}
	r.boundaryReported = true
	if r.boundaryTimer != nil {
		r.boundaryTimer.Stop()
		r.boundaryTimer = nil
	}
	utterance := strings.TrimSpace(strings.Join(r.finals, " "))
	r.mu.Unlock()

	// The client may not have sent stop_streaming yet when the utterance
	// ends on its own.
	if r.sess.Turn.State() == session.StateCapturing {
		if err := r.sess.Turn.Advance(session.StateAwaitingFinalTranscript); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to close capture phase")
		}
	}
	if r.sess.Turn.State() != session.StateAwaitingFinalTranscript {
		r.logger.Debug().Str("state", r.sess.Turn.State().String()).Msg("Stale turn boundary, ignoring")
		return
	}

	if utterance == "" {
		// No speech is a normal outcome, not an error.
		if err := r.send.Send(protocol.NewTurnEnd(nil)); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to send turn end")
		}
		if err := r.sess.Turn.Advance(session.StateIdle); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to reset turn")
			r.sess.Turn.Fail()
		}
		r.metrics.RecordTurnEnd("no_speech")
		r.logger.Info().Msg("Turn ended without speech")
		return
	}

	if err := r.send.Send(protocol.NewFinalTranscript(utterance)); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to send final transcript")
	}
	if err := r.send.Send(protocol.NewTurnEnd(&utterance)); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to send turn end")
	}

	r.logger.Info().Str("utterance", utterance).Msg("Turn boundary reached")
	go r.orch.RunTurn(ctx, r.sess, utterance, r.send)
}
