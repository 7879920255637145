// Package relay owns the per-session WebSocket connection: the handshake,
// the read loop that forwards audio frames to the transcriber, and the
// write path every pipeline stage shares.
package relay

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/talkeasy/voice-pipeline/internal/audio"
	"github.com/talkeasy/voice-pipeline/internal/config"
	"github.com/talkeasy/voice-pipeline/internal/history"
	"github.com/talkeasy/voice-pipeline/internal/llm"
	"github.com/talkeasy/voice-pipeline/internal/observability"
	"github.com/talkeasy/voice-pipeline/internal/orchestrator"
	"github.com/talkeasy/voice-pipeline/internal/persona"
	"github.com/talkeasy/voice-pipeline/internal/protocol"
	"github.com/talkeasy/voice-pipeline/internal/session"
	"github.com/talkeasy/voice-pipeline/internal/stt"
	"github.com/talkeasy/voice-pipeline/internal/tts"
	"github.com/talkeasy/voice-pipeline/internal/websearch"
)

const helloTimeout = 10 * time.Second

// TranscriberFactory builds a transcriber for a new connection.
type TranscriberFactory func(sessionID string) stt.Transcriber

// SynthesizerFactory builds a synthesizer for a new connection.
type SynthesizerFactory func(sessionID string) tts.Synthesizer

// Handler upgrades /ws/audio-stream requests and runs the session loop.
type Handler struct {
	config   *config.Config
	logger   zerolog.Logger
	registry *session.Registry

	histStore history.Store
	personas  persona.Store
	generator llm.Generator
	searcher  websearch.Searcher

	newTranscriber TranscriberFactory
	newSynthesizer SynthesizerFactory

	upgrader websocket.Upgrader
}

// NewHandler wires the relay with its collaborators.
func NewHandler(
	cfg *config.Config,
	logger zerolog.Logger,
	registry *session.Registry,
	histStore history.Store,
	personas persona.Store,
	generator llm.Generator,
	searcher websearch.Searcher,
	newTranscriber TranscriberFactory,
	newSynthesizer SynthesizerFactory,
) *Handler {
	return &Handler{
		config:         cfg,
		logger:         logger,
		registry:       registry,
		histStore:      histStore,
		personas:       personas,
		generator:      generator,
		searcher:       searcher,
		newTranscriber: newTranscriber,
		newSynthesizer: newSynthesizer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16384,
			WriteBufferSize: 16384,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs it until the client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	h.handleConnection(r.Context(), ws)
}

// wsSender serializes writes to the WebSocket. Every stage goroutine sends
// through it; gorilla connections allow only one concurrent writer.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSender) Send(ev protocol.Outbound) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Handler) handleConnection(ctx context.Context, ws *websocket.Conn) {
	defer ws.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sender := &wsSender{conn: ws}

	hello, err := h.awaitHello(ws)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Session handshake failed")
		_ = sender.Send(protocol.NewStageError(protocol.StageProtocol, "expected session_id message"))
		return
	}

	defaults := h.personas.Get(hello.SessionID)
	sess, resumed := h.registry.GetOrCreate(hello.SessionID, defaults.Persona, hello.WebSearch)
	logger := observability.SessionLogger(sess.ID)
	logger.Info().Bool("resumed", resumed).Msg("Session connected")

	metrics := observability.NewSessionMetrics(sess.ID)
	defer metrics.RecordSessionEnd()

	transcriber := h.newTranscriber(sess.ID)
	defer transcriber.Close()
	synth := h.newSynthesizer(sess.ID)
	defer synth.Close()

	vad := audio.NewVADDetector(&audio.VADConfig{
		EnergyThreshold: h.config.VADEnergyThreshold,
		VoicedFrames:    h.config.VADVoicedFrames,
		SilenceFrames:   h.config.VADSilenceFrames,
		FrameSize:       320,
	})

	orch := orchestrator.New(h.config, logger, h.histStore, h.personas, h.generator, synth, h.searcher, metrics)
	relay := newTranscriptRelay(sess, sender, orch, metrics, logger)
	go relay.consume(ctx, transcriber.Events())

	if err := sender.Send(protocol.NewAudioStreamReady(sess.ID, true)); err != nil {
		logger.Error().Err(err).Msg("Failed to acknowledge session")
		return
	}

	h.readLoop(ctx, ws, sess, sender, transcriber, relay, vad, metrics, logger)

	// A dangling turn dies with the connection; the session itself stays
	// registered so the client can resume.
	if sess.Turn.Fail() {
		metrics.RecordTurnEnd("error")
	}
	logger.Info().Msg("Session disconnected")
}

// awaitHello reads the client's first frame, which must carry the session
// ID.
func (h *Handler) awaitHello(ws *websocket.Conn) (protocol.SessionHello, error) {
	ws.SetReadDeadline(time.Now().Add(helloTimeout))
	defer ws.SetReadDeadline(time.Time{})

	messageType, data, err := ws.ReadMessage()
	if err != nil {
		return protocol.SessionHello{}, fmt.Errorf("failed to read handshake: %w", err)
	}
	msg, err := protocol.DecodeInbound(messageType, data)
	if err != nil {
		return protocol.SessionHello{}, err
	}
	hello, ok := msg.(protocol.SessionHello)
	if !ok {
		return protocol.SessionHello{}, fmt.Errorf("first frame was %T, want session hello", msg)
	}
	if hello.SessionID == "" {
		return protocol.SessionHello{}, fmt.Errorf("empty session_id")
	}
	return hello, nil
}

// readLoop decodes inbound frames exactly once and dispatches them. It
// never blocks on turn processing; the orchestrator runs on its own
// goroutines.
func (h *Handler) readLoop(
	ctx context.Context,
	ws *websocket.Conn,
	sess *session.Session,
	sender *wsSender,
	transcriber stt.Transcriber,
	relay *transcriptRelay,
	vad *audio.VADDetector,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) {
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("Connection closed unexpectedly")
			}
			return
		}
		sess.Touch()

		msg, err := protocol.DecodeInbound(messageType, data)
		if err != nil {
			logger.Warn().Err(err).Msg("Undecodable frame")
			_ = sender.Send(protocol.NewStageError(protocol.StageProtocol, err.Error()))
			continue
		}

		switch m := msg.(type) {
		case protocol.AudioFrame:
			h.onAudioFrame(m, sess, transcriber, vad, metrics, logger)

		case protocol.StartStreaming:
			vad.Reset()
			h.onStartStreaming(ctx, sess, sender, transcriber, relay, logger)

		case protocol.StopStreaming:
			h.onStopStreaming(sess, transcriber, relay, logger)

		case protocol.WebSearchToggle:
			sess.SetWebSearchEnabled(m.Enabled)
			logger.Info().Bool("enabled", m.Enabled).Msg("Web search toggled")

		case protocol.SessionHello:
			// Repeated hello is harmless; ignore it.

		default:
			_ = sender.Send(protocol.NewStageError(protocol.StageProtocol, fmt.Sprintf("unexpected message %T", m)))
		}
	}
}

// onAudioFrame forwards captured PCM to the transcriber while a capture
// phase is open. Frames outside a turn are dropped silently; the client
// keeps its device running between turns.
func (h *Handler) onAudioFrame(frame protocol.AudioFrame, sess *session.Session, transcriber stt.Transcriber, vad *audio.VADDetector, metrics *observability.Metrics, logger zerolog.Logger) {
	if sess.Turn.State() != session.StateCapturing {
		return
	}
	metrics.RecordAudioBytes("in", int64(len(frame.PCM)))

	// Local endpointing runs alongside the transcriber's, for visibility
	// into captures that never produce a transcript.
	if samples, err := audio.BytesToSamples(frame.PCM); err == nil {
		_, started, ended := vad.ProcessFrame(samples)
		if started {
			logger.Debug().Msg("Voice activity started")
		}
		if ended {
			logger.Debug().Msg("Voice activity ended")
		}
	}

	if err := transcriber.SendAudio(frame.PCM); err != nil {
		logger.Warn().Err(err).Msg("Failed to forward audio frame")
		metrics.RecordError("send_audio_failed", "stt")
	}
}

// onStartStreaming opens a capture turn. A start while a turn is in flight
// is a protocol error and leaves the machine untouched.
func (h *Handler) onStartStreaming(ctx context.Context, sess *session.Session, sender *wsSender, transcriber stt.Transcriber, relay *transcriptRelay, logger zerolog.Logger) {
	turnID, err := sess.Turn.Begin()
	if err != nil {
		logger.Warn().Str("state", sess.Turn.State().String()).Msg("start_streaming while turn in flight")
		_ = sender.Send(protocol.NewStageError(protocol.StageProtocol,
			fmt.Sprintf("cannot start streaming in state %s", sess.Turn.State())))
		return
	}

	relay.beginTurn()
	if err := transcriber.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to start transcriber")
		_ = sender.Send(protocol.NewStageError(protocol.StageTranscription, "transcription unavailable"))
		sess.Turn.Fail()
		return
	}
	logger.Info().Str("turn_id", turnID).Msg("Capture turn started")
}

// onStopStreaming closes the capture phase and flushes the transcriber so
// the final transcript and turn boundary arrive promptly. The wait for the
// terminal event is bounded; a silent transcriber fails the turn.
func (h *Handler) onStopStreaming(sess *session.Session, transcriber stt.Transcriber, relay *transcriptRelay, logger zerolog.Logger) {
	if sess.Turn.State() != session.StateCapturing {
		logger.Debug().Str("state", sess.Turn.State().String()).Msg("stop_streaming outside capture, ignoring")
		return
	}
	if err := sess.Turn.Advance(session.StateAwaitingFinalTranscript); err != nil {
		logger.Warn().Err(err).Msg("Failed to close capture phase")
		return
	}
	relay.armBoundaryTimeout(time.Duration(h.config.TranscriberTimeout) * time.Second)
	if err := transcriber.Stop(); err != nil {
		logger.Warn().Err(err).Msg("Failed to flush transcriber")
	}
	logger.Info().Msg("Capture stopped, awaiting final transcript")
}
