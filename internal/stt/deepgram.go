package stt

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/talkeasy/voice-pipeline/internal/audio"
	"github.com/talkeasy/voice-pipeline/internal/config"
	"github.com/talkeasy/voice-pipeline/internal/observability"
	"github.com/talkeasy/voice-pipeline/internal/resilience"
)

const utteranceEndMs = 1000

// messageCallbackHandler implements the SDK's LiveMessageCallback interface.
// It embeds the default handler and overrides only the methods we route to
// the event channel.
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	onMessage      func(*msginterfaces.MessageResponse)
	onUtteranceEnd func()
	onSpeechStart  func()
	onError        func(*msginterfaces.ErrorResponse) error
}

func (m *messageCallbackHandler) Message(msg *msginterfaces.MessageResponse) error {
	m.onMessage(msg)
	return nil
}

func (m *messageCallbackHandler) UtteranceEnd(_ *msginterfaces.UtteranceEndResponse) error {
	m.onUtteranceEnd()
	return nil
}

func (m *messageCallbackHandler) SpeechStarted(_ *msginterfaces.SpeechStartedResponse) error {
	m.onSpeechStart()
	return nil
}

func (m *messageCallbackHandler) Error(errResp *msginterfaces.ErrorResponse) error {
	if m.onError != nil {
		return m.onError(errResp)
	}
	return m.DefaultCallbackHandler.Error(errResp)
}

// DeepgramTranscriber implements Transcriber using Deepgram's streaming API.
type DeepgramTranscriber struct {
	config  *config.Config
	logger  zerolog.Logger
	metrics *observability.Metrics
	breaker *resilience.CircuitBreaker

	events chan TranscriptEvent

	mu       sync.RWMutex
	client   *listenClient.WSCallback
	isActive bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewDeepgramTranscriber creates a streaming transcriber for one session.
func NewDeepgramTranscriber(cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) *DeepgramTranscriber {
	return &DeepgramTranscriber{
		config:  cfg,
		logger:  logger.With().Str("component", "stt").Logger(),
		metrics: metrics,
		breaker: resilience.NewCircuitBreaker(
			"deepgram",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
		events: make(chan TranscriptEvent, 100),
	}
}

// Start opens the Deepgram streaming session.
func (d *DeepgramTranscriber) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isActive {
		return fmt.Errorf("transcriber is already active")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.config.DeepgramModel,
		Language:       d.config.DeepgramLanguage,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: strconv.Itoa(utteranceEndMs),
		VadEvents:      true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     audio.SampleRate,
	}

	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		onMessage:              d.handleMessage,
		onUtteranceEnd: func() {
			d.emit(TranscriptEvent{Kind: EventUtteranceEnd})
		},
		onSpeechStart: func() {
			d.emit(TranscriptEvent{Kind: EventSpeechStarted})
		},
		onError: d.handleError,
	}

	client, err := listenClient.NewWSUsingCallback(
		d.ctx,
		d.config.DeepgramAPIKey,
		nil,
		tOptions,
		callback,
	)
	if err != nil {
		d.breaker.RecordResult(false)
		observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.GetState()))
		return fmt.Errorf("failed to create Deepgram client: %w", err)
	}

	d.client = client
	d.isActive = true

	d.breaker.RecordResult(true)
	observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.GetState()))

	d.logger.Info().
		Str("model", d.config.DeepgramModel).
		Str("language", d.config.DeepgramLanguage).
		Msg("Deepgram streaming session started")
	return nil
}

func (d *DeepgramTranscriber) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return
	}

	alt := msg.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return
	}

	kind := EventPartial
	if msg.IsFinal {
		kind = EventFinal
	}
	d.emit(TranscriptEvent{
		Kind:       kind,
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
	})
}

func (d *DeepgramTranscriber) handleError(errResp *msginterfaces.ErrorResponse) error {
	d.logger.Error().Interface("deepgram_error", errResp).Msg("Deepgram stream error")

	d.breaker.RecordResult(false)
	observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.GetState()))
	observability.IncrementCircuitBreakerFailures("deepgram")
	if d.metrics != nil {
		d.metrics.RecordError("stream_error", "stt")
	}

	select {
	case <-d.ctx.Done():
		return nil
	default:
		d.mu.Lock()
		d.isActive = false
		d.mu.Unlock()
		go d.attemptReconnect()
	}
	return nil
}

// emit delivers an event without blocking the SDK's callback goroutine.
func (d *DeepgramTranscriber) emit(ev TranscriptEvent) {
	select {
	case d.events <- ev:
	default:
		d.logger.Warn().Str("kind", ev.Kind.String()).Msg("Transcript channel full, dropping event")
	}
}

// SendAudio forwards one PCM frame to Deepgram through the circuit breaker.
func (d *DeepgramTranscriber) SendAudio(pcm []byte) error {
	err := d.breaker.Call(func() error {
		d.mu.RLock()
		active := d.isActive
		client := d.client
		d.mu.RUnlock()

		if !active || client == nil {
			return fmt.Errorf("transcriber is not active")
		}

		if _, err := client.Write(pcm); err != nil {
			go d.attemptReconnect()
			return fmt.Errorf("failed to send audio to Deepgram: %w", err)
		}
		return nil
	})

	observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("deepgram")
	}
	return err
}

func (d *DeepgramTranscriber) attemptReconnect() {
	select {
	case <-d.ctx.Done():
		return
	default:
	}

	d.mu.RLock()
	alreadyActive := d.isActive
	d.mu.RUnlock()
	if alreadyActive {
		return
	}

	reconnectConfig := &resilience.ReconnectConfig{
		MaxAttempts: d.config.ReconnectMaxAttempts,
		Backoff:     time.Duration(d.config.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}

	err := resilience.Reconnect(d.ctx, func() error {
		return d.Start(d.ctx)
	}, reconnectConfig)
	if err != nil {
		d.logger.Error().Err(err).Msg("Failed to reconnect Deepgram session")
		return
	}
	d.logger.Info().Msg("Deepgram session reconnected")
}

// Events returns the transcript event channel.
func (d *DeepgramTranscriber) Events() <-chan TranscriptEvent {
	return d.events
}

// Stop flushes and ends the streaming session.
func (d *DeepgramTranscriber) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isActive {
		return nil
	}

	d.client.Finish()
	d.isActive = false
	d.logger.Info().Msg("Deepgram streaming session stopped")
	return nil
}

// Close releases the transcriber and closes the event channel.
func (d *DeepgramTranscriber) Close() error {
	if d.cancel != nil {
		d.cancel()
	}
	if err := d.Stop(); err != nil {
		return err
	}

	// Allow in-flight callback deliveries to drain before closing.
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(d.events)
	}()
	return nil
}

// IsActive reports whether the streaming session is open.
func (d *DeepgramTranscriber) IsActive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isActive
}
