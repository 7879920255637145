package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/talkeasy/voice-pipeline/internal/config"
	"github.com/talkeasy/voice-pipeline/internal/resilience"
)

const (
	murfEndpoint = "wss://api.murf.ai/v1/speech/stream-input"

	// A static context avoids Murf's active-context limit when turns
	// follow each other quickly.
	murfContextID = "voice_pipeline_context_static"

	chunkTimeout = 30 * time.Second
)

// MurfSynthesizer implements Synthesizer over Murf's streaming WebSocket
// API. One instance serves one session; synthesis requests are serialized.
type MurfSynthesizer struct {
	config   *config.Config
	logger   zerolog.Logger
	endpoint string

	mu          sync.Mutex
	conn        *websocket.Conn
	isConnected bool
	isActive    bool
}

// voiceConfigMessage is the first message on a fresh connection.
type voiceConfigMessage struct {
	VoiceConfig voiceConfig `json:"voice_config"`
	ContextID   string      `json:"context_id"`
}

type voiceConfig struct {
	VoiceID   string `json:"voiceId"`
	Style     string `json:"style"`
	Rate      int    `json:"rate"`
	Pitch     int    `json:"pitch"`
	Variation int    `json:"variation"`
}

// textMessage submits text for synthesis. End closes the context so the
// final chunk is flagged promptly.
type textMessage struct {
	ContextID string `json:"context_id"`
	Text      string `json:"text"`
	End       bool   `json:"end"`
}

type clearMessage struct {
	ContextID string `json:"context_id"`
	Clear     bool   `json:"clear"`
}

// murfResponse is the server's frame shape. Audio is base64 WAV.
type murfResponse struct {
	Audio string `json:"audio"`
	Final bool   `json:"final"`
}

// NewMurfSynthesizer creates a Murf streaming synthesizer. The connection
// is established lazily on the first Synthesize call.
func NewMurfSynthesizer(cfg *config.Config, logger zerolog.Logger) *MurfSynthesizer {
	return &MurfSynthesizer{
		config:   cfg,
		logger:   logger.With().Str("component", "tts").Logger(),
		endpoint: murfEndpoint,
	}
}

// connect dials Murf and sends the voice configuration. Caller holds mu.
func (m *MurfSynthesizer) connect(ctx context.Context) error {
	if m.isConnected {
		return nil
	}

	q := url.Values{}
	q.Set("api-key", m.config.TTSAPIKey)
	q.Set("sample_rate", strconv.Itoa(m.config.TTSSampleRate))
	q.Set("channel_type", "MONO")
	q.Set("format", "WAV")

	attempts := m.config.RetryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	retryConfig := &resilience.RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Duration(m.config.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}

	// Dial failures are treated as transient; every attempt gets retried.
	var conn *websocket.Conn
	err := resilience.Retry(func() error {
		var dialErr error
		conn, _, dialErr = websocket.DefaultDialer.DialContext(ctx, m.endpoint+"?"+q.Encode(), nil)
		return dialErr
	}, retryConfig, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to Murf: %w", err)
	}
	m.conn = conn
	m.isConnected = true

	// Clear any stale context left over from a previous connection.
	if err := conn.WriteJSON(clearMessage{ContextID: murfContextID, Clear: true}); err != nil {
		m.teardown()
		return fmt.Errorf("failed to clear Murf context: %w", err)
	}

	cfgMsg := voiceConfigMessage{
		VoiceConfig: voiceConfig{
			VoiceID:   m.config.TTSVoiceID,
			Style:     "Conversational",
			Rate:      0,
			Pitch:     0,
			Variation: 1,
		},
		ContextID: murfContextID,
	}
	if err := conn.WriteJSON(cfgMsg); err != nil {
		m.teardown()
		return fmt.Errorf("failed to send voice config: %w", err)
	}

	m.logger.Info().Str("voice_id", m.config.TTSVoiceID).Msg("Connected to Murf")
	return nil
}

// teardown closes the connection. Caller holds mu.
func (m *MurfSynthesizer) teardown() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.isConnected = false
}

// Synthesize submits text and streams back base64 audio chunks.
func (m *MurfSynthesizer) Synthesize(ctx context.Context, text string) (<-chan AudioChunk, error) {
	m.mu.Lock()
	if m.isActive {
		m.mu.Unlock()
		return nil, fmt.Errorf("synthesizer is already active")
	}
	if err := m.connect(ctx); err != nil {
		m.mu.Unlock()
		return nil, err
	}

	msg := textMessage{ContextID: murfContextID, Text: text, End: true}
	if err := m.conn.WriteJSON(msg); err != nil {
		m.teardown()
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to send text to Murf: %w", err)
	}
	m.isActive = true
	conn := m.conn
	m.mu.Unlock()

	m.logger.Debug().Int("text_length", len(text)).Msg("Submitted text for synthesis")

	out := make(chan AudioChunk, 10)
	go m.listen(ctx, conn, out)
	return out, nil
}

// listen reads audio frames until the final chunk, an error, or ctx expiry.
func (m *MurfSynthesizer) listen(ctx context.Context, conn *websocket.Conn, out chan<- AudioChunk) {
	defer func() {
		close(out)
		m.mu.Lock()
		m.isActive = false
		m.mu.Unlock()
	}()

	chunkNumber := 0
	totalSize := 0
	for {
		select {
		case <-ctx.Done():
			// The consumer may already be gone; never block on delivery.
			select {
			case out <- AudioChunk{Err: ctx.Err()}:
			default:
			}
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(chunkTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			m.teardown()
			m.mu.Unlock()
			select {
			case out <- AudioChunk{Err: fmt.Errorf("failed to read from Murf: %w", err)}:
			case <-ctx.Done():
			}
			return
		}

		var resp murfResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			select {
			case out <- AudioChunk{Err: fmt.Errorf("malformed Murf response: %w", err)}:
			case <-ctx.Done():
			}
			return
		}
		if resp.Audio == "" {
			// Status frame (config acks and the like), not audio.
			continue
		}

		chunkNumber++
		totalSize += len(resp.Audio)
		select {
		case out <- AudioChunk{
			AudioBase64: resp.Audio,
			ChunkNumber: chunkNumber,
			ChunkSize:   len(resp.Audio),
			IsFinal:     resp.Final,
		}:
		case <-ctx.Done():
			return
		}

		if resp.Final {
			m.logger.Debug().
				Int("chunks", chunkNumber).
				Int("total_base64_bytes", totalSize).
				Msg("Synthesis complete")
			return
		}
	}
}

// Close tears down the Murf connection.
func (m *MurfSynthesizer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardown()
	return nil
}
