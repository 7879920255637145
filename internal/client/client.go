package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/talkeasy/voice-pipeline/internal/protocol"
)

// Handlers receives decoded server events. Nil fields are skipped. All
// handlers run on the read-loop goroutine; keep them fast.
type Handlers struct {
	OnReady       func(protocol.AudioStreamReady)
	OnPartial     func(text string)
	OnFinal       func(text string)
	OnTurnEnd     func(finalTranscript *string)
	OnLLMStart    func(userMessage string)
	OnLLMChunk    func(chunk string)
	OnLLMComplete func(response string)
	OnStageError  func(eventType, message string)
}

// Conn is one client session: a WebSocket connection plus the playback
// scheduler that consumes its audio events.
type Conn struct {
	ws        *websocket.Conn
	scheduler *PlaybackScheduler
	handlers  Handlers
	logger    zerolog.Logger

	writeMu sync.Mutex
	done    chan struct{}
	readErr error
}

// Dial connects to the server, sends the session hello, and waits for the
// ready acknowledgment before returning.
func Dial(ctx context.Context, url, sessionID string, webSearch bool, scheduler *PlaybackScheduler, handlers Handlers, logger zerolog.Logger) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	c := &Conn{
		ws:        ws,
		scheduler: scheduler,
		handlers:  handlers,
		logger:    logger.With().Str("component", "client").Str("session_id", sessionID).Logger(),
		done:      make(chan struct{}),
	}

	hello := struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
		WebSearch bool   `json:"web_search"`
	}{Type: "session_id", SessionID: sessionID, WebSearch: webSearch}
	if err := c.writeJSON(hello); err != nil {
		ws.Close()
		return nil, fmt.Errorf("failed to send session hello: %w", err)
	}

	// The ready ack is the first event; read it synchronously so callers
	// know the session is live.
	messageType, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("failed to read ready ack: %w", err)
	}
	if messageType != websocket.TextMessage {
		ws.Close()
		return nil, fmt.Errorf("unexpected frame type %d before ready ack", messageType)
	}
	ev, err := protocol.DecodeOutbound(data)
	if err != nil {
		ws.Close()
		return nil, err
	}
	ready, ok := ev.(protocol.AudioStreamReady)
	if !ok {
		ws.Close()
		return nil, fmt.Errorf("expected audio_stream_ready, got %T", ev)
	}
	if handlers.OnReady != nil {
		handlers.OnReady(ready)
	}

	go c.readLoop()
	return c, nil
}

// StartStreaming opens a capture turn on the server.
func (c *Conn) StartStreaming() error {
	return c.writeText([]byte("start_streaming"))
}

// StopStreaming closes the capture phase.
func (c *Conn) StopStreaming() error {
	return c.writeText([]byte("stop_streaming"))
}

// SendFrame ships one frame of s16le PCM as a binary message.
func (c *Conn) SendFrame(pcm []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, pcm)
}

// ToggleWebSearch flips search augmentation mid-session.
func (c *Conn) ToggleWebSearch(enabled bool) error {
	return c.writeJSON(struct {
		Type    string `json:"type"`
		Enabled bool   `json:"enabled"`
	}{Type: "web_search_toggle", Enabled: enabled})
}

// Done is closed when the read loop exits.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the read loop exited, nil for a clean close.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.readErr
	default:
		return nil
	}
}

// Close tears the connection down.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *Conn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.writeText(data)
}

func (c *Conn) writeText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// readLoop decodes server events and dispatches them until the connection
// closes.
func (c *Conn) readLoop() {
	defer close(c.done)

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.readErr = err
				c.logger.Warn().Err(err).Msg("Connection lost")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		ev, err := protocol.DecodeOutbound(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Undecodable server event")
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Conn) dispatch(ev protocol.Outbound) {
	switch e := ev.(type) {
	case protocol.PartialTranscript:
		if c.handlers.OnPartial != nil {
			c.handlers.OnPartial(e.Text)
		}
	case protocol.FinalTranscript:
		if c.handlers.OnFinal != nil {
			c.handlers.OnFinal(e.Text)
		}
	case protocol.TurnEnd:
		if c.handlers.OnTurnEnd != nil {
			c.handlers.OnTurnEnd(e.FinalTranscript)
		}
	case protocol.LLMStreamingStart:
		if c.handlers.OnLLMStart != nil {
			c.handlers.OnLLMStart(e.UserMessage)
		}
	case protocol.LLMStreamingChunk:
		if c.handlers.OnLLMChunk != nil {
			c.handlers.OnLLMChunk(e.Chunk)
		}
	case protocol.LLMStreamingComplete:
		if c.handlers.OnLLMComplete != nil {
			c.handlers.OnLLMComplete(e.CompleteResponse)
		}
	case protocol.TTSAudioChunk:
		if c.scheduler != nil {
			if err := c.scheduler.OnChunk(e); err != nil {
				c.logger.Warn().Err(err).Int("chunk", e.ChunkNumber).Msg("Failed to schedule audio chunk")
			}
		}
	case protocol.StageError:
		c.logger.Warn().Str("error_type", e.Type).Str("message", e.Message).Msg("Server reported stage error")
		if c.handlers.OnStageError != nil {
			c.handlers.OnStageError(e.Type, e.Message)
		}
	case protocol.AudioStreamReady:
		// Already handled during Dial; a repeat is harmless.
	}
}
