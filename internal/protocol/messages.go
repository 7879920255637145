// Package protocol defines the wire protocol spoken over the per-session
// WebSocket connection: JSON text frames for control and events, raw binary
// frames for PCM audio. Inbound frames are decoded exactly once at the
// connection boundary into a tagged union; everything past that point works
// with typed messages.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

// Stage identifies the pipeline stage an error originated from. The wire
// event type is "<stage>_error".
type Stage string

const (
	StageTranscription Stage = "transcription"
	StageLLM           Stage = "llm_streaming"
	StageTTS           Stage = "tts_streaming"
	StageProtocol      Stage = "protocol"
)

// Inbound is a client-to-server message.
type Inbound interface {
	isInbound()
}

// SessionHello carries the client-supplied session ID and the initial
// web-search preference. Sent once after connecting.
type SessionHello struct {
	SessionID string `json:"session_id"`
	WebSearch bool   `json:"web_search"`
}

// StartStreaming asks the server to begin a capture turn.
type StartStreaming struct{}

// StopStreaming asks the server to stop forwarding audio frames.
type StopStreaming struct{}

// WebSearchToggle flips the web-search preference mid-session.
type WebSearchToggle struct {
	Enabled bool `json:"enabled"`
}

// AudioFrame is one binary frame of raw 16 kHz mono s16le PCM. There is no
// per-frame wire header.
type AudioFrame struct {
	PCM []byte
}

func (SessionHello) isInbound()    {}
func (StartStreaming) isInbound()  {}
func (StopStreaming) isInbound()   {}
func (WebSearchToggle) isInbound() {}
func (AudioFrame) isInbound()      {}

// inboundEnvelope is the shape shared by all JSON control frames.
type inboundEnvelope struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	WebSearch bool   `json:"web_search"`
	Enabled   bool   `json:"enabled"`
}

// Bare-string commands kept for compatibility with the original protocol.
const (
	commandStart = "start_streaming"
	commandStop  = "stop_streaming"
)

// DecodeInbound converts one WebSocket frame into a typed message.
// messageType is the gorilla frame type (TextMessage or BinaryMessage).
func DecodeInbound(messageType int, data []byte) (Inbound, error) {
	switch messageType {
	case websocket.BinaryMessage:
		return AudioFrame{PCM: data}, nil

	case websocket.TextMessage:
		switch string(data) {
		case commandStart:
			return StartStreaming{}, nil
		case commandStop:
			return StopStreaming{}, nil
		}

		var env inboundEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("malformed control frame: %w", err)
		}
		switch env.Type {
		case "session_id":
			return SessionHello{SessionID: env.SessionID, WebSearch: env.WebSearch}, nil
		case "web_search_toggle":
			return WebSearchToggle{Enabled: env.Enabled}, nil
		default:
			return nil, fmt.Errorf("unknown control frame type %q", env.Type)
		}

	default:
		return nil, fmt.Errorf("unsupported WebSocket frame type %d", messageType)
	}
}

// Outbound is a server-to-client event. Marshal with Encode.
type Outbound interface {
	isOutbound()
}

// AudioStreamReady acknowledges the session handshake.
type AudioStreamReady struct {
	Type                 string `json:"type"`
	SessionID            string `json:"session_id"`
	TranscriptionEnabled bool   `json:"transcription_enabled"`
}

// PartialTranscript carries an interim result; each one fully replaces the
// previous partial for the turn in progress.
type PartialTranscript struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// FinalTranscript closes the capture phase of a turn with non-empty text.
type FinalTranscript struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TurnEnd signals the turn boundary. FinalTranscript is nil for a no-speech
// turn, which is a normal outcome, not an error.
type TurnEnd struct {
	Type            string  `json:"type"`
	FinalTranscript *string `json:"final_transcript"`
}

// LLMStreamingStart precedes the first token; UserMessage echoes the
// utterance for UI display.
type LLMStreamingStart struct {
	Type        string `json:"type"`
	UserMessage string `json:"user_message"`
}

// LLMStreamingChunk carries one token chunk and the running length of the
// accumulated response.
type LLMStreamingChunk struct {
	Type              string `json:"type"`
	Chunk             string `json:"chunk"`
	AccumulatedLength int    `json:"accumulated_length"`
}

// LLMStreamingComplete carries the full accumulated response.
type LLMStreamingComplete struct {
	Type             string `json:"type"`
	CompleteResponse string `json:"complete_response"`
}

// TTSAudioChunk carries one synthesized audio chunk. ChunkNumber is
// monotonic within a turn starting at 1; IsFinal marks the last chunk.
type TTSAudioChunk struct {
	Type        string `json:"type"`
	AudioBase64 string `json:"audio_base64"`
	ChunkNumber int    `json:"chunk_number"`
	ChunkSize   int    `json:"chunk_size"`
	IsFinal     bool   `json:"is_final"`
}

// StageError reports a pipeline-stage failure. The turn it belonged to is
// over; the session remains usable.
type StageError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (AudioStreamReady) isOutbound()     {}
func (PartialTranscript) isOutbound()    {}
func (FinalTranscript) isOutbound()      {}
func (TurnEnd) isOutbound()              {}
func (LLMStreamingStart) isOutbound()    {}
func (LLMStreamingChunk) isOutbound()    {}
func (LLMStreamingComplete) isOutbound() {}
func (TTSAudioChunk) isOutbound()        {}
func (StageError) isOutbound()           {}

func NewAudioStreamReady(sessionID string, transcriptionEnabled bool) AudioStreamReady {
	return AudioStreamReady{Type: "audio_stream_ready", SessionID: sessionID, TranscriptionEnabled: transcriptionEnabled}
}

func NewPartialTranscript(text string) PartialTranscript {
	return PartialTranscript{Type: "partial_transcript", Text: text}
}

func NewFinalTranscript(text string) FinalTranscript {
	return FinalTranscript{Type: "final_transcript", Text: text}
}

func NewTurnEnd(finalTranscript *string) TurnEnd {
	return TurnEnd{Type: "turn_end", FinalTranscript: finalTranscript}
}

func NewLLMStreamingStart(userMessage string) LLMStreamingStart {
	return LLMStreamingStart{Type: "llm_streaming_start", UserMessage: userMessage}
}

func NewLLMStreamingChunk(chunk string, accumulatedLength int) LLMStreamingChunk {
	return LLMStreamingChunk{Type: "llm_streaming_chunk", Chunk: chunk, AccumulatedLength: accumulatedLength}
}

func NewLLMStreamingComplete(completeResponse string) LLMStreamingComplete {
	return LLMStreamingComplete{Type: "llm_streaming_complete", CompleteResponse: completeResponse}
}

func NewTTSAudioChunk(audioBase64 string, chunkNumber, chunkSize int, isFinal bool) TTSAudioChunk {
	return TTSAudioChunk{
		Type:        "tts_audio_chunk",
		AudioBase64: audioBase64,
		ChunkNumber: chunkNumber,
		ChunkSize:   chunkSize,
		IsFinal:     isFinal,
	}
}

func NewStageError(stage Stage, message string) StageError {
	return StageError{Type: string(stage) + "_error", Message: message}
}

// Encode marshals an outbound event to its JSON wire form.
func Encode(msg Outbound) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", msg, err)
	}
	return data, nil
}

// DecodeOutbound parses a server-to-client JSON event into its typed form.
// Used by the client-side dispatcher.
func DecodeOutbound(data []byte) (Outbound, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed event: %w", err)
	}

	switch env.Type {
	case "audio_stream_ready":
		return decodeAs[AudioStreamReady](data)
	case "partial_transcript":
		return decodeAs[PartialTranscript](data)
	case "final_transcript":
		return decodeAs[FinalTranscript](data)
	case "turn_end":
		return decodeAs[TurnEnd](data)
	case "llm_streaming_start":
		return decodeAs[LLMStreamingStart](data)
	case "llm_streaming_chunk":
		return decodeAs[LLMStreamingChunk](data)
	case "llm_streaming_complete":
		return decodeAs[LLMStreamingComplete](data)
	case "tts_audio_chunk":
		return decodeAs[TTSAudioChunk](data)
	case "transcription_error", "llm_streaming_error", "tts_streaming_error", "protocol_error":
		return decodeAs[StageError](data)
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}

func decodeAs[T Outbound](data []byte) (Outbound, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("malformed event: %w", err)
	}
	return v, nil
}
