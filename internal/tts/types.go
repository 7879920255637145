// Package tts defines the streaming speech synthesizer collaborator and its
// Murf implementation.
package tts

import "context"

// AudioChunk is one synthesized audio chunk. The payload is base64 WAV; the
// first chunk of a turn carries the 44-byte WAV header.
type AudioChunk struct {
	AudioBase64 string
	ChunkNumber int
	ChunkSize   int
	IsFinal     bool
	Err         error
}

// Synthesizer is the streaming TTS collaborator.
type Synthesizer interface {
	// Synthesize converts text to a stream of audio chunks. Chunk numbers
	// are monotonic starting at 1; the stream ends with IsFinal or an Err
	// chunk, after which the channel closes.
	Synthesize(ctx context.Context, text string) (<-chan AudioChunk, error)

	// Close tears down the synthesizer connection.
	Close() error
}
