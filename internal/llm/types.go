// Package llm defines the streaming response generator collaborator and its
// Gemini implementation.
package llm

import (
	"context"

	"github.com/talkeasy/voice-pipeline/internal/history"
)

// Request carries everything the generator needs to produce one response.
type Request struct {
	// SystemPrompt is the persona preamble.
	SystemPrompt string

	// History is the session's prior conversation, oldest first.
	History []history.Message

	// UserMessage is the finalized transcript of the current turn.
	UserMessage string

	// SearchContext is an optional block of web-search results to ground
	// the answer in. Empty when search is off or not worth running.
	SearchContext string
}

// Chunk is one streamed piece of the response. A chunk with a non-nil Err
// terminates the stream; the channel closes after the last chunk.
type Chunk struct {
	Text string
	Err  error
}

// Generator is the streaming LLM collaborator.
type Generator interface {
	// GenerateStream produces the response as a stream of text chunks.
	// The returned channel is closed when generation finishes or fails.
	GenerateStream(ctx context.Context, req Request) (<-chan Chunk, error)
}
