package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/talkeasy/voice-pipeline/internal/history"
)

// Spoken answers need to stay short; the prompt asks for it and the token
// cap enforces it.
const (
	maxOutputTokens   = 512
	speakableGuidance = "Respond in plain spoken prose without markdown, lists, or code blocks."
)

// GeminiGenerator implements Generator using the Gemini streaming API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	logger zerolog.Logger
}

// NewGeminiGenerator creates a Gemini-backed generator.
func NewGeminiGenerator(ctx context.Context, apiKey, model string, logger zerolog.Logger) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiGenerator{
		client: client,
		model:  model,
		logger: logger.With().Str("component", "llm").Logger(),
	}, nil
}

// GenerateStream produces the response as a stream of text chunks.
func (g *GeminiGenerator) GenerateStream(ctx context.Context, req Request) (<-chan Chunk, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return nil, fmt.Errorf("empty user message")
	}

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens:   maxOutputTokens,
		SystemInstruction: systemInstruction(req),
	}
	contents := buildContents(req)

	out := make(chan Chunk, 32)
	go func() {
		defer close(out)

		var total int
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
			if err != nil {
				g.logger.Error().Err(err).Msg("Gemini stream error")
				select {
				case out <- Chunk{Err: fmt.Errorf("generation failed: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			total += len(text)
			select {
			case out <- Chunk{Text: text}:
			case <-ctx.Done():
				// The consumer may already be gone; never block here.
				select {
				case out <- Chunk{Err: ctx.Err()}:
				default:
				}
				return
			}
		}
		g.logger.Debug().Int("response_bytes", total).Msg("Gemini stream complete")
	}()

	return out, nil
}

func systemInstruction(req Request) *genai.Content {
	var b strings.Builder
	b.WriteString(req.SystemPrompt)
	b.WriteString("\n")
	b.WriteString(speakableGuidance)
	if req.SearchContext != "" {
		b.WriteString("\n\nUse the following search results when relevant:\n")
		b.WriteString(req.SearchContext)
	}
	return &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(b.String())}}
}

func buildContents(req Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, msg := range req.History {
		role := genai.RoleUser
		if msg.Role == history.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}
	contents = append(contents, &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{genai.NewPartFromText(req.UserMessage)},
	})
	return contents
}
