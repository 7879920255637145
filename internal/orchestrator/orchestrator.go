// Package orchestrator drives the response half of a turn: it takes the
// finalized transcript, streams a response from the LLM, streams synthesized
// audio back to the client, and records the exchange in history exactly once.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/talkeasy/voice-pipeline/internal/config"
	"github.com/talkeasy/voice-pipeline/internal/history"
	"github.com/talkeasy/voice-pipeline/internal/llm"
	"github.com/talkeasy/voice-pipeline/internal/observability"
	"github.com/talkeasy/voice-pipeline/internal/persona"
	"github.com/talkeasy/voice-pipeline/internal/protocol"
	"github.com/talkeasy/voice-pipeline/internal/session"
	"github.com/talkeasy/voice-pipeline/internal/tts"
	"github.com/talkeasy/voice-pipeline/internal/websearch"
)

// Sender delivers outbound events to the client. Implementations must be
// safe for concurrent use; the relay's write pump satisfies this.
type Sender interface {
	Send(ev protocol.Outbound) error
}

// Orchestrator runs the generate-synthesize-play phases for one session.
type Orchestrator struct {
	config    *config.Config
	logger    zerolog.Logger
	histStore history.Store
	personas  persona.Store
	generator llm.Generator
	synth     tts.Synthesizer
	searcher  websearch.Searcher
	metrics   *observability.Metrics
}

// New creates an orchestrator for one session. generator and searcher are
// shared across sessions; synth is per-session.
func New(
	cfg *config.Config,
	logger zerolog.Logger,
	histStore history.Store,
	personas persona.Store,
	generator llm.Generator,
	synth tts.Synthesizer,
	searcher websearch.Searcher,
	metrics *observability.Metrics,
) *Orchestrator {
	return &Orchestrator{
		config:    cfg,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
		histStore: histStore,
		personas:  personas,
		generator: generator,
		synth:     synth,
		searcher:  searcher,
		metrics:   metrics,
	}
}

// RunTurn drives one turn from the finalized transcript to the final audio
// chunk. On any stage failure it emits the stage error, resets the turn
// machine, and returns; the session stays usable.
func (o *Orchestrator) RunTurn(ctx context.Context, sess *session.Session, utterance string, send Sender) {
	turnID := sess.Turn.TurnID()
	logger := o.logger.With().Str("turn_id", turnID).Logger()

	o.metrics.RecordTurnStart()

	response, err := o.generate(ctx, sess, utterance, send, logger)
	if err != nil {
		o.failTurn(sess, send, protocol.StageLLM, err, logger)
		return
	}

	if err := o.synthesize(ctx, sess, response, send, logger); err != nil {
		o.failTurn(sess, send, protocol.StageTTS, err, logger)
		return
	}

	// The exchange enters history only after the full pipeline succeeded,
	// so a failed turn is never replayed into later prompts.
	if err := o.histStore.Append(sess.ID, history.RoleUser, utterance); err != nil {
		logger.Error().Err(err).Msg("Failed to append user message to history")
	}
	if err := o.histStore.Append(sess.ID, history.RoleAssistant, response); err != nil {
		logger.Error().Err(err).Msg("Failed to append assistant message to history")
	}

	if err := sess.Turn.Advance(session.StateIdle); err != nil {
		logger.Warn().Err(err).Msg("Turn machine out of sync at completion")
		sess.Turn.Fail()
	}
	o.metrics.RecordTurnEnd("completed")
	logger.Info().Int("response_length", len(response)).Msg("Turn completed")
}

// generate streams the LLM response, relaying chunks to the client, and
// returns the accumulated text.
func (o *Orchestrator) generate(ctx context.Context, sess *session.Session, utterance string, send Sender, logger zerolog.Logger) (string, error) {
	if err := sess.Turn.Advance(session.StateGenerating); err != nil {
		return "", err
	}

	if err := send.Send(protocol.NewLLMStreamingStart(utterance)); err != nil {
		return "", fmt.Errorf("failed to send stream start: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(o.config.GeneratorTimeout)*time.Second)
	defer cancel()

	searchContext := o.searchContext(ctx, sess, utterance, logger)

	msgs, err := o.histStore.History(sess.ID)
	if err != nil {
		return "", fmt.Errorf("failed to read history: %w", err)
	}

	o.metrics.RecordStageStart("llm")
	defer o.metrics.RecordStageEnd("llm")

	stream, err := o.generator.GenerateStream(ctx, llm.Request{
		SystemPrompt:  o.personas.Prompt(sess.Persona()),
		History:       msgs,
		UserMessage:   utterance,
		SearchContext: searchContext,
	})
	if err != nil {
		return "", err
	}

	var accumulated strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		accumulated.WriteString(chunk.Text)
		if err := send.Send(protocol.NewLLMStreamingChunk(chunk.Text, accumulated.Len())); err != nil {
			return "", fmt.Errorf("failed to send chunk: %w", err)
		}
	}

	response := accumulated.String()
	if strings.TrimSpace(response) == "" {
		return "", fmt.Errorf("generator produced an empty response")
	}

	if err := send.Send(protocol.NewLLMStreamingComplete(response)); err != nil {
		return "", fmt.Errorf("failed to send stream complete: %w", err)
	}
	return response, nil
}

// searchContext runs web search when the session has it on and the
// utterance looks like it needs live facts. Search failures degrade to no
// context rather than failing the turn.
func (o *Orchestrator) searchContext(ctx context.Context, sess *session.Session, utterance string, logger zerolog.Logger) string {
	if o.searcher == nil || !sess.WebSearchEnabled() || !websearch.LooksSearchWorthy(utterance) {
		return ""
	}

	block, err := o.searcher.Search(ctx, utterance)
	if err != nil {
		logger.Warn().Err(err).Msg("Web search failed, continuing without context")
		o.metrics.RecordError("search_failed", "websearch")
		return ""
	}
	return block
}

// synthesize streams the response's audio to the client. The transition to
// playing happens on the first chunk; the final chunk closes the turn's
// audio stream.
func (o *Orchestrator) synthesize(ctx context.Context, sess *session.Session, response string, send Sender, logger zerolog.Logger) error {
	if err := sess.Turn.Advance(session.StateSynthesizing); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(o.config.SynthesizerTimeout)*time.Second)
	defer cancel()

	o.metrics.RecordStageStart("tts")
	defer o.metrics.RecordStageEnd("tts")

	stream, err := o.synth.Synthesize(ctx, response)
	if err != nil {
		return err
	}

	sawFinal := false
	for chunk := range stream {
		if chunk.Err != nil {
			return chunk.Err
		}
		if chunk.ChunkNumber == 1 {
			if err := sess.Turn.Advance(session.StatePlaying); err != nil {
				return err
			}
		}
		if err := send.Send(protocol.NewTTSAudioChunk(chunk.AudioBase64, chunk.ChunkNumber, chunk.ChunkSize, chunk.IsFinal)); err != nil {
			return fmt.Errorf("failed to send audio chunk: %w", err)
		}
		o.metrics.RecordAudioBytes("out", int64(chunk.ChunkSize))
		if chunk.IsFinal {
			sawFinal = true
		}
	}
	if !sawFinal {
		return fmt.Errorf("synthesis stream ended without a final chunk")
	}

	logger.Debug().Msg("Synthesis stream finished")
	return nil
}

// failTurn emits the stage error, records metrics, and resets the turn.
func (o *Orchestrator) failTurn(sess *session.Session, send Sender, stage protocol.Stage, err error, logger zerolog.Logger) {
	logger.Error().Err(err).Str("stage", string(stage)).Msg("Turn failed")
	o.metrics.RecordError("turn_failed", string(stage))
	o.metrics.RecordTurnEnd("error")

	if sendErr := send.Send(protocol.NewStageError(stage, err.Error())); sendErr != nil {
		logger.Warn().Err(sendErr).Msg("Failed to deliver stage error")
	}
	sess.Turn.Fail()
}
