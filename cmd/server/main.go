package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talkeasy/voice-pipeline/internal/config"
	"github.com/talkeasy/voice-pipeline/internal/history"
	"github.com/talkeasy/voice-pipeline/internal/llm"
	"github.com/talkeasy/voice-pipeline/internal/observability"
	"github.com/talkeasy/voice-pipeline/internal/persona"
	"github.com/talkeasy/voice-pipeline/internal/relay"
	"github.com/talkeasy/voice-pipeline/internal/session"
	"github.com/talkeasy/voice-pipeline/internal/stt"
	"github.com/talkeasy/voice-pipeline/internal/tts"
	"github.com/talkeasy/voice-pipeline/internal/websearch"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("stt_model", cfg.DeepgramModel).
		Str("llm_model", cfg.GeminiModel).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice Pipeline Service starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	generator, err := llm.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create LLM generator")
	}

	registry := session.NewRegistry()
	histStore := history.NewMemoryStore()
	personas := persona.NewMemoryStore(cfg.Persona, false)
	searcher := websearch.NewClient(cfg.TavilyAPIKey, cfg.SearchMaxResults, logger)

	wsHandler := relay.NewHandler(
		cfg,
		logger,
		registry,
		histStore,
		personas,
		generator,
		searcher,
		func(string) stt.Transcriber {
			return stt.NewDeepgramTranscriber(cfg, logger, nil)
		},
		func(string) tts.Synthesizer {
			return tts.NewMurfSynthesizer(cfg, logger)
		},
	)

	mux := http.NewServeMux()

	// Per-session duplex WebSocket endpoint
	mux.Handle("/ws/audio-stream", wsHandler)

	// Chat history and persona REST endpoints
	relay.NewRESTHandler(logger, histStore, personas, registry).Register(mux)

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness: configuration-level checks, no billable API calls
	checks := map[string]observability.HealthCheckFunc{
		"deepgram": func(ctx context.Context) (bool, error) {
			if cfg.DeepgramAPIKey == "" {
				return false, fmt.Errorf("missing Deepgram API key")
			}
			return true, nil
		},
		"gemini": func(ctx context.Context) (bool, error) {
			if cfg.GeminiAPIKey == "" {
				return false, fmt.Errorf("missing Gemini API key")
			}
			return true, nil
		},
		"tts": func(ctx context.Context) (bool, error) {
			if cfg.TTSAPIKey == "" {
				return false, fmt.Errorf("missing TTS API key")
			}
			return true, nil
		},
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Evict sessions that have been idle past the timeout
	go func() {
		idle := time.Duration(cfg.SessionIdleTimeout) * time.Second
		ticker := time.NewTicker(idle / 4)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := registry.EvictIdle(idle); n > 0 {
					logger.Info().Int("evicted", n).Msg("Evicted idle sessions")
				}
			}
		}
	}()

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws/audio-stream", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
