// Package config loads all service configuration from the environment.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice pipeline service.
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Deepgram STT configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" required:"true"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// Gemini LLM configuration
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY" required:"true"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`

	// TTS streaming configuration
	TTSAPIKey     string `envconfig:"TTS_API_KEY" required:"true"`
	TTSVoiceID    string `envconfig:"TTS_VOICE_ID" default:"en-US-amara"`
	TTSSampleRate int    `envconfig:"TTS_SAMPLE_RATE" default:"44100"`

	// Web search (Tavily) configuration; empty key disables search
	TavilyAPIKey    string `envconfig:"TAVILY_API_KEY" default:""`
	SearchMaxResults int   `envconfig:"SEARCH_MAX_RESULTS" default:"3"`

	// Persona selected at startup (sessions may override)
	Persona string `envconfig:"AGENT_PERSONA" default:"default"`

	// Collaborator call bounds, in seconds
	TranscriberTimeout int `envconfig:"TRANSCRIBER_TIMEOUT" default:"30"`
	GeneratorTimeout   int `envconfig:"GENERATOR_TIMEOUT" default:"60"`
	SynthesizerTimeout int `envconfig:"SYNTHESIZER_TIMEOUT" default:"45"`

	// Audio processing configuration
	FrameSamples       int     `envconfig:"FRAME_SAMPLES" default:"4096"`          // capture frame size in samples
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"`  // RMS threshold for voiced frames
	VADVoicedFrames    int     `envconfig:"VAD_VOICED_FRAMES" default:"3"`         // voiced frames before speech start
	VADSilenceFrames   int     `envconfig:"VAD_SILENCE_FRAMES" default:"50"`       // silent frames before speech end
	PlaybackLookAheadMs int    `envconfig:"PLAYBACK_LOOKAHEAD_MS" default:"150"`   // scheduler start hysteresis window
	PlaybackPaddingMs   int    `envconfig:"PLAYBACK_PADDING_MS" default:"20"`      // minimum scheduling margin

	// Session registry eviction
	SessionIdleTimeout int `envconfig:"SESSION_IDLE_TIMEOUT" default:"1800"` // seconds before idle eviction

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // seconds
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"` // milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"` // milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from a .env file (if present) and the
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration from environment variables only, for
// containerized deployments.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.FrameSamples <= 0 {
		return nil, fmt.Errorf("FRAME_SAMPLES must be positive, got %d", cfg.FrameSamples)
	}
	if cfg.PlaybackLookAheadMs < cfg.PlaybackPaddingMs {
		return nil, fmt.Errorf("PLAYBACK_LOOKAHEAD_MS (%d) must not be below PLAYBACK_PADDING_MS (%d)",
			cfg.PlaybackLookAheadMs, cfg.PlaybackPaddingMs)
	}

	return &cfg, nil
}
