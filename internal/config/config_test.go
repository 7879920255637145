package config

import (
	"os"
	"testing"
)

func setRequiredKeys(t *testing.T) {
	t.Helper()
	os.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	os.Setenv("TTS_API_KEY", "test-tts-key")
	t.Cleanup(func() {
		os.Unsetenv("DEEPGRAM_API_KEY")
		os.Unsetenv("GEMINI_API_KEY")
		os.Unsetenv("TTS_API_KEY")
	})
}

func TestLoad(t *testing.T) {
	setRequiredKeys(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
	if cfg.GeminiAPIKey != "test-gemini-key" {
		t.Errorf("Expected GeminiAPIKey 'test-gemini-key', got '%s'", cfg.GeminiAPIKey)
	}
	if cfg.TTSAPIKey != "test-tts-key" {
		t.Errorf("Expected TTSAPIKey 'test-tts-key', got '%s'", cfg.TTSAPIKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("DEEPGRAM_API_KEY")
	os.Unsetenv("GEMINI_API_KEY")
	os.Unsetenv("TTS_API_KEY")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when required keys are missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredKeys(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}
	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("Expected default DeepgramModel 'nova-2', got '%s'", cfg.DeepgramModel)
	}
	if cfg.DeepgramLanguage != "en" {
		t.Errorf("Expected default DeepgramLanguage 'en', got '%s'", cfg.DeepgramLanguage)
	}
	if cfg.GeminiModel != "gemini-2.5-flash" {
		t.Errorf("Expected default GeminiModel 'gemini-2.5-flash', got '%s'", cfg.GeminiModel)
	}
	if cfg.TTSVoiceID != "en-US-amara" {
		t.Errorf("Expected default TTSVoiceID 'en-US-amara', got '%s'", cfg.TTSVoiceID)
	}
	if cfg.TTSSampleRate != 44100 {
		t.Errorf("Expected default TTSSampleRate 44100, got %d", cfg.TTSSampleRate)
	}
	if cfg.Persona != "default" {
		t.Errorf("Expected default Persona 'default', got '%s'", cfg.Persona)
	}
	if cfg.FrameSamples != 4096 {
		t.Errorf("Expected default FrameSamples 4096, got %d", cfg.FrameSamples)
	}
	if cfg.VADEnergyThreshold != 500.0 {
		t.Errorf("Expected default VADEnergyThreshold 500.0, got %f", cfg.VADEnergyThreshold)
	}
	if cfg.VADSilenceFrames != 50 {
		t.Errorf("Expected default VADSilenceFrames 50, got %d", cfg.VADSilenceFrames)
	}
	if cfg.PlaybackLookAheadMs != 150 {
		t.Errorf("Expected default PlaybackLookAheadMs 150, got %d", cfg.PlaybackLookAheadMs)
	}
	if cfg.SessionIdleTimeout != 1800 {
		t.Errorf("Expected default SessionIdleTimeout 1800, got %d", cfg.SessionIdleTimeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	setRequiredKeys(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
}

func TestLoadFromEnv_InvalidFrameSamples(t *testing.T) {
	setRequiredKeys(t)
	os.Setenv("FRAME_SAMPLES", "0")
	defer os.Unsetenv("FRAME_SAMPLES")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error for non-positive FRAME_SAMPLES")
	}
}

func TestLoadFromEnv_LookAheadBelowPadding(t *testing.T) {
	setRequiredKeys(t)
	os.Setenv("PLAYBACK_LOOKAHEAD_MS", "10")
	os.Setenv("PLAYBACK_PADDING_MS", "20")
	defer os.Unsetenv("PLAYBACK_LOOKAHEAD_MS")
	defer os.Unsetenv("PLAYBACK_PADDING_MS")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error when look-ahead is below padding")
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	setRequiredKeys(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}
	if cfg.CircuitBreakerResetTimeout != 30 {
		t.Errorf("Expected default CircuitBreakerResetTimeout 30, got %d", cfg.CircuitBreakerResetTimeout)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("Expected default RetryMaxAttempts 3, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.RetryInitialBackoff != 100 {
		t.Errorf("Expected default RetryInitialBackoff 100, got %d", cfg.RetryInitialBackoff)
	}
	if cfg.ReconnectMaxAttempts != 5 {
		t.Errorf("Expected default ReconnectMaxAttempts 5, got %d", cfg.ReconnectMaxAttempts)
	}
	if cfg.ReconnectBackoff != 1000 {
		t.Errorf("Expected default ReconnectBackoff 1000, got %d", cfg.ReconnectBackoff)
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	setRequiredKeys(t)
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}
