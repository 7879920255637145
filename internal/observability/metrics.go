package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_pipeline_active_sessions",
		Help: "Number of sessions with a live connection",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_pipeline_sessions_total",
		Help: "Total number of sessions created",
	})

	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_pipeline_turns_total",
		Help: "Completed turns by outcome",
	}, []string{"outcome"}) // outcome: completed, no_speech, error

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_pipeline_turn_duration_seconds",
		Help:    "End-to-end turn duration from final transcript to final audio chunk",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_pipeline_stage_latency_seconds",
		Help:    "Per-stage collaborator latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"stage"}) // stage: transcription, llm, tts

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_pipeline_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_pipeline_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_pipeline_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_pipeline_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// Metrics tracks timing for a single session's pipeline stages.
type Metrics struct {
	sessionID string
	mu        sync.Mutex
	turnStart time.Time
	stageStart map[string]time.Time
}

// NewSessionMetrics creates a metrics tracker for a session and records its
// start.
func NewSessionMetrics(sessionID string) *Metrics {
	activeSessions.Inc()
	totalSessions.Inc()
	return &Metrics{
		sessionID:  sessionID,
		stageStart: make(map[string]time.Time),
	}
}

// RecordSessionEnd records the session going away.
func (m *Metrics) RecordSessionEnd() {
	activeSessions.Dec()
}

// RecordTurnStart marks the beginning of a turn's generation pipeline.
func (m *Metrics) RecordTurnStart() {
	m.mu.Lock()
	m.turnStart = time.Now()
	m.mu.Unlock()
}

// RecordTurnEnd records the turn outcome: "completed", "no_speech" or
// "error".
func (m *Metrics) RecordTurnEnd(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.turnStart.IsZero() {
		turnDuration.Observe(time.Since(m.turnStart).Seconds())
		m.turnStart = time.Time{}
	}
	turnsTotal.WithLabelValues(outcome).Inc()
}

// RecordStageStart marks the start of a collaborator call.
func (m *Metrics) RecordStageStart(stage string) {
	m.mu.Lock()
	m.stageStart[stage] = time.Now()
	m.mu.Unlock()
}

// RecordStageEnd observes the stage latency since RecordStageStart.
func (m *Metrics) RecordStageEnd(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if start, ok := m.stageStart[stage]; ok {
		stageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
		delete(m.stageStart, stage)
	}
}

// RecordError records an error by type and component.
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed in a direction.
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// UpdateCircuitBreakerState updates the circuit breaker state metric.
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments the failure counter.
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
