package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Event names emitted by the engine. Kept in one place so the metrics
// emitter and the audit log agree on spelling.
const (
	EventBreakerState    = "breaker_state_changed"
	EventRetryAttempt    = "retry_attempt"
	EventStageStarted    = "stage_started"
	EventStageCompleted  = "stage_completed"
	EventStageFailed     = "stage_failed"
	EventRecoveryAttempt = "recovery_attempt"
	EventGateDecision    = "gate_decision"
	EventRunCompleted    = "run_completed"
)

// breaker states as gauge values
var breakerStateValues = map[string]float64{
	"closed":    0,
	"open":      1,
	"half_open": 2,
}

// MetricsEmitter maps engine events onto Prometheus collectors.
type MetricsEmitter struct {
	breakerState  *prometheus.GaugeVec
	breakerOpens  *prometheus.CounterVec
	retryAttempts *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	recoveries    *prometheus.CounterVec
}

// NewMetricsEmitter creates the collectors and registers them with reg.
func NewMetricsEmitter(reg prometheus.Registerer) *MetricsEmitter {
	m := &MetricsEmitter{
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "forgeline_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open).",
		}, []string{"breaker"}),
		breakerOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forgeline_breaker_opens_total",
			Help: "Number of times each breaker has opened.",
		}, []string{"breaker"}),
		retryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forgeline_retry_attempts_total",
			Help: "Retry attempts performed, by operation.",
		}, []string{"operation"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forgeline_stage_duration_seconds",
			Help:    "Wall-clock duration of completed stages.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forgeline_stage_failures_total",
			Help: "Stage executions that ended in error.",
		}, []string{"stage"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forgeline_recovery_attempts_total",
			Help: "Automatic recovery attempts, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.breakerState, m.breakerOpens, m.retryAttempts, m.stageDuration, m.stageFailures, m.recoveries)
	return m
}

func (m *MetricsEmitter) Emit(event string, fields Fields) {
	switch event {
	case EventBreakerState:
		name, _ := fields["breaker"].(string)
		state, _ := fields["state"].(string)
		if v, ok := breakerStateValues[state]; ok {
			m.breakerState.WithLabelValues(name).Set(v)
		}
		if state == "open" {
			m.breakerOpens.WithLabelValues(name).Inc()
		}
	case EventRetryAttempt:
		op, _ := fields["operation"].(string)
		m.retryAttempts.WithLabelValues(op).Inc()
	case EventStageCompleted:
		stage, _ := fields["stage"].(string)
		if secs, ok := fields["duration_seconds"].(float64); ok {
			m.stageDuration.WithLabelValues(stage).Observe(secs)
		}
	case EventStageFailed:
		stage, _ := fields["stage"].(string)
		m.stageFailures.WithLabelValues(stage).Inc()
	case EventRecoveryAttempt:
		outcome, _ := fields["outcome"].(string)
		m.recoveries.WithLabelValues(outcome).Inc()
	}
}
