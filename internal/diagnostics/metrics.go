package diagnostics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is a
// valid no-op receiver so the orchestrator can run unmetered without
// checking at every call site.
type Metrics struct {
	substeps       *prometheus.CounterVec
	handlerErrors  *prometheus.CounterVec
	contention     prometheus.Counter
	substepSeconds *prometheus.HistogramVec
}

// NewMetrics builds and registers the engine collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		substeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "josh_substep_total",
			Help: "Substeps completed, by substep name.",
		}, []string{"substep"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "josh_handler_errors_total",
			Help: "Handler executions that surfaced an error, by entity type.",
		}, []string{"entity"}),
		contention: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "josh_contention_total",
			Help: "Lock acquisitions that timed out and were retried or aborted.",
		}),
		substepSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "josh_substep_duration_seconds",
			Help:    "Wall time per substep across all shards.",
			Buckets: prometheus.DefBuckets,
		}, []string{"substep"}),
	}
	reg.MustRegister(m.substeps, m.handlerErrors, m.contention, m.substepSeconds)
	return m
}

// SubstepCompleted records one finished substep and its duration.
func (m *Metrics) SubstepCompleted(substep string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.substeps.WithLabelValues(substep).Inc()
	m.substepSeconds.WithLabelValues(substep).Observe(elapsed.Seconds())
}

// HandlerError records a handler execution error for entity.
func (m *Metrics) HandlerError(entity string) {
	if m == nil {
		return
	}
	m.handlerErrors.WithLabelValues(entity).Inc()
}

// Contention records one lock-acquisition timeout.
func (m *Metrics) Contention() {
	if m == nil {
		return
	}
	m.contention.Inc()
}
