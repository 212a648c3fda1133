// Package metrics exposes orchestrator Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all orchestrator instruments.
type Metrics struct {
	// Traffic: tasks by lifecycle stage
	TasksTotal *prometheus.CounterVec

	// Errors: failures by type (no_agent, permission_denied, circuit_open,
	// planning, tool, budget)
	ErrorsTotal *prometheus.CounterVec

	// Saturation: queued inputs per priority tier
	QueueDepth *prometheus.GaugeVec

	// Saturation: breaker state per protected dependency (0=closed,
	// 1=open, 2=half-open)
	BreakerState *prometheus.GaugeVec

	// Latency: end-to-end task duration by outcome
	TaskDuration *prometheus.HistogramVec

	// Usage: tokens consumed against the session budget
	TokensConsumed prometheus.Counter

	// Traffic: events dropped by slow bus subscribers
	EventsDropped prometheus.Counter

	registry prometheus.Registerer
}

// New creates the instrument set. A nil registerer wires the metrics to a
// private registry so tests and metric-less deployments need no setup.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		TasksTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "axon_tasks_total",
			Help: "Total tasks by lifecycle stage.",
		}, []string{"stage"}), // queued, routed, completed, failed, cancelled

		ErrorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "axon_errors_total",
			Help: "Total errors by type.",
		}, []string{"type"}),

		QueueDepth: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "axon_queue_depth",
			Help: "Buffered inputs per priority tier.",
		}, []string{"priority"}),

		BreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "axon_circuit_breaker_state",
			Help: "Breaker state per dependency (0=closed, 1=open, 2=half-open).",
		}, []string{"dependency"}),

		TaskDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "axon_task_duration_seconds",
			Help:    "End-to-end task duration.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		TokensConsumed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "axon_tokens_consumed_total",
			Help: "Tokens charged against the session budget.",
		}),

		EventsDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "axon_events_dropped_total",
			Help: "Events dropped by slow bus subscribers.",
		}),

		registry: reg,
	}
}

// Handler returns the /metrics HTTP handler when the metrics were wired to
// a gatherer registry, or nil otherwise.
func (m *Metrics) Handler() http.Handler {
	if g, ok := m.registry.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	return nil
}
