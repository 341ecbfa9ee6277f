// Package metrics exposes Prometheus instruments for chat turns.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes.
const (
	OutcomeComplete  = "complete"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeRejected  = "rejected"
)

// Metrics holds the tutor's collectors on a private registry.
type Metrics struct {
	registry      *prometheus.Registry
	turns         *prometheus.CounterVec
	fragments     prometheus.Counter
	turnDuration  *prometheus.HistogramVec
	activeStreams prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tutor_turns_total",
			Help: "Chat turns by outcome.",
		}, []string{"outcome"}),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tutor_stream_fragments_total",
			Help: "Content fragments relayed to clients.",
		}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tutor_turn_duration_seconds",
			Help:    "Wall time of a chat turn.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tutor_active_streams",
			Help: "Turns currently relaying a provider stream.",
		}),
	}
	reg.MustRegister(
		m.turns,
		m.fragments,
		m.turnDuration,
		m.activeStreams,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveTurn records a finished turn.
func (m *Metrics) ObserveTurn(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	m.turnDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// AddFragment counts one relayed fragment.
func (m *Metrics) AddFragment() {
	if m == nil {
		return
	}
	m.fragments.Inc()
}

// StreamStarted and StreamEnded track in-flight relays.
func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.activeStreams.Inc()
}

func (m *Metrics) StreamEnded() {
	if m == nil {
		return
	}
	m.activeStreams.Dec()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
