// Package metrics exposes Prometheus metrics for voice sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  *prometheus.CounterVec

	// Audio metrics
	AudioChunksTotal  *prometheus.CounterVec
	DecodeErrorsTotal prometheus.Counter

	// Tool metrics
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with all metrics registered
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "maxxi"
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live voice sessions",
		}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Voice sessions by outcome",
		}, []string{"outcome"}),
		AudioChunksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_total",
			Help:      "Audio chunks by direction",
		}, []string{"direction"}),
		DecodeErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_decode_errors_total",
			Help:      "Inbound audio chunks dropped as undecodable",
		}),
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome",
		}, []string{"tool", "outcome"}),
		ToolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"tool"}),
	}

	registry.MustRegister(
		m.SessionsActive,
		m.SessionsTotal,
		m.AudioChunksTotal,
		m.DecodeErrorsTotal,
		m.ToolCallsTotal,
		m.ToolCallDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SessionStarted records a session that reached the agent
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.SessionsTotal.WithLabelValues("started").Inc()
}

// SessionEnded records a session teardown
func (m *Metrics) SessionEnded(outcome string) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(outcome).Inc()
}

// SessionRejected records a session that never connected
func (m *Metrics) SessionRejected(reason string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(reason).Inc()
}

// AudioChunk counts one chunk in the given direction ("in" or "out")
func (m *Metrics) AudioChunk(direction string) {
	if m == nil {
		return
	}
	m.AudioChunksTotal.WithLabelValues(direction).Inc()
}

// DecodeError counts one dropped inbound chunk
func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrorsTotal.Inc()
}

// ToolCall records one tool invocation
func (m *Metrics) ToolCall(tool, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(seconds)
}
