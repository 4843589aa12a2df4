// Package metrics holds the Prometheus instruments for voice turns, backend
// probes and speech calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "voicemcp"

// Metrics groups all instruments. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	TurnPhase    *prometheus.HistogramVec
	Turns        *prometheus.CounterVec
	ActiveTurns  prometheus.Gauge
	LockWaiters  prometheus.Gauge
	Probes       *prometheus.CounterVec
	ToolCalls    *prometheus.CounterVec
	CapturedSecs prometheus.Histogram
}

// New registers every instrument on a fresh registry, so tests and multiple
// servers in one process do not collide.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		TurnPhase: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_phase_seconds",
			Help:      "Duration of each voice turn phase.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 180},
		}, []string{"phase"}),
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed voice turns by outcome.",
		}, []string{"outcome"}),
		ActiveTurns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_turns",
			Help:      "Turns currently holding the audio device.",
		}),
		LockWaiters: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_lock_waiters",
			Help:      "Turns queued for the audio device.",
		}),
		Probes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_total",
			Help:      "Availability probes by backend and result.",
		}, []string{"backend", "result"}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "MCP tool invocations by tool name.",
		}, []string{"tool"}),
		CapturedSecs: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "captured_audio_seconds",
			Help:      "Length of captured replies.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 180},
		}),
	}
}

func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.TurnPhase.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *Metrics) TurnOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
}

// ObserveProbe matches the provider.Prober observer hook.
func (m *Metrics) ObserveProbe(backend string, up bool) {
	if m == nil {
		return
	}
	result := "down"
	if up {
		result = "up"
	}
	m.Probes.WithLabelValues(backend, result).Inc()
}

func (m *Metrics) ToolCall(name string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(name).Inc()
}

func (m *Metrics) ObserveCapture(d time.Duration) {
	if m == nil {
		return
	}
	m.CapturedSecs.Observe(d.Seconds())
}

func (m *Metrics) TurnStarted() {
	if m != nil {
		m.ActiveTurns.Inc()
	}
}

func (m *Metrics) TurnFinished() {
	if m != nil {
		m.ActiveTurns.Dec()
	}
}

// SetWaiters reports the device lock queue depth.
func (m *Metrics) SetWaiters(n int) {
	if m != nil {
		m.LockWaiters.Set(float64(n))
	}
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
