// Package metrics exposes Prometheus collectors for story lifecycle and generation activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storyline"

// Generation kinds.
const (
	KindSpecification = "specification"
	KindDesign        = "design"
)

// Metrics is safe to use as a nil pointer; every method becomes a no-op.
type Metrics struct {
	registry prometheus.Gatherer

	generationRequests *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	artifacts          *prometheus.CounterVec
	transitions        *prometheus.CounterVec
}

// New registers the collectors on reg. Passing nil uses a fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		generationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "requests_total",
			Help:      "Outbound generation attempts by kind and result.",
		}, []string{"kind", "result"}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Latency of outbound generation attempts.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"kind"}),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "artifacts_total",
			Help:      "Artifacts produced by kind and source (external or fallback).",
		}, []string{"kind", "source"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "story",
			Name:      "transitions_total",
			Help:      "Story status transitions by source and target status.",
		}, []string{"from", "to"}),
	}
	reg.MustRegister(m.generationRequests, m.generationDuration, m.artifacts, m.transitions)
	return m
}

// ObserveRequest records one outbound attempt. result is "success" or "unavailable".
func (m *Metrics) ObserveRequest(kind, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.generationRequests.WithLabelValues(kind, result).Inc()
	m.generationDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveArtifact(kind, source string) {
	if m == nil {
		return
	}
	m.artifacts.WithLabelValues(kind, source).Inc()
}

func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
