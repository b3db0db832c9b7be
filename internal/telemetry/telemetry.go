// Package telemetry holds publish metrics and the tracer used by the
// application layer.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"comlinepm/internal/types"
)

const TracerName = "comlinepm"

// Tracer returns the process tracer. It is a no-op until a provider is
// installed with otel.SetTracerProvider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// PublishMetrics records per-registry publish outcomes. A nil
// *PublishMetrics is valid and records nothing.
type PublishMetrics struct {
	registry *prometheus.Registry
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewPublishMetrics() *PublishMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &PublishMetrics{
		registry: registry,
		total: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "comlinepm_publish_total",
			Help: "Publish attempts per registry and outcome.",
		}, []string{"registry", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "comlinepm_publish_duration_seconds",
			Help:    "Time spent publishing to one registry, including login.",
			Buckets: prometheus.DefBuckets,
		}, []string{"registry"}),
	}
}

func (m *PublishMetrics) Observe(registry string, outcome types.PublishOutcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.total.WithLabelValues(registry, string(outcome)).Inc()
	m.duration.WithLabelValues(registry).Observe(elapsed.Seconds())
}

// Gatherer exposes the underlying registry, e.g. for tests.
func (m *PublishMetrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// WriteTextfile writes the metrics in the node-exporter textfile format.
func (m *PublishMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Gatherer())
}
