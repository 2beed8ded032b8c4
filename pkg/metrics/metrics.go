// Package metrics exports Prometheus collectors for the stream pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stremio_sos"

// Metrics holds the add-on's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	StreamRequests *prometheus.CounterVec
	StreamDuration *prometheus.HistogramVec
	CacheLookups   *prometheus.CounterVec
	UpstreamErrors *prometheus.CounterVec
	Inflight       prometheus.Gauge
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		StreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_requests_total",
			Help:      "Stream requests by type and outcome",
		}, []string{"type", "outcome"}),
		StreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Time to answer a stream request",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"outcome"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Catalog mapping cache lookups by result (positive, negative, miss)",
		}, []string{"result"}),
		UpstreamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Failed upstream steps",
		}, []string{"step"}),
		Inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_inflight",
			Help:      "Pipelines currently running, including abandoned ones",
		}),
	}
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStream records one answered stream request.
func (m *Metrics) ObserveStream(mediaType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StreamRequests.WithLabelValues(mediaType, outcome).Inc()
	m.StreamDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// CacheLookup records a cache lookup result.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// UpstreamError records a failed pipeline step.
func (m *Metrics) UpstreamError(step string) {
	if m == nil {
		return
	}
	m.UpstreamErrors.WithLabelValues(step).Inc()
}

// PipelineStarted increments the in-flight gauge and returns its decrement.
func (m *Metrics) PipelineStarted() func() {
	if m == nil {
		return func() {}
	}
	m.Inflight.Inc()
	return m.Inflight.Dec
}
