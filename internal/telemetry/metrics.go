// Package telemetry provides observability primitives for the router:
// Prometheus metrics, upstream failure alerting, and OTLP tracing.
package telemetry

import (
	"bytes"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// MetricsContentType is the exposition format served on /metrics.
const MetricsContentType = "text/plain; version=0.0.4"

// Metrics holds all Prometheus collectors for the router. Metric names are
// part of the operational contract; dashboards key on them.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	UpstreamErrors     *prometheus.CounterVec
	ActiveConnections  prometheus.Gauge
	RateLimiterBuckets prometheus.Gauge
	RequestLatency     *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total HTTP requests.",
		}, []string{"route", "method", "status"}),

		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upstream_errors_total",
			Help: "Total upstream errors.",
		}, []string{"error_type"}),

		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "Active client connections.",
		}),

		RateLimiterBuckets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rate_limiter_buckets",
			Help: "Active rate limiter buckets.",
		}),

		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "request_latency_seconds",
			Help: "Request latency in seconds.",
		}, []string{"route"}),

		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.UpstreamErrors,
		m.ActiveConnections,
		m.RateLimiterBuckets,
		m.RequestLatency,
	)

	return m
}

// RecordRequest counts one finished request.
func (m *Metrics) RecordRequest(route, method string, status int) {
	m.RequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

// RecordUpstreamError counts one failed forward by error taxonomy label.
func (m *Metrics) RecordUpstreamError(errorType string) {
	m.UpstreamErrors.WithLabelValues(errorType).Inc()
}

// ObserveLatency records one request's wall time.
func (m *Metrics) ObserveLatency(route string, seconds float64) {
	m.RequestLatency.WithLabelValues(route).Observe(seconds)
}

// TrackConnection bumps the active connection gauge and returns the
// matching decrement for deferred use.
func (m *Metrics) TrackConnection() func() {
	m.ActiveConnections.Inc()
	return m.ActiveConnections.Dec
}

// Gather renders the registry in Prometheus text exposition format.
func (m *Metrics) Gather() ([]byte, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := enc.Encode(family); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
