// Package obs holds the Prometheus metrics of the vending machine.
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and multiple servers in one
// process do not collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	operations          *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tvm_requests_total",
			Help: "Vending operations by outcome.",
		}, []string{"operation", "status"}),
	}

	m.registry.MustRegister(
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration, m.operations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveOperation counts one vending operation outcome.
func (m *Metrics) ObserveOperation(operation, status string) {
	m.operations.WithLabelValues(operation, status).Inc()
}

// Instrument measures in-flight requests, totals and latency. route
// resolves the label for a request after it was served, so router
// patterns can be used instead of raw paths.
func (m *Metrics) Instrument(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.httpInFlight.Inc()
			defer m.httpInFlight.Dec()
			start := time.Now()

			sw := &StatusWriter{ResponseWriter: w, Code: http.StatusOK}
			next.ServeHTTP(sw, r)

			status := strconv.Itoa(sw.Code)
			label := route(r)
			m.httpRequestDuration.WithLabelValues(r.Method, label, status).Observe(time.Since(start).Seconds())
			m.httpRequestsTotal.WithLabelValues(r.Method, label, status).Inc()
		})
	}
}

// StatusWriter records the status code written through it.
type StatusWriter struct {
	http.ResponseWriter
	Code int
}

func (w *StatusWriter) WriteHeader(code int) {
	w.Code = code
	w.ResponseWriter.WriteHeader(code)
}
