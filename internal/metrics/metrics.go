// Package metrics exposes Prometheus collectors for backend calls and the
// local status server.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequestsTotal           *prometheus.CounterVec
	apiRequestDurationSeconds  *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	transfersInFlight          prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		apiRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediavid_api_requests_total",
				Help: "Total backend API calls, labeled by operation and status code.",
			},
			[]string{"op", "code"},
		)

		apiRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mediavid_api_request_duration_seconds",
				Help:    "Histogram of backend API latencies until response headers, labeled by operation.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"op"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediavid_http_requests_total",
				Help: "Total requests served by the status server, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mediavid_http_request_duration_seconds",
				Help:    "Histogram of status server latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		)

		transfersInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mediavid_transfers_in_flight",
				Help: "Number of downloads currently being written to storage.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAPIRequest records one backend call. A code of 0 means the request
// failed before a response arrived.
func ObserveAPIRequest(op string, code int, duration time.Duration) {
	Init()
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	apiRequestsTotal.WithLabelValues(op, label).Inc()
	apiRequestDurationSeconds.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the status server request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncTransfers increments the in-flight transfer gauge.
func IncTransfers() {
	Init()
	transfersInFlight.Inc()
}

// DecTransfers decrements the in-flight transfer gauge.
func DecTransfers() {
	Init()
	transfersInFlight.Dec()
}
