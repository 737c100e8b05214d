package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var metrics = struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}{
	requestsTotal: prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "diskuto",
			Name:      "http_status_total",
			Help:      "HTTP responses served, by method and status code",
		},
		[]string{"method", "status_code"},
	),
	requestDuration: prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "diskuto",
			Name:      "http_request_duration_seconds",
			Help:      "Time spent generating HTTP responses",
		},
		[]string{"method", "status_code"},
	),
}

var metricsRegister sync.Once

func registerMetrics() {
	metricsRegister.Do(func() {
		prometheus.MustRegister(metrics.requestsTotal)
		prometheus.MustRegister(metrics.requestDuration)
	})
}

func recordHTTPRequest(method string, statusCode int, duration time.Duration) {
	labels := prometheus.Labels{"method": method, "status_code": strconv.Itoa(statusCode)}
	metrics.requestsTotal.With(labels).Inc()
	metrics.requestDuration.With(labels).Observe(duration.Seconds())
}

// metricsHandler exposes the registered collectors at GET /metrics.
func metricsHandler() http.Handler {
	registerMetrics()
	return promhttp.Handler()
}
