package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status class",
		},
		[]string{"service", "method", "route", "class"},
	)

	// Order submission waits on the payment gateway, so the buckets reach
	// past the default payment timeout.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 13),
		},
		[]string{"service", "method", "route"},
	)

	httpResponseBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response body size",
			Buckets: prometheus.ExponentialBuckets(64, 4, 7),
		},
		[]string{"service", "route"},
	)

	httpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served",
		},
		[]string{"service"},
	)
)

// statusClass folds a status code into 1xx..5xx.
func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// PrometheusMetrics records request metrics keyed by chi route pattern, so
// every order id shares one series. Requests no route matched are labelled
// "unmatched".
func PrometheusMetrics(service string) func(next http.Handler) http.Handler {
	inFlight := httpRequestsInFlight.WithLabelValues(service)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inFlight.Inc()
			defer inFlight.Dec()

			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}

			httpRequestsTotal.WithLabelValues(service, r.Method, route, statusClass(rec.status)).Inc()
			httpRequestDuration.WithLabelValues(service, r.Method, route).Observe(elapsed.Seconds())
			httpResponseBytes.WithLabelValues(service, route).Observe(float64(rec.bytes))
		})
	}
}
