// Package obs registers Prometheus metrics and provides HTTP instrumentation.
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// ImportedItems counts entities materialized by the import pipeline,
	// labelled by category (friends/posts/photos).
	ImportedItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_items_total",
			Help: "Entities materialized by the import pipeline.",
		},
		[]string{"category"},
	)

	// ImportFailures counts per-item import failures that were skipped.
	ImportFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_item_failures_total",
			Help: "Per-item import failures that were logged and skipped.",
		},
		[]string{"category"},
	)

	// Erasures counts erasure operations by kind (source/account).
	Erasures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erasures_total",
			Help: "Completed erasure operations.",
		},
		[]string{"kind"},
	)

	// RetentionSweeps counts sweeper runs by outcome.
	RetentionSweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_sweeps_total",
			Help: "Retention sweeper runs.",
		},
		[]string{"outcome"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		ImportedItems, ImportFailures, Erasures, RetentionSweeps,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
