// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes the middleware that records them.
package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, path, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec

	// generationsTotal counts study-aid generations, partitioned by kind
	// ("chat", "quiz", "flashcards") and outcome ("ok", "error").
	generationsTotal *prometheus.CounterVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studyowl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, path, and status code.",
		}, []string{"method", "path", "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "studyowl",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		generationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studyowl",
			Subsystem: "studyaid",
			Name:      "generations_total",
			Help:      "Total study-aid generations, partitioned by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
}

// middleware records request count and latency for every request. Paths are
// normalized so per-document URLs do not explode the label cardinality.
func (m *serverMetrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		path := normalizePath(r.URL.Path)
		code := strconv.Itoa(rw.status)
		m.httpRequestsTotal.WithLabelValues(r.Method, path, code).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, path).Observe(elapsed.Seconds())
	})
}

// normalizePath collapses per-document URLs onto their route pattern.
func normalizePath(path string) string {
	if strings.HasPrefix(path, "/api/documents/") && strings.HasSuffix(path, "/status") {
		return "/api/documents/{id}/status"
	}
	return path
}

// observeGeneration records one study-aid generation outcome.
func (m *serverMetrics) observeGeneration(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.generationsTotal.WithLabelValues(kind, outcome).Inc()
}
