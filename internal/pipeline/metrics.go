// Package pipeline — metrics.go registers the Prometheus metrics for the
// document processing pipeline.
package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// pipelineMetrics holds all Prometheus metrics owned by the pipeline.
// A single instance is created in New and stored on the Controller so that
// tests can inject a fresh prometheus.Registry without polluting the default
// one.
type pipelineMetrics struct {
	// chunksTotal counts chunk processing outcomes, partitioned by
	// "completed", "failed", or "requeued".
	chunksTotal *prometheus.CounterVec

	// chunksReclaimed counts stale processing claims returned to pending.
	chunksReclaimed prometheus.Counter

	// documentsTotal counts finished documents, partitioned by "completed"
	// or "failed".
	documentsTotal *prometheus.CounterVec

	// embedDurationSeconds records the wall-clock duration of each embedding
	// call, including in-process retries.
	embedDurationSeconds prometheus.Histogram

	// workersInFlight is the number of chunk workers currently embedding.
	workersInFlight prometheus.Gauge
}

// newPipelineMetrics registers all pipeline metrics against reg and returns
// the populated pipelineMetrics. promauto.With(reg) registers into the
// provided registry rather than the global default — this keeps unit tests
// hermetic.
func newPipelineMetrics(reg prometheus.Registerer) *pipelineMetrics {
	factory := promauto.With(reg)

	return &pipelineMetrics{
		chunksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studyowl",
			Subsystem: "pipeline",
			Name:      "chunks_total",
			Help:      "Total chunk processing outcomes, partitioned by outcome.",
		}, []string{"outcome"}),

		chunksReclaimed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "studyowl",
			Subsystem: "pipeline",
			Name:      "chunks_reclaimed_total",
			Help:      "Total stale processing claims returned to pending.",
		}),

		documentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studyowl",
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Total finished documents, partitioned by outcome.",
		}, []string{"outcome"}),

		embedDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "studyowl",
			Subsystem: "pipeline",
			Name:      "embed_duration_seconds",
			Help:      "Wall-clock duration of embedding calls, including in-process retries.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		}),

		workersInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "studyowl",
			Subsystem: "pipeline",
			Name:      "workers_in_flight",
			Help:      "Number of chunk workers currently embedding.",
		}),
	}
}
