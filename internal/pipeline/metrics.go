package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// pipelineMetrics holds the Prometheus metrics owned by the orchestrator.
type pipelineMetrics struct {
	// indexResolutionsTotal counts index lookups by where the index came
	// from: "memory", "store", "built", or "error".
	indexResolutionsTotal *prometheus.CounterVec

	// indexBuildSeconds records how long extraction, chunking, and
	// embedding took for each build.
	indexBuildSeconds prometheus.Histogram

	// indexChunks records the number of chunks per built index.
	indexChunks prometheus.Histogram

	// answersTotal counts answers by mode, intent, and result: "answered",
	// "insufficient", or "error".
	answersTotal *prometheus.CounterVec

	// answerDurationSeconds records end-to-end answer latency by mode.
	answerDurationSeconds *prometheus.HistogramVec
}

// newPipelineMetrics registers the orchestrator metrics against reg.
func newPipelineMetrics(reg prometheus.Registerer) *pipelineMetrics {
	factory := promauto.With(reg)

	return &pipelineMetrics{
		indexResolutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "index",
			Name:      "resolutions_total",
			Help:      "Index lookups, partitioned by where the index was found.",
		}, []string{"outcome"}),

		indexBuildSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "index",
			Name:      "build_duration_seconds",
			Help:      "Time spent extracting, chunking, and embedding a document.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}),

		indexChunks: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "index",
			Name:      "chunks",
			Help:      "Number of chunks in each built index.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),

		answersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "answer",
			Name:      "total",
			Help:      "Answers produced, partitioned by mode, intent, and result.",
		}, []string{"mode", "intent", "result"}),

		answerDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "answer",
			Name:      "duration_seconds",
			Help:      "End-to-end latency of answering a question.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"mode"}),
	}
}
