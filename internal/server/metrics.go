package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler partitions HTTP metrics by route pattern rather than raw path,
// so document ids do not explode cardinality.
const labelHandler = "handler"

// serverMetrics holds the Prometheus collectors owned by the HTTP server.
// Each Server registers its own set so tests can pass a fresh registry.
type serverMetrics struct {
	// askRequestsTotal counts finished /api/ask requests by mode and outcome
	// ("ok", "insufficient", "timeout", "error").
	askRequestsTotal *prometheus.CounterVec

	// askDurationSeconds records /api/ask latency including translation.
	askDurationSeconds *prometheus.HistogramVec

	// askInFlight is the number of questions being answered right now.
	askInFlight prometheus.Gauge

	// uploadsTotal counts document registrations by outcome.
	uploadsTotal *prometheus.CounterVec

	// ingestInFlight is the number of background ingestions still running.
	ingestInFlight prometheus.Gauge

	// httpRequestsTotal counts all HTTP requests by method, route and code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		askRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Total number of /api/ask requests completed, partitioned by answer mode and outcome.",
		}, []string{"mode", "outcome"}),

		askDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/ask requests, translation included.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),

		askInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docqa",
			Subsystem: "ask",
			Name:      "in_flight",
			Help:      "Number of /api/ask requests currently being answered.",
		}),

		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "documents",
			Name:      "registered_total",
			Help:      "Documents uploaded or submitted as web text, partitioned by outcome.",
		}, []string{"outcome"}),

		ingestInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docqa",
			Subsystem: "documents",
			Name:      "ingest_in_flight",
			Help:      "Number of background ingestions started by uploads that have not settled.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// observeAsk records one finished question. mode is empty when the request
// failed before an answer mode was known.
func (m *serverMetrics) observeAsk(outcome, mode string, d time.Duration) {
	if mode == "" {
		mode = "none"
	}
	m.askRequestsTotal.WithLabelValues(mode, outcome).Inc()
	m.askDurationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}
