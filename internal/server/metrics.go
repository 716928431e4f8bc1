package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the route pattern rather than the raw URL path.
	labelHandler = "handler"

	// metricsNamespace prefixes every metric name.
	metricsNamespace = "roomrag"
)

// Metrics holds all Prometheus collectors owned by the service.
// NewMetrics takes the registerer so tests can inject a fresh
// prometheus.Registry without polluting the default one.
type Metrics struct {
	// chatRequestsTotal counts answered questions, partitioned by outcome:
	// "ok", "no_evidence", "timeout", or "error".
	chatRequestsTotal *prometheus.CounterVec

	// chatTokensTotal sums the model tokens consumed by answers.
	chatTokensTotal prometheus.Counter

	// chatDurationSeconds records the wall-clock duration of each chat request.
	chatDurationSeconds prometheus.Histogram

	// ingestionTotal counts handled ingestion jobs by outcome.
	ingestionTotal *prometheus.CounterVec

	// ingestionChunks records the chunk count of successful ingestions.
	ingestionChunks prometheus.Histogram

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, route pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec

	// gatherer serves GET /metrics; nil when reg is not a Gatherer.
	gatherer prometheus.Gatherer
}

// NewMetrics registers all metrics against reg. promauto.With(reg) is used
// so that each call registers into the provided registry rather than the
// global default.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of questions answered, partitioned by outcome.",
		}, []string{"outcome"}),

		chatTokensTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "chat",
			Name:      "tokens_total",
			Help:      "Total model tokens consumed by generated answers.",
		}),

		chatDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of chat requests from receipt to response.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		ingestionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ingestion",
			Name:      "jobs_total",
			Help:      "Total number of ingestion jobs handled, partitioned by outcome.",
		}, []string{"outcome"}),

		ingestionChunks: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "ingestion",
			Name:      "chunks",
			Help:      "Number of chunks indexed per successfully ingested document.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
	m.gatherer, _ = reg.(prometheus.Gatherer)
	if m.gatherer == nil {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// ObserveChat records one answered question. It matches the chat
// orchestrator's OnOutcome signature.
func (m *Metrics) ObserveChat(outcome string, tokens int) {
	m.chatRequestsTotal.WithLabelValues(outcome).Inc()
	if tokens > 0 {
		m.chatTokensTotal.Add(float64(tokens))
	}
}

// ObserveIngestion records one handled ingestion job. It matches the
// ingestion worker's OnOutcome signature.
func (m *Metrics) ObserveIngestion(outcome string, chunks int) {
	m.ingestionTotal.WithLabelValues(outcome).Inc()
	if chunks > 0 {
		m.ingestionChunks.Observe(float64(chunks))
	}
}

// instrument records request count and latency per route pattern. It must
// wrap the mux directly so the pattern set during routing is visible.
func (m *Metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, ok := w.(*responseWriter)
		if !ok {
			rw = &responseWriter{ResponseWriter: w, status: http.StatusOK}
		}
		start := time.Now()
		next.ServeHTTP(rw, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}
