package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels requests answered with an analysis.
	OutcomeSuccess = "success"
	// OutcomeClarification labels requests answered with a templated
	// clarification.
	OutcomeClarification = "clarification"
	// OutcomeError labels requests that failed on a dependency.
	OutcomeError = "error"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightx",
			Name:      "chat_requests_total",
			Help:      "Total chat requests handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	requestDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "insightx",
			Name:      "chat_request_seconds",
			Help:      "End-to-end chat request latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10},
		},
	)

	modelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightx",
			Name:      "model_calls_total",
			Help:      "Model invocations, partitioned by purpose and outcome.",
		},
		[]string{"purpose", "outcome"},
	)

	modelCallSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "insightx",
			Name:      "model_call_seconds",
			Help:      "Model invocation latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
		},
		[]string{"purpose"},
	)

	datasetQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightx",
			Name:      "dataset_queries_total",
			Help:      "Dataset statements executed, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	datasetQuerySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "insightx",
			Name:      "dataset_query_seconds",
			Help:      "Dataset statement latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	groundingRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "insightx",
			Name:      "grounding_rejections_total",
			Help:      "Narratives rejected for citing numbers outside the computed result.",
		},
	)

	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "insightx",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-session rate limiter.",
		},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "insightx",
			Name:      "active_sessions",
			Help:      "Sessions currently retained by the session store.",
		},
	)
)

// Register attaches the engine's collectors to the supplied Prometheus
// registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		requestsTotal,
		requestDurationSeconds,
		modelCallsTotal,
		modelCallSeconds,
		datasetQueriesTotal,
		datasetQuerySeconds,
		groundingRejectionsTotal,
		rateLimitedTotal,
		activeSessions,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRequest records an end-to-end chat request.
func ObserveRequest(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomeClarification, OutcomeError:
	default:
		outcome = OutcomeSuccess
	}
	requestsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	requestDurationSeconds.Observe(duration.Seconds())
}

// ObserveModelCall records one model invocation. Purpose is either
// "extract" or "narrate".
func ObserveModelCall(purpose string, duration time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	modelCallsTotal.WithLabelValues(purpose, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	modelCallSeconds.WithLabelValues(purpose).Observe(duration.Seconds())
}

// ObserveDatasetQuery records one dataset statement execution.
func ObserveDatasetQuery(operation string, duration time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	datasetQueriesTotal.WithLabelValues(operation, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	datasetQuerySeconds.Observe(duration.Seconds())
}

// IncGroundingRejection counts a narrative that failed verification.
func IncGroundingRejection() {
	groundingRejectionsTotal.Inc()
}

// IncRateLimited counts a request refused by the rate limiter.
func IncRateLimited() {
	rateLimitedTotal.Inc()
}

// SetActiveSessions publishes the current session count.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
