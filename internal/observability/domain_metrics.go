package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	questionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sorgu_questions_total",
			Help: "Total number of answered questions by outcome.",
		},
		[]string{"outcome"},
	)
	completionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sorgu_completion_requests_total",
			Help: "Completion service calls by purpose and status.",
		},
		[]string{"purpose", "status"},
	)
	guardRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sorgu_guard_rejections_total",
			Help: "Generated statements rejected before execution.",
		},
	)
	queryDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sorgu_query_duration_ms",
			Help:    "Store execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"store", "status"},
	)
	retryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sorgu_retry_attempts_total",
			Help: "Empty-result rewrite attempts by strategy and result.",
		},
		[]string{"strategy", "result"},
	)
	answersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sorgu_answers_total",
			Help: "Answers produced by source.",
		},
		[]string{"source"},
	)
	schemaResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sorgu_schema_resolutions_total",
			Help: "Schema resolutions by source.",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(
		questionsTotal,
		completionRequestsTotal,
		guardRejectionsTotal,
		queryDurationMs,
		retryAttemptsTotal,
		answersTotal,
		schemaResolutionsTotal,
	)
}

func ObserveQuestion(outcome string) {
	questionsTotal.WithLabelValues(outcome).Inc()
}

func ObserveCompletion(purpose string, err error) {
	completionRequestsTotal.WithLabelValues(purpose, statusLabel(err)).Inc()
}

func IncrementGuardRejection() {
	guardRejectionsTotal.Inc()
}

func ObserveQuery(store string, elapsed time.Duration, err error) {
	queryDurationMs.WithLabelValues(store, statusLabel(err)).Observe(float64(elapsed.Milliseconds()))
}

func ObserveRetryAttempt(strategy string, succeeded bool) {
	result := "empty"
	if succeeded {
		result = "rows"
	}
	retryAttemptsTotal.WithLabelValues(strategy, result).Inc()
}

func ObserveAnswer(source string) {
	answersTotal.WithLabelValues(source).Inc()
}

func ObserveSchemaResolution(source string) {
	schemaResolutionsTotal.WithLabelValues(source).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
