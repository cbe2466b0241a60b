package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal counts every attempt, labelled by outcome (success, retry, failure).
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of operation attempts executed under a retry policy",
		},
		[]string{"category", "outcome"},
	)

	// ExhaustedTotal counts operations that used up their attempt budget.
	ExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_exhausted_total",
			Help: "Total number of operations that exhausted all retry attempts",
		},
		[]string{"category", "fallback"},
	)

	// AttemptDuration observes the duration of individual attempts.
	AttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retry_attempt_duration_seconds",
			Help:    "Duration of a single attempt in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"category"},
	)

	// SlowOperationsTotal counts attempts slower than the configured threshold.
	SlowOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_slow_operations_total",
			Help: "Total number of attempts exceeding the slow operation threshold",
		},
		[]string{"category"},
	)
)
