package order

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order status transitions by source and target status",
		},
		[]string{"from", "to"},
	)

	compensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_compensations_total",
			Help: "Compensating actions run by the workflow",
		},
		[]string{"action", "outcome"},
	)

	submitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "order_submit_duration_seconds",
			Help:    "Wall time of SubmitOrder by final status",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)
)
