package operation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remediator_operation_attempts_total",
			Help: "Total operation attempts by actor and operation",
		},
		[]string{"actor", "operation"},
	)

	outcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remediator_operation_outcomes_total",
			Help: "Total final operation outcomes by actor, operation and result",
		},
		[]string{"actor", "operation", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remediator_operation_duration_seconds",
			Help:    "Duration of whole operation pipelines, retries included",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"actor", "operation"},
	)
)

func recordAttempt(p Params) {
	attemptsTotal.WithLabelValues(p.Actor, p.Operation).Inc()
}

func recordOutcome(p Params, o *Outcome) {
	outcomesTotal.WithLabelValues(p.Actor, p.Operation, o.Result.String()).Inc()
	operationDuration.WithLabelValues(p.Actor, p.Operation).Observe(o.Duration().Seconds())
}
