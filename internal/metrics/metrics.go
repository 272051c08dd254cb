package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// stage is the last recompute step that completed; result is ok or error.
	RecomputeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_recompute_total",
			Help: "Completion recomputations by final stage and result",
		},
		[]string{"stage", "result"},
	)

	RecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "completion_recompute_duration_seconds",
			Help:    "Time spent recomputing phase and project completion",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	TaskMutationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_mutation_total",
			Help: "Task creates, updates and deletes",
		},
		[]string{"operation"},
	)

	PhaseTransitionCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "phase_transition_total",
			Help: "Projects moved into a phase",
		},
	)
)

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func RecordRecompute(stage string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	RecomputeCount.WithLabelValues(stage, result).Inc()
	RecomputeDuration.Observe(duration.Seconds())
}

func IncrementTaskMutation(operation string) {
	TaskMutationCount.WithLabelValues(operation).Inc()
}

func IncrementPhaseTransition() {
	PhaseTransitionCount.Inc()
}
