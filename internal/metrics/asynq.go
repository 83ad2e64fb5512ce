package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure outcomes of a print or preview task.
const (
	outcomeRetry     = "retry"
	outcomePermanent = "permanent"
)

var (
	taskProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idcard",
			Subsystem: "worker",
			Name:      "tasks_processed_total",
			Help:      "Tasks processed, by type.",
		},
		[]string{"task_type"},
	)

	taskFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idcard",
			Subsystem: "worker",
			Name:      "tasks_failed_total",
			Help:      "Failed tasks by type. outcome=permanent when the task skipped retry.",
		},
		[]string{"task_type", "outcome"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "idcard",
			Subsystem: "worker",
			Name:      "task_duration_seconds",
			Help:      "Task handling time in seconds, by type.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"task_type"},
	)

	taskInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "idcard",
			Subsystem: "worker",
			Name:      "tasks_in_progress",
			Help:      "Tasks currently being processed.",
		},
		[]string{"task_type"},
	)
)

// AsynqMetricsMiddleware records task throughput, latency and failures.
func AsynqMetricsMiddleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			taskType := task.Type()
			inProgress := taskInProgress.WithLabelValues(taskType)
			inProgress.Inc()
			defer inProgress.Dec()

			started := time.Now()
			err := next.ProcessTask(ctx, task)
			taskDuration.WithLabelValues(taskType).Observe(time.Since(started).Seconds())
			taskProcessedTotal.WithLabelValues(taskType).Inc()

			if err != nil {
				outcome := outcomeRetry
				if errors.Is(err, asynq.SkipRetry) {
					outcome = outcomePermanent
				}
				taskFailedTotal.WithLabelValues(taskType, outcome).Inc()
			}
			return err
		})
	}
}
