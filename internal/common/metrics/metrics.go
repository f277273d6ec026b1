// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notifications accepted by a delivery channel",
		},
		[]string{"channel", "type"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Failed delivery attempts",
		},
		[]string{"channel", "type", "permanent"},
	)

	NotificationsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_suppressed_total",
			Help: "Sends dropped by recipient preferences or dedup",
		},
		[]string{"type", "reason"},
	)

	ReminderCandidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_candidates_total",
			Help: "Upcoming payments evaluated by the reminder policy, by resulting tier",
		},
		[]string{"tier"},
	)

	SchedulerTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "scheduler_task_duration_seconds",
			Help: "Duration of periodic scheduler tasks",
		},
		[]string{"task"},
	)

	SchedulerTaskSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_task_skipped_total",
			Help: "Scheduler runs skipped because the task was already running",
		},
		[]string{"task"},
	)
)
