package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PermissionChecks counts membership permission evaluations and their outcome (allow|deny|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carecircle_permission_checks_total",
			Help: "Total number of membership permission checks",
		},
		[]string{"action", "result"},
	)

	// NotificationsCreated counts persisted notifications by type.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carecircle_notifications_created_total",
			Help: "Total number of persisted notifications",
		},
		[]string{"type"},
	)

	// PushDeliveries counts push delivery attempts by result (delivered|gone|failed).
	PushDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carecircle_push_deliveries_total",
			Help: "Total number of push delivery attempts",
		},
		[]string{"result"},
	)

	// SchedulerRuns counts reminder scheduler job executions by job name and result (success|error).
	SchedulerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carecircle_scheduler_runs_total",
			Help: "Total number of scheduler job executions",
		},
		[]string{"job", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carecircle_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
