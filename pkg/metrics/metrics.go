package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Notification intake
var (
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_notifications_total",
			Help: "Total number of mailbox notifications received",
		},
		[]string{"source", "result"},
	)

	SyncQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailflow_sync_queue_depth",
			Help: "Number of sync jobs waiting for a worker",
		},
	)
)

// Sync passes
var (
	SyncPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_sync_passes_total",
			Help: "Total number of sync passes by outcome",
		},
		[]string{"result"},
	)

	SyncPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailflow_sync_pass_duration_seconds",
			Help:    "Duration of sync passes that acquired the lock",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 240},
		},
	)

	ProviderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_provider_errors_total",
			Help: "Mailbox provider errors by operation and kind",
		},
		[]string{"operation", "kind"},
	)

	MessagesClassifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_messages_classified_total",
			Help: "Messages classified during sync passes",
		},
		[]string{"result"},
	)
)

// Dispatch
var (
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_dispatches_total",
			Help: "Workflow dispatch attempts by outcome",
		},
		[]string{"result"},
	)

	WorkflowsSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailflow_workflows_skipped_total",
			Help: "Active workflows skipped because their definition could not be decoded",
		},
	)

	WatchRenewalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_watch_renewals_total",
			Help: "Mailbox watch (re)arm attempts",
		},
		[]string{"result"},
	)
)
