package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	InstanceSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbsync_instance_syncs_total",
			Help: "Instance account syncs by outcome",
		},
		[]string{"db_type", "status"},
	)
	AccountChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbsync_account_changes_total",
			Help: "Account change events written to the change log",
		},
		[]string{"db_type", "change_type"},
	)
	InstanceSyncSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbsync_instance_sync_seconds",
			Help:    "Duration of one instance sync in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"db_type"},
	)
	ClassificationBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbsync_classification_batches_total",
			Help: "Classification batches by final status",
		},
		[]string{"status"},
	)
	TaskRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbsync_task_runs_total",
			Help: "Task executions by final status",
		},
		[]string{"status"},
	)
	EventDeliveryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbsync_event_delivery_failures_total",
			Help: "Events moved to the dead letter table",
		},
		[]string{"sink"},
	)
)

func init() {
	prometheus.MustRegister(
		InstanceSyncs,
		AccountChanges,
		InstanceSyncSeconds,
		ClassificationBatches,
		TaskRuns,
		EventDeliveryFailures,
	)
}
