package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UserOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "user_operations_total",
			Help: "Total number of user directory operations by result",
		},
		[]string{"operation", "result"},
	)

	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Total number of cache operations by result",
		},
		[]string{"operation", "result"},
	)

	CacheOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_operation_duration_seconds",
			Help:    "Duration of cache operations in seconds, retries included",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation"},
	)

	EventsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_emitted_total",
			Help: "Total number of change events emitted by result",
		},
		[]string{"broker", "result"},
	)

	EventEmitDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "event_emit_duration_seconds",
			Help:    "Duration of change event emission until acknowledgment",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"broker"},
	)

	OutboxEntriesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_entries_recorded_total",
			Help: "Total number of failed emissions recorded in the outbox",
		},
	)

	OutboxRecordFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_record_failures_total",
			Help: "Total number of failed emissions that could not be recorded",
		},
	)

	OutboxReprocessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_reprocess_total",
			Help: "Total number of outbox entries handled by the reprocessing job by outcome",
		},
		[]string{"outcome"},
	)

	OutboxReprocessRunDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbox_reprocess_run_duration_seconds",
			Help:    "Duration of a single reprocessing run in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BackgroundTaskQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "background_task_queue_size",
			Help: "Current size of the background task queue",
		},
	)

	BackgroundTasksDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_tasks_dropped_total",
			Help: "Total number of background tasks dropped because the queue was full",
		},
		[]string{"task"},
	)

	BackgroundTaskDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "background_task_duration_seconds",
			Help:    "Duration of background tasks in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"task"},
	)
)
