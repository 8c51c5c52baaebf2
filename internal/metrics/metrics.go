package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "image_fetcher_tasks_submitted_total",
		Help: "Total number of fetch tasks submitted",
	})

	TasksSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "image_fetcher_tasks_succeeded_total",
		Help: "Total number of fetch tasks that succeeded",
	})

	TasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "image_fetcher_tasks_failed_total",
		Help: "Total number of fetch tasks that failed",
	})

	TasksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "image_fetcher_tasks_rejected_total",
		Help: "Total number of fetch tasks rejected at submission",
	})

	TasksInterrupted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "image_fetcher_tasks_interrupted_total",
		Help: "Total number of fetch tasks stopped by shutdown and left for recovery",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "image_fetcher_queue_depth",
		Help: "Number of fetch tasks waiting for a worker",
	})

	StepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "image_fetcher_step_errors_total",
		Help: "Errors raised by fetch task steps, by stage",
	}, []string{"stage"})

	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "image_fetcher_fetch_duration_seconds",
		Help:    "Remote fetch duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	TaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "image_fetcher_task_duration_seconds",
		Help:    "Fetch task run duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	FetchedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "image_fetcher_fetched_bytes_total",
		Help: "Total bytes downloaded from sources",
	})

	WrittenBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "image_fetcher_written_bytes_total",
		Help: "Total JPEG bytes written to destinations",
	})
)
