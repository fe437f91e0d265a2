package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Job queue metrics
	JobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamcore_jobs_enqueued_total",
			Help: "Total number of transcode jobs enqueued",
		},
		[]string{"profile"},
	)

	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamcore_jobs_completed_total",
			Help: "Total number of transcode jobs reaching a terminal state",
		},
		[]string{"status"},
	)

	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamcore_jobs_running",
			Help: "Number of jobs currently being processed",
		},
	)

	JobRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamcore_job_retries_total",
			Help: "Total number of transient-failure retries scheduled",
		},
	)

	JobsRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamcore_jobs_recovered_total",
			Help: "Total number of jobs requeued by the lease recovery sweep",
		},
	)

	JobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamcore_job_duration_seconds",
			Help:    "Wall-clock duration of successful transcode jobs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68m
		},
		[]string{"profile"},
	)

	// Delivery metrics
	DeliveryRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamcore_delivery_requests_total",
			Help: "Total number of playlist/segment requests",
		},
		[]string{"kind", "status"},
	)

	DeliveryBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamcore_delivery_bytes_total",
			Help: "Total number of media bytes served",
		},
	)
)
