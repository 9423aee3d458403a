package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MetricParseDispatchCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "study_file_parse_dispatch_total",
			Help: "Number of parse dispatches, by file type and outcome",
		},
		[]string{"file_type", "outcome"},
	)

	MetricIngestRunCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "study_file_ingest_run_total",
			Help: "Number of ingestion engine runs that reached a terminal status",
		},
		[]string{"action", "status"},
	)

	MetricUploadCleanupCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "study_file_upload_cleanup_total",
			Help: "Number of upload cleanup attempts, by outcome",
		},
		[]string{"outcome"},
	)

	MetricFailedUploadSweepCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "study_file_failed_upload_sweep_total",
			Help: "Number of files handled by the failed upload sweep, by result",
		},
		[]string{"result"},
	)

	MetricPushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "study_file_push_duration_seconds",
			Help:    "Duration of the copy of a local upload to the study bucket",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)
