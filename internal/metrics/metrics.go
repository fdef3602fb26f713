package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline run metrics
	RunsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "captionburn_runs_started_total",
			Help: "Total number of pipeline runs started",
		},
		[]string{"content_type"},
	)

	RunsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "captionburn_runs_completed_total",
			Help: "Total number of pipeline runs completed",
		},
		[]string{"status"},
	)

	RunsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "captionburn_runs_in_progress",
			Help: "Number of pipeline runs currently being processed",
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "captionburn_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27m
		},
		[]string{"stage"},
	)

	// Captioning model metrics
	ModelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "captionburn_model_calls_total",
			Help: "Total number of captioning model calls",
		},
		[]string{"model", "status"},
	)

	ModelRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "captionburn_model_retries_total",
			Help: "Total number of captioning model retries",
		},
	)

	SegmentFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "captionburn_segment_fallbacks_total",
			Help: "Total number of per-segment fallbacks",
		},
		[]string{"kind"}, // model, placeholder
	)

	CaptionsGenerated = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "captionburn_captions_generated",
			Help:    "Number of captions produced per run after post-processing",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// Segmentation metrics
	SegmentsPerRun = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "captionburn_segments_per_run",
			Help:    "Number of segments a long video was split into",
			Buckets: prometheus.LinearBuckets(1, 2, 12),
		},
	)

	// Burn-in metrics
	BurnRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "captionburn_burn_path_retries_total",
			Help: "Total number of burn-in retries via the sanitized subtitle path",
		},
	)

	// Queue metrics
	JobsConsumedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "captionburn_jobs_consumed_total",
			Help: "Total number of caption jobs consumed from the queue",
		},
	)
)

// RecordRunStarted records the start of a pipeline run
func RecordRunStarted(contentType string) {
	RunsStartedTotal.WithLabelValues(contentType).Inc()
	RunsInProgress.Inc()
}

// RecordRunCompleted records a finished run with its terminal status
func RecordRunCompleted(status string) {
	RunsCompletedTotal.WithLabelValues(status).Inc()
	RunsInProgress.Dec()
}

// RecordStageDuration records the duration of one pipeline stage
func RecordStageDuration(stage string, seconds float64) {
	StageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordModelCall records a captioning model invocation
func RecordModelCall(model, status string) {
	ModelCallsTotal.WithLabelValues(model, status).Inc()
}

// RecordSegmentFallback records a per-segment degraded path being taken
func RecordSegmentFallback(kind string) {
	SegmentFallbacksTotal.WithLabelValues(kind).Inc()
}
