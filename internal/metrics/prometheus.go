// Package metrics holds the Prometheus collectors for the extraction pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "textrun_jobs_total",
		Help: "Total number of extraction jobs that reached a final status, by status",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "textrun_stage_duration_seconds",
		Help:    "Duration of extraction pipeline stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"stage"})

	FramesProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "textrun_frames_processed_total",
		Help: "Total number of sampled frames run through text detection",
	})

	FramesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "textrun_frames_skipped_total",
		Help: "Total number of sampled frames skipped because they could not be decoded",
	})

	RunsPersistedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "textrun_runs_persisted_total",
		Help: "Total number of text runs written to the job store",
	})

	DetectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "textrun_detection_duration_seconds",
		Help:    "Latency of a single text detection backend call",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend"})

	DetectionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "textrun_detection_failures_total",
		Help: "Total number of failed text detection backend calls",
	}, []string{"backend"})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "textrun_active_jobs",
		Help: "Number of extraction jobs with a running worker",
	})
)
