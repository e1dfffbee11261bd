// Package metrics exposes Prometheus instrumentation for the capture
// scheduler and executor: per-job capture outcomes, tick timing, and
// in-flight concurrency. Grounded in the promauto vector pattern used for
// camera-pipeline metrics in the retrieval pack (asicamera2's jpeg pool
// instrumentation).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CapturesTotal counts every capture attempt, labeled by job name and
	// outcome ("success" or "failure").
	CapturesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timelapse_captures_total",
			Help: "Total capture attempts by job and outcome.",
		},
		[]string{"job", "outcome"},
	)

	// CaptureDuration tracks how long one whole capture attempt takes: the
	// rate-limit wait, the ffmpeg frame grab, and recording the result.
	CaptureDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timelapse_capture_duration_seconds",
			Help:    "Duration of a single frame capture.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"job"},
	)

	// ConsecutiveFailures gauges each job's current consecutive-failure
	// streak, mirroring the in-memory counter the executor tracks for the
	// 3-strike warning threshold.
	ConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "timelapse_consecutive_failures",
			Help: "Current consecutive capture failures per job.",
		},
		[]string{"job"},
	)

	// TickDuration tracks how long one scheduler tick (reconcile + dispatch)
	// takes to complete.
	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "timelapse_scheduler_tick_duration_seconds",
			Help:    "Duration of a scheduler tick.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// JobsInFlight gauges how many jobs currently have a capture in
	// progress.
	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "timelapse_jobs_in_flight",
			Help: "Number of jobs with a capture currently running.",
		},
	)

	// VideoAssemblyDuration tracks how long a background video render took.
	VideoAssemblyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timelapse_video_assembly_duration_seconds",
			Help:    "Duration of a timelapse video assembly run.",
			Buckets: []float64{1, 5, 30, 60, 300, 1800},
		},
		[]string{"job"},
	)
)

// ObserveCapture records the outcome of one capture attempt.
func ObserveCapture(job string, success bool, elapsed time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	CapturesTotal.WithLabelValues(job, outcome).Inc()
	CaptureDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

// ObserveTick records a completed scheduler tick's duration.
func ObserveTick(elapsed time.Duration) {
	TickDuration.Observe(elapsed.Seconds())
}
