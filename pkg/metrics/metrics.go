package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once

	// Job metrics
	JobsSubmitted   prometheus.Counter
	JobsCompleted   *prometheus.CounterVec
	JobsInFlight    prometheus.Gauge
	JobDuration     prometheus.Histogram
	QueueDepth      prometheus.Gauge

	// Stage metrics
	StageLatency  *prometheus.HistogramVec
	StageRetries  *prometheus.CounterVec
	StageFailures *prometheus.CounterVec

	// Redaction metrics
	PIIEntitiesDetected *prometheus.CounterVec

	// Artifact metrics
	ArtifactBytesWritten prometheus.Counter
	SynthesisSkipped     prometheus.Counter
)

// Init initializes all metrics and registers them with Prometheus
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		JobsSubmitted = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "audiopipe_jobs_submitted_total",
				Help: "Total number of pipeline jobs submitted",
			},
		)

		JobsCompleted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audiopipe_jobs_finished_total",
				Help: "Total number of pipeline jobs by terminal state",
			},
			[]string{"state"},
		)

		JobsInFlight = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "audiopipe_jobs_in_flight",
				Help: "Number of pipeline jobs currently being processed",
			},
		)

		JobDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "audiopipe_job_duration_seconds",
				Help:    "End-to-end pipeline job duration",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		)

		QueueDepth = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "audiopipe_queue_depth",
				Help: "Number of jobs waiting in the pipeline queue",
			},
		)

		StageLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "audiopipe_stage_latency_seconds",
				Help:    "Per-stage processing latency",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"stage"},
		)

		StageRetries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audiopipe_stage_retries_total",
				Help: "Total number of per-stage retry attempts",
			},
			[]string{"stage"},
		)

		StageFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audiopipe_stage_failures_total",
				Help: "Total number of per-stage failures after retries were exhausted",
			},
			[]string{"stage"},
		)

		PIIEntitiesDetected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audiopipe_pii_entities_detected_total",
				Help: "Total number of PII entities detected by type",
			},
			[]string{"type"},
		)

		ArtifactBytesWritten = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "audiopipe_artifact_bytes_written_total",
				Help: "Total bytes of synthesized audio persisted to the artifact store",
			},
		)

		SynthesisSkipped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "audiopipe_synthesis_skipped_total",
				Help: "Total number of jobs that completed without a synthesized audio artifact",
			},
		)

		registry.MustRegister(
			JobsSubmitted,
			JobsCompleted,
			JobsInFlight,
			JobDuration,
			QueueDepth,
			StageLatency,
			StageRetries,
			StageFailures,
			PIIEntitiesDetected,
			ArtifactBytesWritten,
			SynthesisSkipped,
		)

		logger.Info("Prometheus metrics initialized")
	})
}

// GetRegistry returns the Prometheus registry, or nil before Init
func GetRegistry() *prometheus.Registry {
	return registry
}

// ObserveStage records latency for a completed stage call
func ObserveStage(stage string, start time.Time) {
	if StageLatency != nil {
		StageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
