package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"newsfromai/internal/pkg/config"
	"newsfromai/internal/usecase/ingest"
)

// WorkerMetrics tracks scheduled runs. Configuration metrics are embedded.
//
// Worker-specific metrics:
//   - worker_cron_job_runs_total{status}: ok, partial, canceled, failure
//   - worker_cron_job_duration_seconds
//   - worker_cron_job_records_inserted_total
//   - worker_cron_job_feeds_processed_total
//   - worker_cron_job_skipped_total: ticks dropped because a run was active
//   - worker_cron_job_last_success_timestamp
type WorkerMetrics struct {
	*config.ConfigMetrics

	CronJobRunsTotal            *prometheus.CounterVec
	CronJobDurationSeconds      prometheus.Histogram
	CronJobInsertedTotal        prometheus.Counter
	CronJobFeedsProcessedTotal  prometheus.Counter
	CronJobSkippedTotal         prometheus.Counter
	CronJobLastSuccessTimestamp prometheus.Gauge
}

// NewWorkerMetrics registers the metrics on the default registry.
func NewWorkerMetrics() *WorkerMetrics {
	return NewWorkerMetricsWith(prometheus.DefaultRegisterer)
}

// NewWorkerMetricsWith registers the metrics on reg.
func NewWorkerMetricsWith(reg prometheus.Registerer) *WorkerMetrics {
	f := promauto.With(reg)
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetricsWith(reg, "worker"),

		CronJobRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_cron_job_runs_total",
			Help: "Total number of scheduled runs by status",
		}, []string{"status"}),

		CronJobDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_cron_job_duration_seconds",
			Help:    "Duration of scheduled runs in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800},
		}),

		CronJobInsertedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "worker_cron_job_records_inserted_total",
			Help: "Total number of news records inserted by scheduled runs",
		}),

		CronJobFeedsProcessedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "worker_cron_job_feeds_processed_total",
			Help: "Total number of feeds processed across all scheduled runs",
		}),

		CronJobSkippedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "worker_cron_job_skipped_total",
			Help: "Scheduled ticks skipped because a run was still in progress",
		}),

		CronJobLastSuccessTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "worker_cron_job_last_success_timestamp",
			Help: "Unix timestamp of the last run that finished without being canceled",
		}),
	}
}

// RecordJobRun increments the run counter for status.
func (m *WorkerMetrics) RecordJobRun(status string) {
	m.CronJobRunsTotal.WithLabelValues(status).Inc()
}

// RecordJobDuration observes one run's duration in seconds.
func (m *WorkerMetrics) RecordJobDuration(seconds float64) {
	m.CronJobDurationSeconds.Observe(seconds)
}

// RecordSkipped counts a tick dropped because of an overlapping run.
func (m *WorkerMetrics) RecordSkipped() {
	m.CronJobSkippedTotal.Inc()
}

// RecordLastSuccess stamps the current time.
func (m *WorkerMetrics) RecordLastSuccess() {
	m.CronJobLastSuccessTimestamp.SetToCurrentTime()
}

// RecordStats adds a finished run's counters.
func (m *WorkerMetrics) RecordStats(stats *ingest.RunStats) {
	if stats == nil {
		return
	}
	m.CronJobInsertedTotal.Add(float64(stats.Inserted))
	m.CronJobFeedsProcessedTotal.Add(float64(stats.FeedsProcessed))
}
