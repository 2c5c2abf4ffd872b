package worker

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"newsfromai/internal/usecase/ingest"
)

func TestWorkerMetrics_RecordJobRun(t *testing.T) {
	m := NewWorkerMetricsWith(prometheus.NewRegistry())

	m.RecordJobRun("ok")
	m.RecordJobRun("ok")
	m.RecordJobRun("partial")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CronJobRunsTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CronJobRunsTotal.WithLabelValues("partial")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.CronJobRunsTotal.WithLabelValues("canceled")))
}

func TestWorkerMetrics_RecordStats(t *testing.T) {
	m := NewWorkerMetricsWith(prometheus.NewRegistry())

	m.RecordStats(&ingest.RunStats{Inserted: 4, FeedsProcessed: 2})
	m.RecordStats(&ingest.RunStats{Inserted: 1, FeedsProcessed: 2})
	m.RecordStats(nil)

	assert.Equal(t, float64(5), testutil.ToFloat64(m.CronJobInsertedTotal))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.CronJobFeedsProcessedTotal))
}

func TestWorkerMetrics_SkippedAndLastSuccess(t *testing.T) {
	m := NewWorkerMetricsWith(prometheus.NewRegistry())

	m.RecordSkipped()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CronJobSkippedTotal))

	before := float64(time.Now().Unix())
	m.RecordLastSuccess()
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.CronJobLastSuccessTimestamp), before)
}

func TestWorkerMetrics_Duration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWorkerMetricsWith(reg)
	m.RecordJobDuration(12.5)

	assert.Equal(t, 1, testutil.CollectAndCount(m.CronJobDurationSeconds))
	n, err := testutil.GatherAndCount(reg, "worker_cron_job_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewWorkerMetricsWith_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWorkerMetricsWith(prometheus.NewRegistry())
		NewWorkerMetricsWith(prometheus.NewRegistry())
	})
}
