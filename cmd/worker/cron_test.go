package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	workerPkg "newsfromai/internal/infra/worker"
	"newsfromai/internal/usecase/ingest"
	"newsfromai/internal/usecase/notify"
)

type fakeRunner struct {
	stats *ingest.RunStats
	err   error
	calls atomic.Int32
	// sawDeadline records whether Run received a bounded context.
	sawDeadline atomic.Bool

	// release, when set, holds Run until closed, ignoring ctx.
	release  chan struct{}
	finished atomic.Bool
}

func (f *fakeRunner) Run(ctx context.Context) (*ingest.RunStats, error) {
	f.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		f.sawDeadline.Store(true)
	}
	if f.release != nil {
		<-f.release
	}
	f.finished.Store(true)
	return f.stats, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testWorkerConfig() *workerPkg.WorkerConfig {
	cfg := workerPkg.DefaultConfig()
	cfg.CrawlTimeout = time.Minute
	return &cfg
}

func TestRunCrawlJob_Statuses(t *testing.T) {
	tests := []struct {
		name        string
		stats       *ingest.RunStats
		err         error
		wantStatus  string
		wantSuccess bool
	}{
		{"ok", &ingest.RunStats{Inserted: 3, FeedsProcessed: 1}, nil, "ok", true},
		{"partial", &ingest.RunStats{FailedSteps: []string{"searching: boom"}}, nil, "partial", true},
		{"canceled", &ingest.RunStats{Inserted: 1}, context.DeadlineExceeded, "canceled", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := workerPkg.NewWorkerMetricsWith(prometheus.NewRegistry())
			r := &fakeRunner{stats: tt.stats, err: tt.err}

			runCrawlJob(context.Background(), discardLogger(), r, testWorkerConfig(), m)

			assert.True(t, r.sawDeadline.Load())
			assert.Equal(t, float64(1), testutil.ToFloat64(m.CronJobRunsTotal.WithLabelValues(tt.wantStatus)))
			assert.Equal(t, float64(tt.stats.Inserted), testutil.ToFloat64(m.CronJobInsertedTotal))
			if tt.wantSuccess {
				assert.Greater(t, testutil.ToFloat64(m.CronJobLastSuccessTimestamp), float64(0))
			} else {
				assert.Equal(t, float64(0), testutil.ToFloat64(m.CronJobLastSuccessTimestamp))
			}
		})
	}
}

func TestRunCrawlJob_OverlapCountsAsSkipped(t *testing.T) {
	m := workerPkg.NewWorkerMetricsWith(prometheus.NewRegistry())
	r := &fakeRunner{err: ingest.ErrRunInProgress}

	runCrawlJob(context.Background(), discardLogger(), r, testWorkerConfig(), m)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CronJobSkippedTotal))
	assert.Equal(t, 0, testutil.CollectAndCount(m.CronJobRunsTotal))
}

func TestStartCronWorker_RunOnStartAndShutdown(t *testing.T) {
	m := workerPkg.NewWorkerMetricsWith(prometheus.NewRegistry())
	cfg := testWorkerConfig()
	cfg.CronSchedule = "0 0 1 1 *" // far in the future
	cfg.RunOnStart = true
	r := &fakeRunner{stats: &ingest.RunStats{}}
	health := workerPkg.NewHealthServer(":0", discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- startCronWorker(ctx, discardLogger(), r, cfg, m, health) }()

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	health.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	rec = httptest.NewRecorder()
	health.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStartCronWorker_ShutdownWaitsForStartupRun(t *testing.T) {
	m := workerPkg.NewWorkerMetricsWith(prometheus.NewRegistry())
	cfg := testWorkerConfig()
	cfg.CronSchedule = "0 0 1 1 *"
	cfg.RunOnStart = true
	r := &fakeRunner{stats: &ingest.RunStats{}, release: make(chan struct{})}
	health := workerPkg.NewHealthServer(":0", discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- startCronWorker(ctx, discardLogger(), r, cfg, m, health) }()

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
		t.Fatal("scheduler returned while the startup run was active")
	case <-time.After(100 * time.Millisecond):
	}

	close(r.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.True(t, r.finished.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CronJobRunsTotal.WithLabelValues("ok")))
}

func TestStartCronWorker_InvalidSchedule(t *testing.T) {
	cfg := testWorkerConfig()
	cfg.CronSchedule = "not a schedule"
	err := startCronWorker(context.Background(), discardLogger(), &fakeRunner{}, cfg,
		workerPkg.NewWorkerMetricsWith(prometheus.NewRegistry()),
		workerPkg.NewHealthServer(":0", discardLogger(), nil))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "add cron job"))
}

func TestMetricsMux(t *testing.T) {
	reg := prometheus.NewRegistry()
	workerPkg.NewWorkerMetricsWith(reg).RecordJobRun("ok")
	mux := newMetricsMux(reg, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `worker_cron_job_runs_total{status="ok"} 1`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/channels", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeChannels []notify.ChannelHealth

func (f fakeChannels) ChannelHealth() []notify.ChannelHealth { return f }

func TestChannelHealthHandler(t *testing.T) {
	tests := []struct {
		name     string
		channels fakeChannels
		wantCode int
	}{
		{"all closed", fakeChannels{{Name: "slack", State: "closed"}}, http.StatusOK},
		{"one open", fakeChannels{{Name: "slack", State: "closed"}, {Name: "discord", State: "open", CircuitBreakerOpen: true}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			channelHealthHandler(tt.channels).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/channels", nil))
			assert.Equal(t, tt.wantCode, rec.Code)

			var body ChannelHealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode == http.StatusOK, body.Healthy)
			assert.Len(t, body.Channels, len(tt.channels))
		})
	}
}
