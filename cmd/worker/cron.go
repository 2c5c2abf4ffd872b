package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	workerPkg "newsfromai/internal/infra/worker"
	"newsfromai/internal/usecase/ingest"
)

// runner is the part of the orchestrator the scheduler drives.
type runner interface {
	Run(ctx context.Context) (*ingest.RunStats, error)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// startCronWorker schedules runs until ctx is canceled. Ticks that fire
// while a run is active are skipped. On shutdown it waits for the active
// run, including the run-on-start one, which sees ctx canceled and stops at
// the next item.
func startCronWorker(ctx context.Context, logger *slog.Logger, r runner, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics, healthServer *workerPkg.HealthServer) error {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	_, err := c.AddFunc(cfg.CronSchedule, func() {
		runCrawlJob(ctx, logger, r, cfg, metrics)
	})
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	c.Start()

	healthServer.SetReady(true)
	logger.Info("worker started",
		slog.String("schedule", cfg.CronSchedule),
		slog.String("timezone", cfg.Timezone))

	var startup sync.WaitGroup
	if cfg.RunOnStart {
		startup.Add(1)
		go func() {
			defer startup.Done()
			runCrawlJob(ctx, logger, r, cfg, metrics)
		}()
	}

	<-ctx.Done()
	healthServer.SetReady(false)
	logger.Info("stopping scheduler, waiting for active run")
	<-c.Stop().Done()
	startup.Wait()
	return nil
}

// runCrawlJob executes one run bounded by CrawlTimeout and records its
// outcome. A run rejected because another is active counts as skipped.
func runCrawlJob(parent context.Context, logger *slog.Logger, r runner, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, cfg.CrawlTimeout)
	defer cancel()

	stats, err := r.Run(ctx)
	if errors.Is(err, ingest.ErrRunInProgress) {
		metrics.RecordSkipped()
		logger.Warn("previous run still in progress, tick skipped")
		return
	}

	status := "failure"
	switch {
	case stats != nil && err != nil:
		status = "canceled"
	case stats != nil:
		status = stats.Status()
	}
	metrics.RecordJobRun(status)
	metrics.RecordJobDuration(time.Since(start).Seconds())
	metrics.RecordStats(stats)

	if err != nil {
		logger.Warn("run ended early", slog.String("status", status), slog.Any("error", err))
		return
	}
	metrics.RecordLastSuccess()
}
