package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"newsfromai/internal/app"
	"newsfromai/internal/config"
	"newsfromai/internal/infra/db"
	workerPkg "newsfromai/internal/infra/worker"
	"newsfromai/internal/observability/logging"
	"newsfromai/internal/observability/tracing"
)

func main() {
	logger := initLogger()
	if err := run(logger); err != nil {
		logger.Error("worker stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := tracing.Setup(logger)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", slog.Any("error", err))
		}
	}()

	// Worker settings never fail: invalid values fall back to defaults.
	workerMetrics := workerPkg.NewWorkerMetrics()
	workerConfig := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	logger.Info("worker configuration loaded",
		slog.String("cron_schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Duration("crawl_timeout", workerConfig.CrawlTimeout),
		slog.Int("health_port", workerConfig.HealthPort),
		slog.Int("metrics_port", workerConfig.MetricsPort),
		slog.Bool("run_on_start", workerConfig.RunOnStart))

	cfgPath := config.PathFromEnv()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger.Info("pipeline configuration loaded",
		slog.String("path", cfgPath),
		slog.Int("feeds", len(cfg.Feeds)),
		slog.Bool("search_ready", cfg.Search.Ready()))

	database, driver, err := initDatabase(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	repos, err := app.NewRepositories(database, driver)
	if err != nil {
		return err
	}
	synced, err := app.SyncFeeds(ctx, repos.Feeds, cfg.Feeds)
	if err != nil {
		return err
	}
	logger.Info("feeds synchronized", slog.Int("feeds", synced))

	application, err := app.Build(cfg, repos, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("failed to close application", slog.Any("error", err))
		}
	}()

	healthServer := workerPkg.NewHealthServer(fmt.Sprintf(":%d", workerConfig.HealthPort), logger, application.Orchestrator)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreClosed(healthServer.Start(gctx))
	})
	var channels channelReporter
	if application.Notifications != nil {
		channels = application.Notifications
	}
	g.Go(func() error {
		return ignoreClosed(startMetricsServer(gctx, logger, workerConfig.MetricsPort, channels))
	})
	g.Go(func() error {
		return startCronWorker(gctx, logger, application.Orchestrator, workerConfig, workerMetrics, healthServer)
	})

	err = g.Wait()
	logger.Info("worker shut down")
	return err
}

// initLogger installs the JSON logger with secret redaction as the default.
func initLogger() *slog.Logger {
	logger := logging.NewLogger()
	slog.SetDefault(logger)
	return logger
}

// initDatabase opens the configured database and applies the schema.
func initDatabase(ctx context.Context, logger *slog.Logger) (*sql.DB, string, error) {
	opts := db.OptionsFromEnv()
	database, err := db.Open(ctx, opts)
	if err != nil {
		return nil, "", err
	}
	if err := db.MigrateUp(database, opts.Driver); err != nil {
		_ = database.Close()
		return nil, "", fmt.Errorf("migrate: %w", err)
	}
	logger.Info("database ready", slog.String("driver", opts.Driver))
	return database, opts.Driver, nil
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
