package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"newsfromai/internal/pkg/config"
)

// WorkerConfig controls scheduling and the side servers of the worker.
//
// Environment variables:
//   - CRON_SCHEDULE: 5-field cron expression (default: "0 * * * *", hourly)
//   - WORKER_TIMEZONE: IANA timezone for the schedule (default: "UTC")
//   - CRAWL_TIMEOUT: upper bound for one run, 1m-4h (default: 30m)
//   - WORKER_HEALTH_PORT: 1024-65535 (default: 9091)
//   - METRICS_PORT: 1024-65535 (default: 9090)
//   - WORKER_RUN_ON_START: run once before the first tick (default: false)
type WorkerConfig struct {
	CronSchedule string
	Timezone     string

	// CrawlTimeout bounds a single run. A run cut short reports "canceled".
	CrawlTimeout time.Duration

	HealthPort  int
	MetricsPort int
	RunOnStart  bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		CronSchedule: "0 * * * *",
		Timezone:     "UTC",
		CrawlTimeout: 30 * time.Minute,
		HealthPort:   9091,
		MetricsPort:  9090,
	}
}

// Validate reports every invalid field at once.
func (c *WorkerConfig) Validate() error {
	var errs []error
	if err := config.ValidateCronSchedule(c.CronSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cron schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.CrawlTimeout); err != nil {
		errs = append(errs, fmt.Errorf("crawl timeout: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}
	if err := config.ValidateIntRange(c.MetricsPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("metrics port: %w", err))
	}
	if c.HealthPort == c.MetricsPort {
		errs = append(errs, fmt.Errorf("health port and metrics port must differ (both %d)", c.HealthPort))
	}
	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// Location resolves Timezone, falling back to UTC.
func (c *WorkerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoadConfigFromEnv reads the worker settings. It never fails: an invalid
// value is logged, counted on metrics and replaced by its default.
// metrics may be nil.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) *WorkerConfig {
	cfg := DefaultConfig()

	var cm *config.ConfigMetrics
	if metrics != nil {
		cm = metrics.ConfigMetrics
	}
	fb := config.NewFallbacks(logger, cm)

	cfg.CronSchedule = config.Track(fb, "cron_schedule",
		config.LoadEnvWithFallback("CRON_SCHEDULE", cfg.CronSchedule, config.ValidateCronSchedule))
	cfg.Timezone = config.Track(fb, "timezone",
		config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone))
	cfg.CrawlTimeout = config.Track(fb, "crawl_timeout",
		config.LoadEnvDuration("CRAWL_TIMEOUT", cfg.CrawlTimeout, func(d time.Duration) error {
			return config.ValidateDuration(d, time.Minute, 4*time.Hour)
		}))
	cfg.HealthPort = config.Track(fb, "health_port",
		config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, portRange))
	cfg.MetricsPort = config.Track(fb, "metrics_port",
		config.LoadEnvInt("METRICS_PORT", cfg.MetricsPort, portRange))
	cfg.RunOnStart = config.Track(fb, "run_on_start",
		config.LoadEnvBool("WORKER_RUN_ON_START", cfg.RunOnStart))

	if cm != nil {
		cm.SetFallbackActive(fb.Applied())
		cm.RecordLoadTimestamp()
	}
	return &cfg
}

func portRange(v int) error {
	return config.ValidateIntRange(v, 1024, 65535)
}
