// Package app assembles the ingestion pipeline from configuration and an
// open database. It is shared by the worker and the newsctl CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"newsfromai/internal/config"
	"newsfromai/internal/domain/entity"
	"newsfromai/internal/infra/adapter/persistence/postgres"
	"newsfromai/internal/infra/adapter/persistence/sqlite"
	"newsfromai/internal/infra/ai"
	"newsfromai/internal/infra/db"
	"newsfromai/internal/infra/feed"
	"newsfromai/internal/infra/fetcher"
	"newsfromai/internal/infra/notifier"
	"newsfromai/internal/infra/search"
	"newsfromai/internal/observability/metrics"
	"newsfromai/internal/repository"
	"newsfromai/internal/usecase/ingest"
	"newsfromai/internal/usecase/notify"
)

// Repositories groups the persistence gateways for one database.
type Repositories struct {
	News    repository.NewsRepository
	Feeds   repository.FeedRepository
	TaskLog repository.TaskLogRepository
}

// NewRepositories picks the adapter set matching driver.
func NewRepositories(database *sql.DB, driver string) (Repositories, error) {
	switch driver {
	case db.DriverPostgres:
		return Repositories{
			News:    postgres.NewNewsRepo(database),
			Feeds:   postgres.NewFeedRepo(database),
			TaskLog: postgres.NewTaskLogRepo(database),
		}, nil
	case db.DriverSQLite:
		return Repositories{
			News:    sqlite.NewNewsRepo(database),
			Feeds:   sqlite.NewFeedRepo(database),
			TaskLog: sqlite.NewTaskLogRepo(database),
		}, nil
	default:
		return Repositories{}, fmt.Errorf("unsupported database driver %q: %w", driver, entity.ErrConfiguration)
	}
}

// App is a ready-to-run pipeline.
type App struct {
	Orchestrator *ingest.Orchestrator
	Repos        Repositories

	// Notifications is nil when no webhook is enabled.
	Notifications *notify.Service

	generator *ai.Generator
}

// Close waits up to notifyDrainTimeout for pending notifications, then
// releases provider clients held by the generator.
func (a *App) Close() error {
	var errs []error
	if a.Notifications != nil {
		ctx, cancel := context.WithTimeout(context.Background(), notifyDrainTimeout)
		defer cancel()
		if err := a.Notifications.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain notifications: %w", err))
		}
	}
	if a.generator != nil {
		if err := a.generator.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const notifyDrainTimeout = 30 * time.Second

// BuildOption tweaks Build, mostly for tests.
type BuildOption func(*buildOptions)

type buildOptions struct {
	contentFetch *fetcher.ContentFetchConfig
	notify       *notifier.Config
	generator    ingest.Generator
}

// WithContentFetch overrides the CONTENT_FETCH_* environment settings.
func WithContentFetch(c fetcher.ContentFetchConfig) BuildOption {
	return func(o *buildOptions) { o.contentFetch = &c }
}

// WithNotify overrides the DISCORD_*, SLACK_* and NOTIFY_* settings.
func WithNotify(c notifier.Config) BuildOption {
	return func(o *buildOptions) { o.notify = &c }
}

// WithGenerator replaces the provider-backed generator.
func WithGenerator(g ingest.Generator) BuildOption {
	return func(o *buildOptions) { o.generator = g }
}

// Build wires the orchestrator. Search is left out when its credentials are
// missing; feeds are always read.
func Build(cfg *config.Config, repos Repositories, logger *slog.Logger, opts ...BuildOption) (*App, error) {
	if cfg == nil {
		return nil, errors.New("build app: nil config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	a := &App{Repos: repos}
	deps := ingest.Deps{
		News:     repos.News,
		FeedRepo: repos.Feeds,
		Feeds:    feed.NewReader(nil),
	}

	if bo.generator != nil {
		deps.Generator = bo.generator
	} else {
		a.generator = ai.NewGenerator(ai.WithTaskLog(repos.TaskLog), ai.WithLogger(logger))
		deps.Generator = a.generator
	}

	if cfg.Search.Ready() {
		deps.Search = search.NewReader(search.DefaultHTTPClient(cfg.Search.Timeout), search.Config{
			Endpoint:     cfg.Search.Endpoint,
			APIKey:       cfg.Search.APIKey,
			EngineID:     cfg.Search.EngineID,
			Num:          cfg.Search.ResultsPerKeyword,
			DateRestrict: cfg.Search.DateRestrict,
		})
	} else {
		logger.Warn("search not configured, keyword phases disabled",
			slog.Bool("disabled", cfg.Search.Disabled),
			slog.Bool("api_key_set", cfg.Search.APIKey != ""))
	}

	fc := fetcher.LoadConfigFromEnv(logger)
	if bo.contentFetch != nil {
		fc = *bo.contentFetch
	}
	if fc.Enabled {
		if err := fc.Validate(); err != nil {
			return nil, fmt.Errorf("content fetch config: %w", err)
		}
		deps.Content = fetcher.NewReadabilityFetcher(fc)
	}

	orchOpts := []ingest.Option{ingest.WithLogger(logger)}
	nc := notifier.LoadConfigFromEnv(logger)
	if bo.notify != nil {
		nc = *bo.notify
	}
	if nc.Enabled() {
		var channels []notify.Channel
		for _, n := range notifier.Build(nc, logger) {
			channels = append(channels, n)
		}
		a.Notifications = notify.NewService(channels, nc.MaxConcurrent, notify.WithLogger(logger))
		orchOpts = append(orchOpts, ingest.WithNotifier(a.Notifications))
		logger.Info("notifications enabled",
			slog.Bool("discord", nc.Discord.Enabled),
			slog.Bool("slack", nc.Slack.Enabled))
	}

	a.Orchestrator = ingest.NewOrchestrator(OrchestratorConfig(cfg), deps, orchOpts...)
	return a, nil
}

// OrchestratorConfig maps the file configuration onto run settings.
func OrchestratorConfig(cfg *config.Config) ingest.Config {
	p := cfg.Pipeline
	return ingest.Config{
		Interest:          cfg.Interest,
		KeywordsMin:       cfg.Keywords.Min,
		KeywordsMax:       cfg.Keywords.Max,
		Tasks:             cfg.Tasks,
		Prompts:           cfg.Prompts,
		ResultsPerKeyword: cfg.Search.ResultsPerKeyword,
		SearchDelay:       p.SearchDelay,
		ItemDelay:         p.ItemDelay,
		FeedDelay:         p.FeedDelay,
		MaxContentRunes:   p.MaxContentRunes,
		EnrichBelowRunes:  p.EnrichBelowRunes,
		BreakerThreshold:  p.BreakerThreshold,
		BreakerCooldown:   p.BreakerCooldown,
		Comment:           p.Comment,
	}
}

// SyncFeeds upserts every configured feed, disabled ones included so they
// get marked inactive. It returns the number of feeds written.
func SyncFeeds(ctx context.Context, repo repository.FeedRepository, feeds []config.FeedConfig) (int, error) {
	n := 0
	active := 0
	for _, fc := range feeds {
		f := fc.Entity()
		if _, err := repo.Upsert(ctx, f); err != nil {
			return n, fmt.Errorf("sync feed %s: %w", f.URL, err)
		}
		n++
		if f.Active {
			active++
		}
	}
	metrics.UpdateFeedsTotal(active)
	return n, nil
}
