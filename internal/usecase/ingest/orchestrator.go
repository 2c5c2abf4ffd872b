package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/infra/ai"
	"newsfromai/internal/observability/logging"
	"newsfromai/internal/observability/metrics"
	"newsfromai/internal/observability/tracing"
	"newsfromai/internal/repository"
	"newsfromai/internal/resilience/circuitbreaker"
)

// ShapeBreakerName labels the content-shape breaker in logs and metrics.
const ShapeBreakerName = "ai-content-shape"

// Generator is the AI surface the orchestrator needs. *ai.Generator
// implements it.
type Generator interface {
	Generate(ctx context.Context, task ai.TaskConfig, system, user string) string
	GenerateShaped(ctx context.Context, task ai.TaskConfig, system, user string, shape ai.Shape, allowOpaque bool) (ai.Repaired, error)
}

// Config holds the run settings resolved from the configuration file.
type Config struct {
	Interest          string
	KeywordsMin       int
	KeywordsMax       int
	Tasks             map[string]ai.TaskConfig
	Prompts           map[string]ai.Prompt
	ResultsPerKeyword int
	SearchDelay       time.Duration
	ItemDelay         time.Duration
	FeedDelay         time.Duration
	MaxContentRunes   int
	EnrichBelowRunes  int
	BreakerThreshold  int
	BreakerCooldown   time.Duration
	Comment           bool
}

// DefaultConfig returns the settings used when the file leaves them unset.
func DefaultConfig() Config {
	return Config{
		KeywordsMin:       1,
		KeywordsMax:       5,
		ResultsPerKeyword: 10,
		SearchDelay:       time.Second,
		ItemDelay:         time.Second,
		FeedDelay:         2 * time.Second,
		MaxContentRunes:   12000,
		EnrichBelowRunes:  400,
		BreakerThreshold:  3,
		BreakerCooldown:   10 * time.Minute,
	}
}

// Deps are the collaborators of a run. Search, Feeds and Content may be nil,
// which disables the matching step.
type Deps struct {
	Generator Generator
	Search    SourceReader
	Feeds     SourceReader
	Content   ContentFetcher
	News      repository.NewsRepository
	FeedRepo  repository.FeedRepository
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the clock used for timestamps and the breaker.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the base logger. Each run derives a logger tagged with
// its run_id.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// RecordNotifier is told about every newly inserted record. It must not
// block.
type RecordNotifier interface {
	NotifyNewRecord(ctx context.Context, rec *entity.NewsRecord)
}

// WithNotifier announces inserted records to n.
func WithNotifier(n RecordNotifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// Orchestrator drives ingestion runs. It is safe for concurrent use, but
// only one run executes at a time; the content-shape breaker and the
// CreatedAt sequence persist across runs.
type Orchestrator struct {
	cfg      Config
	deps     Deps
	logger   *slog.Logger
	now      func() time.Time
	notifier RecordNotifier

	breaker *circuitbreaker.Consecutive

	running sync.Mutex

	mu          sync.Mutex
	phase       Phase
	lastCreated time.Time
	lastStats   *RunStats
}

// NewOrchestrator builds an Orchestrator. Zero-valued limits in cfg fall
// back to DefaultConfig.
func NewOrchestrator(cfg Config, deps Deps, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.KeywordsMin <= 0 {
		cfg.KeywordsMin = def.KeywordsMin
	}
	if cfg.KeywordsMax < cfg.KeywordsMin {
		cfg.KeywordsMax = max(def.KeywordsMax, cfg.KeywordsMin)
	}
	if cfg.ResultsPerKeyword <= 0 {
		cfg.ResultsPerKeyword = def.ResultsPerKeyword
	}
	if cfg.MaxContentRunes <= 0 {
		cfg.MaxContentRunes = def.MaxContentRunes
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = def.BreakerThreshold
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = def.BreakerCooldown
	}

	o := &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: slog.Default(),
		now:    time.Now,
		phase:  PhaseIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.breaker = circuitbreaker.NewConsecutive(circuitbreaker.ConsecutiveConfig{
		Name:      ShapeBreakerName,
		Threshold: cfg.BreakerThreshold,
		Cooldown:  cfg.BreakerCooldown,
		Now:       o.now,
	})
	return o
}

// Phase returns the step the current run is in, or the last one reached.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// LastStats returns the statistics of the most recent finished run.
func (o *Orchestrator) LastStats() *RunStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastStats
}

// BreakerOpen reports whether AI calls are currently suspended.
func (o *Orchestrator) BreakerOpen() bool {
	return o.breaker.IsOpen()
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

// Run executes one ingestion run: keyword generation, search and analysis,
// then feed summarization. Step failures are recorded in the returned stats
// and never abort the run. The error is non-nil only when another run is in
// progress or ctx ended; stats are returned in the latter case too.
func (o *Orchestrator) Run(ctx context.Context) (*RunStats, error) {
	if !o.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer o.running.Unlock()

	stats := &RunStats{RunID: uuid.NewString()}
	logger := logging.WithRunID(o.logger, stats.RunID)
	ctx = logging.WithLogger(ctx, logger)
	ctx, span := tracing.StartSpan(ctx, "ingest.run", attribute.String("run_id", stats.RunID))

	start := o.now()
	logger.InfoContext(ctx, "ingest run started")

	o.runSearch(ctx, stats)
	if ctx.Err() == nil {
		o.runFeeds(ctx, stats)
	}

	stats.Duration = o.now().Sub(start)
	o.setPhase(PhaseDone)

	status := stats.Status()
	err := ctx.Err()
	if err != nil {
		status = "canceled"
	}
	metrics.RecordRun(status, stats.Duration)
	if total, cerr := o.deps.News.Count(context.WithoutCancel(ctx)); cerr == nil {
		metrics.UpdateNewsTotal(total)
	}

	o.mu.Lock()
	o.lastStats = stats
	o.mu.Unlock()

	attrs := append([]any{slog.String("status", status)}, stats.LogAttrs()...)
	if err != nil {
		logger.WarnContext(ctx, "ingest run canceled", attrs...)
	} else {
		logger.InfoContext(ctx, "ingest run completed", attrs...)
	}
	span.SetAttributes(
		attribute.Int("ingest.inserted", stats.Inserted),
		attribute.Int("ingest.generated", stats.Generated),
		attribute.String("ingest.status", status))
	tracing.EndSpan(span, err)
	return stats, err
}

// failStep records a phase that ended early.
func (o *Orchestrator) failStep(ctx context.Context, stats *RunStats, phase Phase, err error) {
	stats.fail(phase, err)
	metrics.RecordPhaseFailure(string(phase))
	logging.FromContext(ctx).WarnContext(ctx, "ingest step failed",
		slog.String("phase", string(phase)),
		slog.Any("error", err))
}

// readyTask returns the task configuration when it can be called.
func (o *Orchestrator) readyTask(name string) (ai.TaskConfig, error) {
	task, ok := o.cfg.Tasks[name]
	if !ok {
		return ai.TaskConfig{}, fmt.Errorf("task %q not configured: %w", name, entity.ErrConfiguration)
	}
	if task.Name == "" {
		task.Name = name
	}
	if task.Disabled {
		return task, fmt.Errorf("task %q is disabled: %w", name, entity.ErrConfiguration)
	}
	if !task.HasCredentials() {
		return task, fmt.Errorf("task %q: missing API key (%s): %w", name, task.KeyEnv(), entity.ErrConfiguration)
	}
	if err := task.Validate(); err != nil {
		return task, err
	}
	return task, nil
}

func (o *Orchestrator) prompt(name string) ai.Prompt {
	if p, ok := o.cfg.Prompts[name]; ok && p.User != "" {
		return p
	}
	return ai.DefaultPrompts()[name]
}

// shaped runs a strict AI call and feeds its outcome to the breaker.
// Transport and configuration errors leave the breaker untouched.
func (o *Orchestrator) shaped(ctx context.Context, stats *RunStats, task ai.TaskConfig, vars map[string]any, shape ai.Shape) (ai.Repaired, error) {
	system, user := o.prompt(task.Name).Render(vars)
	r, err := o.deps.Generator.GenerateShaped(ctx, task, system, user, shape, false)
	switch {
	case err == nil:
		o.breaker.RecordSuccess()
	case errors.Is(err, entity.ErrContentShape):
		if o.breaker.RecordFailure() {
			logging.FromContext(ctx).WarnContext(ctx, "ai calls suspended after consecutive shape failures",
				slog.Int("threshold", o.cfg.BreakerThreshold),
				slog.Duration("cooldown", o.cfg.BreakerCooldown))
		}
	}
	countFailure(stats, err)
	return r, err
}

func countFailure(stats *RunStats, err error) {
	switch {
	case err == nil, errors.Is(err, entity.ErrConfiguration):
	case errors.Is(err, entity.ErrContentShape):
		stats.ShapeFailures++
	default:
		stats.TransportFailures++
	}
}

// newLimiter spaces calls by delay. The first call never waits.
func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}
