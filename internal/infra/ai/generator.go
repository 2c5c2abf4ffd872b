package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/observability/metrics"
	"newsfromai/internal/observability/tracing"
	"newsfromai/internal/repository"
	"newsfromai/internal/resilience/circuitbreaker"
)

// maxLoggedReply caps model replies copied into logs on shape failures.
const maxLoggedReply = 300

// Generator calls the configured provider for a task. It never panics and
// never retries; every call produces one AITaskLog row when a task log
// repository is configured.
type Generator struct {
	httpClient *http.Client
	factory    CompleterFactory
	taskLog    repository.TaskLogRepository
	logger     *slog.Logger
	now        func() time.Time

	mu         sync.Mutex
	completers map[string]Completer
	breakers   map[Provider]*circuitbreaker.CircuitBreaker
}

// Option configures a Generator.
type Option func(*Generator)

// WithHTTPClient sets the client used by HTTP-based providers.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Generator) { g.httpClient = c }
}

// WithCompleterFactory replaces the provider factory.
func WithCompleterFactory(f CompleterFactory) Option {
	return func(g *Generator) { g.factory = f }
}

// WithTaskLog enables the per-call audit log.
func WithTaskLog(r repository.TaskLogRepository) Option {
	return func(g *Generator) { g.taskLog = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator creates a Generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		factory:    NewCompleter,
		logger:     slog.Default(),
		now:        time.Now,
		completers: make(map[string]Completer),
		breakers:   make(map[Provider]*circuitbreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.httpClient == nil {
		g.httpClient = DefaultHTTPClient()
	}
	return g
}

// DefaultHTTPClient returns a client with a 10s dial timeout and traced
// transport. The total deadline comes from the task timeout.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		Transport: tracing.Transport(&http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		}),
	}
}

// Generate returns the provider's reply text, or "" on any failure. Each
// failure is logged with the task, provider, status code and a truncated
// response body.
func (g *Generator) Generate(ctx context.Context, task TaskConfig, system, user string) string {
	start := g.now()
	text, err := g.complete(ctx, task, system, user)
	g.finish(ctx, task, "", g.now().Sub(start), err)
	if err != nil {
		return ""
	}
	return text
}

// GenerateShaped calls the provider and repairs the reply into shape.
// Errors match entity.ErrConfiguration, entity.ErrTransport or
// entity.ErrContentShape.
func (g *Generator) GenerateShaped(ctx context.Context, task TaskConfig, system, user string, shape Shape, allowOpaque bool) (Repaired, error) {
	start := g.now()
	text, err := g.complete(ctx, task, system, user)
	if err != nil {
		g.finish(ctx, task, "", g.now().Sub(start), err)
		return Repaired{}, err
	}

	r, err := Repair(text, shape, allowOpaque)
	if err != nil {
		g.logger.WarnContext(ctx, "ai reply could not be repaired",
			slog.String("task", task.Name),
			slog.String("shape", shape.String()),
			slog.String("reply", truncate(text, maxLoggedReply)))
		g.finish(ctx, task, "", g.now().Sub(start), err)
		return Repaired{}, err
	}

	metrics.RecordRepairStep(task.Name, string(r.Step))
	g.finish(ctx, task, r.Step, g.now().Sub(start), nil)
	return r, nil
}

func (g *Generator) complete(ctx context.Context, task TaskConfig, system, user string) (string, error) {
	if task.Disabled {
		return "", fmt.Errorf("task %q is disabled: %w", task.Name, entity.ErrConfiguration)
	}
	if err := task.Validate(); err != nil {
		return "", err
	}
	if !task.HasCredentials() {
		return "", fmt.Errorf("task %q: missing API key (%s): %w", task.Name, task.KeyEnv(), entity.ErrConfiguration)
	}

	completer, err := g.completerFor(task)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, task.Timeout)
	defer cancel()
	ctx, span := tracing.StartSpan(ctx, "ai."+task.Name,
		attribute.String("ai.provider", string(task.Provider)),
		attribute.String("ai.model", task.Model))

	breaker := g.breakerFor(task.Provider)
	res, err := breaker.Execute(func() (interface{}, error) {
		return completer.Complete(ctx, system, user)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%s api unavailable: circuit breaker %s: %w", task.Provider, breaker.State(), entity.ErrTransport)
		}
		tracing.EndSpan(span, err)
		return "", err
	}
	tracing.EndSpan(span, nil)
	return res.(string), nil
}

func (g *Generator) completerFor(task TaskConfig) (Completer, error) {
	key := strings.Join([]string{task.Name, string(task.Provider), task.Endpoint, task.Model}, "|")

	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.completers[key]; ok {
		return c, nil
	}
	c, err := g.factory(task, g.httpClient)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", task.Name, err)
	}
	g.completers[key] = c
	return c, nil
}

func (g *Generator) breakerFor(p Provider) *circuitbreaker.CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.breakers[p]; ok {
		return b
	}
	b := circuitbreaker.New(circuitbreaker.AIProviderConfig(string(p)))
	g.breakers[p] = b
	return b
}

// finish records metrics, the log line and the audit row for one call.
func (g *Generator) finish(ctx context.Context, task TaskConfig, step RepairStep, d time.Duration, err error) {
	status := StatusOf(err)
	metrics.RecordAICall(task.Name, string(task.Provider), string(status), d)

	errText := ""
	if err != nil {
		errText = scrub(err.Error(), task.APIKey)
		attrs := []any{
			slog.String("task", task.Name),
			slog.String("provider", string(task.Provider)),
			slog.String("model", task.Model),
			slog.String("status", string(status)),
			slog.Duration("duration", d),
			slog.String("error", errText),
		}
		var pe *ProviderError
		if errors.As(err, &pe) && pe.StatusCode > 0 {
			attrs = append(attrs, slog.Int("status_code", pe.StatusCode), slog.String("body", scrub(pe.Body, task.APIKey)))
		}
		g.logger.WarnContext(ctx, "ai call failed", attrs...)
	} else {
		g.logger.DebugContext(ctx, "ai call completed",
			slog.String("task", task.Name),
			slog.String("repair_step", string(step)),
			slog.Duration("duration", d))
	}

	if g.taskLog == nil {
		return
	}
	row := &entity.AITaskLog{
		Task:       task.Name,
		Model:      task.Model,
		Status:     status,
		RepairStep: string(step),
		Duration:   d,
		Error:      truncate(errText, maxErrorBody),
		CreatedAt:  g.now().UTC(),
	}
	if recErr := g.taskLog.Record(context.WithoutCancel(ctx), row); recErr != nil {
		g.logger.WarnContext(ctx, "failed to record ai task log",
			slog.String("task", task.Name),
			slog.Any("error", recErr))
	}
}

// Close releases provider clients that hold connections.
func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var errs []error
	for key, c := range g.completers {
		if cl, ok := c.(io.Closer); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		delete(g.completers, key)
	}
	return errors.Join(errs...)
}

// StatusOf maps a call error to its audit status.
func StatusOf(err error) entity.AITaskStatus {
	switch {
	case err == nil:
		return entity.AITaskOK
	case errors.Is(err, entity.ErrConfiguration):
		return entity.AITaskConfigError
	case errors.Is(err, entity.ErrContentShape):
		return entity.AITaskShapeError
	default:
		return entity.AITaskTransportError
	}
}

// scrub removes a literal secret from s.
func scrub(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "[REDACTED]")
}
