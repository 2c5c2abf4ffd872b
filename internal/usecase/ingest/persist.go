package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/infra/ai"
	"newsfromai/internal/observability/logging"
	"newsfromai/internal/observability/metrics"
)

// addComment asks the commenter for an editorial note when commenting is
// enabled and the article has none yet. Failures leave Comment empty.
func (o *Orchestrator) addComment(ctx context.Context, rec *entity.NewsRecord) {
	if !o.cfg.Comment || rec.Fallback || rec.Comment != "" {
		return
	}
	task, err := o.readyTask(ai.TaskCommenter)
	if err != nil {
		return
	}
	system, user := o.prompt(task.Name).Render(map[string]any{
		"title":   rec.Title,
		"content": rec.Content,
	})
	rec.Comment = strings.TrimSpace(o.deps.Generator.Generate(ctx, task, system, user))
}

// persist stores rec. A unique-key conflict counts as a duplicate; any other
// error is logged and counted.
func (o *Orchestrator) persist(ctx context.Context, rec *entity.NewsRecord, stats *RunStats) {
	logger := logging.FromContext(ctx)
	if !rec.Format.IsKnown() {
		metrics.RecordItems(string(rec.Kind), "unknown_format", 1)
		logger.WarnContext(ctx, "unknown article format",
			slog.String("format", string(rec.Format)),
			slog.String("url", rec.SourceURL))
	}
	rec.ContentHTML = ai.RenderHTML(rec.Content)
	rec.CreatedAt = o.nextCreatedAt()

	id, err := o.deps.News.Insert(ctx, rec)
	switch {
	case err == nil:
		rec.ID = id
		stats.Inserted++
		metrics.RecordItems(string(rec.Kind), "inserted", 1)
		logger.DebugContext(ctx, "record inserted",
			slog.Int64("id", id),
			slog.String("url", rec.SourceURL),
			slog.Bool("fallback", rec.Fallback))
		if o.notifier != nil {
			o.notifier.NotifyNewRecord(ctx, rec)
		}
	case errors.Is(err, entity.ErrAlreadyExists):
		stats.Duplicated++
		metrics.RecordItems(string(rec.Kind), "duplicate", 1)
	default:
		stats.PersistErrors++
		metrics.RecordItems(string(rec.Kind), "persist_error", 1)
		logger.ErrorContext(ctx, "failed to persist record",
			slog.String("url", rec.SourceURL),
			slog.Any("error", err))
	}
}

// nextCreatedAt returns a UTC timestamp strictly after the previous one, so
// records inserted in one run keep their insertion order.
func (o *Orchestrator) nextCreatedAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.now().UTC().Truncate(time.Microsecond)
	if !t.After(o.lastCreated) {
		t = o.lastCreated.Add(time.Microsecond)
	}
	o.lastCreated = t
	return t
}
