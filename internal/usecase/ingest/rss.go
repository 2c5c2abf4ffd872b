package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/infra/ai"
	"newsfromai/internal/observability/logging"
	"newsfromai/internal/observability/metrics"
	"newsfromai/internal/observability/tracing"
)

// TruncationMarker is appended to feed content cut to MaxContentRunes.
const TruncationMarker = "... (content truncated)"

// maxFetchError caps the last_error text stored for a feed.
const maxFetchError = 500

// runFeeds covers RSS_FETCHING and SUMMARIZING for every active feed.
func (o *Orchestrator) runFeeds(ctx context.Context, stats *RunStats) {
	if o.deps.Feeds == nil || o.deps.FeedRepo == nil {
		logging.FromContext(ctx).InfoContext(ctx, "feed reader disabled, skipping rss phases")
		return
	}
	o.setPhase(PhaseRSSFetching)
	ctx, span := tracing.StartSpan(ctx, "ingest."+string(PhaseRSSFetching))
	defer span.End()

	feeds, err := o.deps.FeedRepo.ListActive(ctx)
	if err != nil {
		o.failStep(ctx, stats, PhaseRSSFetching, fmt.Errorf("list active feeds: %w", err))
		return
	}
	metrics.UpdateFeedsTotal(len(feeds))
	span.SetAttributes(attribute.Int("ingest.feeds", len(feeds)))

	feedLimiter := newLimiter(o.cfg.FeedDelay)
	itemLimiter := newLimiter(o.cfg.ItemDelay)
	for _, f := range feeds {
		if err := feedLimiter.Wait(ctx); err != nil {
			return
		}
		o.processFeed(ctx, f, itemLimiter, stats)
	}
}

func (o *Orchestrator) processFeed(ctx context.Context, f *entity.Feed, itemLimiter *rate.Limiter, stats *RunStats) {
	logger := logging.FromContext(ctx).With(slog.Int64("feed_id", f.ID), slog.String("feed_url", f.URL))
	o.setPhase(PhaseRSSFetching)

	items, err := o.deps.Feeds.Read(ctx, SourceRequest{
		Kind:       entity.SourceKindRSS,
		Target:     f.URL,
		Limit:      f.Limit(),
		Category:   f.Category,
		FeedID:     f.ID,
		SourceName: f.Name,
	})
	o.recordFetch(ctx, f, err)
	if err != nil {
		stats.FeedsFailed++
		logger.WarnContext(ctx, "feed read failed, feed treated as empty", slog.Any("error", err))
		return
	}
	stats.FeedsProcessed++
	stats.FeedItems += len(items)

	o.setPhase(PhaseSummarizing)
	for _, it := range items {
		if ctx.Err() != nil {
			return
		}
		it.Kind = entity.SourceKindRSS
		it.FeedID = f.ID
		if it.Category == "" {
			it.Category = f.Category
		}

		if err := it.Validate(); err != nil {
			stats.Invalid++
			metrics.RecordItems(string(entity.SourceKindRSS), "invalid", 1)
			logger.DebugContext(ctx, "dropping invalid feed item",
				slog.String("title", it.Title),
				slog.Any("error", err))
			continue
		}

		seen, err := o.alreadyIngested(ctx, it)
		if err != nil {
			stats.PersistErrors++
			logger.WarnContext(ctx, "existence check failed, item skipped",
				slog.String("url", it.URL),
				slog.Any("error", err))
			continue
		}
		if seen {
			stats.Duplicated++
			metrics.RecordItems(string(entity.SourceKindRSS), "duplicate", 1)
			continue
		}

		if !o.breaker.Allow() {
			stats.Deferred++
			metrics.RecordItems(string(entity.SourceKindRSS), "deferred", 1)
			continue
		}

		if err := itemLimiter.Wait(ctx); err != nil {
			return
		}
		rec := o.summarize(ctx, it, stats)
		o.addComment(ctx, rec)
		o.persist(ctx, rec, stats)
	}
}

// alreadyIngested checks (feed, guid) when the item has a GUID, else its URL.
func (o *Orchestrator) alreadyIngested(ctx context.Context, it entity.RawItem) (bool, error) {
	if it.GUID != "" {
		return o.deps.News.ExistsByFeedGUID(ctx, it.FeedID, it.GUID)
	}
	return o.deps.News.ExistsByURL(ctx, it.URL)
}

func (o *Orchestrator) recordFetch(ctx context.Context, f *entity.Feed, fetchErr error) {
	if f.ID == 0 {
		return
	}
	lastErr := ""
	if fetchErr != nil {
		lastErr = truncateRunes(fetchErr.Error(), maxFetchError, "")
	}
	if err := o.deps.FeedRepo.RecordFetch(context.WithoutCancel(ctx), f.ID, o.now().UTC(), lastErr); err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "failed to record feed fetch",
			slog.Int64("feed_id", f.ID),
			slog.Any("error", err))
	}
}

// summarize produces the record for one feed item. A failed or empty AI
// reply yields the fallback template.
func (o *Orchestrator) summarize(ctx context.Context, it entity.RawItem, stats *RunStats) *entity.NewsRecord {
	logger := logging.FromContext(ctx)
	content := o.enrich(ctx, it)
	content = truncateRunes(content, o.cfg.MaxContentRunes, TruncationMarker)

	rec := &entity.NewsRecord{
		Title:       it.Title,
		SourceURL:   it.URL,
		SourceURLs:  []string{it.URL},
		SourceName:  it.SourceName,
		Kind:        entity.SourceKindRSS,
		Category:    it.Category,
		FeedID:      it.FeedID,
		FeedGUID:    it.GUID,
		RawPayload:  it.RawPayload,
		PublishedAt: it.PublishedAt,
	}

	published := ""
	if it.PublishedAt != nil {
		published = entity.FormatTimestamp(*it.PublishedAt)
	}

	task, err := o.readyTask(ai.TaskRSSSummarizer)
	if err == nil {
		system, user := o.prompt(task.Name).Render(map[string]any{
			"source":       it.SourceName,
			"title":        it.Title,
			"url":          it.URL,
			"published_at": published,
			"content":      content,
		})
		var r ai.Repaired
		r, err = o.deps.Generator.GenerateShaped(ctx, task, system, user, ai.ShapeArticle, true)
		if err == nil && r.Article != nil && strings.TrimSpace(r.Article.Body()) != "" {
			stats.Generated++
			rec.Format = entity.Format(strings.TrimSpace(r.Article.Format))
			if rec.Format == "" {
				rec.Format = entity.FormatSingleDeepDive
			}
			rec.Content = strings.TrimSpace(r.Article.Body())
			rec.Comment = strings.TrimSpace(r.Article.Comment)
			return rec
		}
	}

	if err != nil {
		countFailure(stats, err)
	}
	stats.Generated++
	stats.Fallbacks++
	metrics.RecordItems(string(entity.SourceKindRSS), "fallback", 1)
	logger.InfoContext(ctx, "using fallback summary",
		slog.String("url", it.URL),
		slog.Any("error", err))
	rec.Format = entity.FormatSingleDeepDive
	rec.Fallback = true
	rec.Content = FallbackContent(it)
	return rec
}

// FallbackContent is the deterministic article used when the summarizer
// produced nothing.
func FallbackContent(it entity.RawItem) string {
	return fmt.Sprintf("## %s\n\n%s\n\n[Read original](%s)", it.Title, it.Summary, it.URL)
}

// enrich returns the item body, replaced by the fetched page text when the
// body is shorter than EnrichBelowRunes and the page text is longer.
func (o *Orchestrator) enrich(ctx context.Context, it entity.RawItem) string {
	content := it.Content
	if strings.TrimSpace(content) == "" {
		content = it.Summary
	}
	if o.deps.Content == nil || o.cfg.EnrichBelowRunes <= 0 {
		return content
	}
	if utf8.RuneCountInString(content) >= o.cfg.EnrichBelowRunes {
		return content
	}
	full, err := o.deps.Content.FetchContent(ctx, it.URL)
	if err != nil {
		logging.FromContext(ctx).DebugContext(ctx, "content enrichment failed, using feed body",
			slog.String("url", it.URL),
			slog.Any("error", err))
		return content
	}
	if utf8.RuneCountInString(full) > utf8.RuneCountInString(content) {
		return full
	}
	return content
}

// truncateRunes cuts s to limit runes and appends marker when it did.
func truncateRunes(s string, limit int, marker string) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + marker
}
