package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/infra/ai"
	"newsfromai/internal/observability/logging"
	"newsfromai/internal/observability/metrics"
	"newsfromai/internal/observability/tracing"
)

// keywordGroup is the set of new search results attributed to one keyword.
type keywordGroup struct {
	keyword string
	items   []entity.RawItem
}

// material is the per-result view handed to the analyzer.
type material struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Summary     string `json:"summary,omitempty"`
	Source      string `json:"source,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// runSearch covers GENERATING_QUERIES, SEARCHING and ANALYZING.
func (o *Orchestrator) runSearch(ctx context.Context, stats *RunStats) {
	logger := logging.FromContext(ctx)
	if o.deps.Search == nil {
		logger.InfoContext(ctx, "search disabled, skipping keyword phases")
		return
	}

	keywords, err := o.generateKeywords(ctx, stats)
	stats.Keywords = keywords
	if err != nil {
		if errors.Is(err, ErrBreakerOpen) {
			stats.BreakerSkipped++
		}
		o.failStep(ctx, stats, PhaseGeneratingQueries, err)
		return
	}

	items := o.search(ctx, keywords, stats)
	if ctx.Err() != nil {
		return
	}
	groups, err := o.filterNew(ctx, keywords, items, stats)
	if err != nil {
		o.failStep(ctx, stats, PhaseSearching, err)
		return
	}
	o.analyze(ctx, groups, stats)
}

// search queries every keyword and merges the results by normalized URL.
// A URL found by several keywords belongs to the last one; the merged list
// keeps first-seen order.
func (o *Orchestrator) search(ctx context.Context, keywords []string, stats *RunStats) []entity.RawItem {
	o.setPhase(PhaseSearching)
	ctx, span := tracing.StartSpan(ctx, "ingest."+string(PhaseSearching),
		attribute.Int("ingest.keywords", len(keywords)))
	defer span.End()

	logger := logging.FromContext(ctx)
	limiter := newLimiter(o.cfg.SearchDelay)

	var merged []entity.RawItem
	index := make(map[string]int)
	for _, kw := range keywords {
		if err := limiter.Wait(ctx); err != nil {
			return merged
		}
		found, err := o.deps.Search.Read(ctx, SourceRequest{
			Kind:     entity.SourceKindSearch,
			Target:   kw,
			Limit:    o.cfg.ResultsPerKeyword,
			Category: kw,
		})
		if err != nil {
			stats.SourceErrors++
			logger.WarnContext(ctx, "search failed, keyword treated as empty",
				slog.String("keyword", kw),
				slog.Any("error", err))
			continue
		}
		stats.SearchResults += len(found)
		for _, it := range found {
			it.Kind = entity.SourceKindSearch
			it.Category = kw
			key := entity.NormalizeURL(it.URL)
			if key == "" {
				key = it.URL
			}
			if i, ok := index[key]; ok {
				merged[i] = it
				continue
			}
			index[key] = len(merged)
			merged = append(merged, it)
		}
	}
	stats.UniqueResults = len(merged)
	span.SetAttributes(attribute.Int("ingest.unique_results", len(merged)))
	return merged
}

// filterNew drops invalid and already stored results and groups the rest
// by keyword, in keyword order.
func (o *Orchestrator) filterNew(ctx context.Context, keywords []string, items []entity.RawItem, stats *RunStats) ([]keywordGroup, error) {
	logger := logging.FromContext(ctx)

	valid := make([]entity.RawItem, 0, len(items))
	for _, it := range items {
		if err := it.Validate(); err != nil {
			stats.Invalid++
			logger.DebugContext(ctx, "dropping invalid search result",
				slog.String("title", it.Title),
				slog.Any("error", err))
			continue
		}
		valid = append(valid, it)
	}
	metrics.RecordItems(string(entity.SourceKindSearch), "invalid", len(items)-len(valid))
	if len(valid) == 0 {
		return nil, nil
	}

	urls := make([]string, len(valid))
	for i, it := range valid {
		urls[i] = it.URL
	}
	exists, err := o.deps.News.ExistsByURLBatch(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("existence check: %w", err)
	}

	byKeyword := make(map[string][]entity.RawItem, len(keywords))
	skipped := 0
	for _, it := range valid {
		if exists[it.URL] {
			skipped++
			continue
		}
		byKeyword[it.Category] = append(byKeyword[it.Category], it)
	}
	stats.Duplicated += skipped
	metrics.RecordItems(string(entity.SourceKindSearch), "duplicate", skipped)

	groups := make([]keywordGroup, 0, len(byKeyword))
	for _, kw := range keywords {
		if list := byKeyword[kw]; len(list) > 0 {
			groups = append(groups, keywordGroup{keyword: kw, items: list})
		}
	}
	return groups, nil
}

// analyze turns each keyword group into one record.
func (o *Orchestrator) analyze(ctx context.Context, groups []keywordGroup, stats *RunStats) {
	if len(groups) == 0 {
		return
	}
	o.setPhase(PhaseAnalyzing)
	ctx, span := tracing.StartSpan(ctx, "ingest."+string(PhaseAnalyzing),
		attribute.Int("ingest.groups", len(groups)))
	defer span.End()

	logger := logging.FromContext(ctx)
	task, err := o.readyTask(ai.TaskNewsAnalyzer)
	if err != nil {
		o.failStep(ctx, stats, PhaseAnalyzing, err)
		return
	}

	for _, g := range groups {
		if ctx.Err() != nil {
			return
		}
		if !o.breaker.Allow() {
			stats.BreakerSkipped++
			metrics.RecordItems(string(entity.SourceKindSearch), "breaker_skipped", len(g.items))
			logger.InfoContext(ctx, "breaker open, keyword skipped",
				slog.String("keyword", g.keyword))
			continue
		}

		r, err := o.shaped(ctx, stats, task, map[string]any{
			"keyword":   g.keyword,
			"materials": materials(g.items),
		}, ai.ShapeArticleOrList)
		if err != nil {
			logger.WarnContext(ctx, "analysis failed, keyword skipped",
				slog.String("keyword", g.keyword),
				slog.Any("error", err))
			continue
		}

		article := articleFromAnalysis(r, g)
		stats.Generated++
		rec := searchRecord(g, article)
		o.addComment(ctx, rec)
		o.persist(ctx, rec, stats)
	}
}

func materials(items []entity.RawItem) []material {
	out := make([]material, len(items))
	for i, it := range items {
		m := material{
			Title:   it.Title,
			URL:     it.URL,
			Summary: it.Summary,
			Source:  it.SourceName,
		}
		if it.PublishedAt != nil {
			m.PublishedAt = entity.FormatTimestamp(*it.PublishedAt)
		}
		out[i] = m
	}
	return out
}

// articleFromAnalysis accepts either reply form. An item list is rendered
// as one multi-source report.
func articleFromAnalysis(r ai.Repaired, g keywordGroup) entity.GeneratedArticle {
	urls := make([]string, len(g.items))
	for i, it := range g.items {
		urls[i] = it.URL
	}
	out := entity.GeneratedArticle{SourceURLs: urls, RepairStep: string(r.Step)}

	if r.Article != nil {
		out.Format = entity.Format(strings.TrimSpace(r.Article.Format))
		out.Content = strings.TrimSpace(r.Article.Body())
		out.Comment = strings.TrimSpace(r.Article.Comment)
		return out
	}

	var b strings.Builder
	for i, it := range r.Items {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n[Source](%s)", strings.TrimSpace(it.Title), strings.TrimSpace(it.Body()), it.Link())
	}
	out.Format = entity.FormatMultiSource
	out.Content = b.String()
	return out
}

func searchRecord(g keywordGroup, a entity.GeneratedArticle) *entity.NewsRecord {
	first := g.items[0]
	payloads := make([]json.RawMessage, 0, len(g.items))
	for _, it := range g.items {
		if len(it.RawPayload) > 0 {
			payloads = append(payloads, it.RawPayload)
		}
	}
	var raw json.RawMessage
	if len(payloads) > 0 {
		if b, err := json.Marshal(payloads); err == nil {
			raw = b
		}
	}
	return &entity.NewsRecord{
		Title:       first.Title,
		Format:      a.Format,
		Content:     a.Content,
		Comment:     a.Comment,
		SourceURL:   first.URL,
		SourceURLs:  a.SourceURLs,
		SourceName:  first.SourceName,
		Kind:        entity.SourceKindSearch,
		Category:    g.keyword,
		RawPayload:  raw,
		PublishedAt: first.PublishedAt,
	}
}
