package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"newsfromai/internal/infra/ai"
	"newsfromai/internal/observability/logging"
	"newsfromai/internal/observability/tracing"
)

// generateKeywords asks the query generator for search keywords.
func (o *Orchestrator) generateKeywords(ctx context.Context, stats *RunStats) ([]string, error) {
	o.setPhase(PhaseGeneratingQueries)
	ctx, span := tracing.StartSpan(ctx, "ingest."+string(PhaseGeneratingQueries))

	task, err := o.readyTask(ai.TaskQueryGenerator)
	if err != nil {
		tracing.EndSpan(span, err)
		return nil, err
	}
	if !o.breaker.Allow() {
		tracing.EndSpan(span, ErrBreakerOpen)
		return nil, ErrBreakerOpen
	}

	r, err := o.shaped(ctx, stats, task, map[string]any{
		"interest": o.cfg.Interest,
		"count":    o.cfg.KeywordsMax,
	}, ai.ShapeStringList)
	if err != nil {
		tracing.EndSpan(span, err)
		return nil, err
	}

	keywords := normalizeKeywords(r.Strings, o.cfg.KeywordsMax)
	if len(keywords) < o.cfg.KeywordsMin {
		err = fmt.Errorf("%w: got %d, need %d", ErrNoKeywords, len(keywords), o.cfg.KeywordsMin)
		tracing.EndSpan(span, err)
		return keywords, err
	}

	logging.FromContext(ctx).InfoContext(ctx, "keywords generated",
		slog.Any("keywords", keywords),
		slog.String("repair_step", string(r.Step)))
	tracing.EndSpan(span, nil)
	return keywords, nil
}

// normalizeKeywords trims, drops empties and case-insensitive duplicates,
// and keeps at most limit entries in reply order.
func normalizeKeywords(raw []string, limit int) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, min(len(raw), limit))
	for _, k := range raw {
		k = strings.Join(strings.Fields(k), " ")
		if k == "" {
			continue
		}
		key := strings.ToLower(k)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, k)
		if len(out) == limit {
			break
		}
	}
	return out
}
