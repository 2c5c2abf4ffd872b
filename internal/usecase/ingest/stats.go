package ingest

import (
	"fmt"
	"log/slog"
	"time"
)

// Phase is a step of a run.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseGeneratingQueries Phase = "generating_queries"
	PhaseSearching         Phase = "searching"
	PhaseAnalyzing         Phase = "analyzing"
	PhaseRSSFetching       Phase = "rss_fetching"
	PhaseSummarizing       Phase = "summarizing"
	PhaseDone              Phase = "done"
)

// RunStats summarizes one run. FailedSteps lists the phases that ended
// early, as "phase: reason"; a run with failed steps still completes.
type RunStats struct {
	RunID             string
	Keywords          []string
	SearchResults     int
	UniqueResults     int
	Generated         int
	Inserted          int
	Duplicated        int
	Invalid           int
	Deferred          int
	BreakerSkipped    int
	ShapeFailures     int
	TransportFailures int
	Fallbacks         int
	PersistErrors     int
	SourceErrors      int
	FeedsProcessed    int
	FeedsFailed       int
	FeedItems         int
	FailedSteps       []string
	Duration          time.Duration
}

func (s *RunStats) fail(phase Phase, reason error) {
	s.FailedSteps = append(s.FailedSteps, fmt.Sprintf("%s: %v", phase, reason))
}

// Status is "ok" for a clean run and "partial" when any step failed.
func (s *RunStats) Status() string {
	if len(s.FailedSteps) > 0 {
		return "partial"
	}
	return "ok"
}

// LogAttrs returns the counters as slog attributes.
func (s *RunStats) LogAttrs() []any {
	return []any{
		slog.Int("keywords", len(s.Keywords)),
		slog.Int("search_results", s.SearchResults),
		slog.Int("unique_results", s.UniqueResults),
		slog.Int("feeds_processed", s.FeedsProcessed),
		slog.Int("feeds_failed", s.FeedsFailed),
		slog.Int("feed_items", s.FeedItems),
		slog.Int("generated", s.Generated),
		slog.Int("inserted", s.Inserted),
		slog.Int("duplicated", s.Duplicated),
		slog.Int("invalid", s.Invalid),
		slog.Int("deferred", s.Deferred),
		slog.Int("breaker_skipped", s.BreakerSkipped),
		slog.Int("shape_failures", s.ShapeFailures),
		slog.Int("transport_failures", s.TransportFailures),
		slog.Int("fallbacks", s.Fallbacks),
		slog.Int("persist_errors", s.PersistErrors),
		slog.Any("failed_steps", s.FailedSteps),
		slog.Duration("duration", s.Duration),
	}
}
