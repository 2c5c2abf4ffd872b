package ingest

import (
	"context"

	"newsfromai/internal/domain/entity"
)

// DefaultSourceLimit caps items per request when the caller gives no limit.
const DefaultSourceLimit = 10

// SourceRequest describes one read against a source: a search keyword or a
// feed URL.
type SourceRequest struct {
	Kind       entity.SourceKind
	Target     string
	Limit      int
	Category   string
	FeedID     int64
	SourceName string
}

// EffectiveLimit returns Limit, or DefaultSourceLimit when Limit is not set.
func (r SourceRequest) EffectiveLimit() int {
	if r.Limit <= 0 {
		return DefaultSourceLimit
	}
	return r.Limit
}

// SourceReader fetches and normalizes raw items from one kind of source.
//
// Implementations return entity.ErrTransport or entity.ErrParse (wrapped) on
// failure. The orchestrator logs the error and treats the source as empty.
type SourceReader interface {
	Read(ctx context.Context, req SourceRequest) ([]entity.RawItem, error)
}

// ContentFetcher returns the readable text of the page at url. It is used to
// enrich feed items whose body is too thin to summarize.
type ContentFetcher interface {
	FetchContent(ctx context.Context, url string) (string, error)
}
