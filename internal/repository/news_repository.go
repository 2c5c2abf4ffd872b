package repository

import (
	"context"

	"newsfromai/internal/domain/entity"
)

// RecentQuery selects a page of records for presentation.
type RecentQuery struct {
	Limit    int
	Offset   int
	Category string        // Optional: exact match
	Format   entity.Format // Optional: exact match
}

// DefaultRecentLimit is used when RecentQuery.Limit is not positive.
const DefaultRecentLimit = 20

type NewsRepository interface {
	// ExistsByURL reports whether any stored record was built from url.
	// Every consumed URL counts, not only the primary one.
	ExistsByURL(ctx context.Context, url string) (bool, error)
	// ExistsByURLBatch はバッチでURL存在チェックを行い、N+1問題を解消する
	ExistsByURLBatch(ctx context.Context, urls []string) (map[string]bool, error)
	ExistsByFeedGUID(ctx context.Context, feedID int64, guid string) (bool, error)
	// Insert stores rec and all of its consumed URLs in one transaction and
	// returns the new ID. A unique-key conflict yields entity.ErrAlreadyExists.
	Insert(ctx context.Context, rec *entity.NewsRecord) (int64, error)
	// ListRecent returns records ordered by COALESCE(published_at, created_at) DESC, id DESC.
	ListRecent(ctx context.Context, q RecentQuery) ([]*entity.NewsRecord, error)
	Count(ctx context.Context) (int64, error)
}
