package repository

import (
	"context"
	"time"

	"newsfromai/internal/domain/entity"
)

type FeedRepository interface {
	List(ctx context.Context) ([]*entity.Feed, error)
	ListActive(ctx context.Context) ([]*entity.Feed, error)
	// Upsert inserts the feed or updates name, category, max_items and
	// active of the row with the same URL. It returns the row ID.
	Upsert(ctx context.Context, feed *entity.Feed) (int64, error)
	// RecordFetch stores the outcome of the latest fetch. An empty lastErr
	// clears the previous error.
	RecordFetch(ctx context.Context, id int64, at time.Time, lastErr string) error
}
