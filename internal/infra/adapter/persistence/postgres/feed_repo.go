package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/repository"
)

type FeedRepo struct{ db *sql.DB }

func NewFeedRepo(db *sql.DB) repository.FeedRepository {
	return &FeedRepo{db: db}
}

const feedColumns = `id, name, url, category, max_items, active, last_fetched_at, last_error`

func scanFeed(rows *sql.Rows) (*entity.Feed, error) {
	var (
		feed        entity.Feed
		lastFetched sql.NullTime
	)
	if err := rows.Scan(
		&feed.ID, &feed.Name, &feed.URL, &feed.Category, &feed.MaxItems,
		&feed.Active, &lastFetched, &feed.LastError,
	); err != nil {
		return nil, err
	}
	if lastFetched.Valid {
		t := lastFetched.Time.UTC()
		feed.LastFetchedAt = &t
	}
	return &feed, nil
}

func (repo *FeedRepo) List(ctx context.Context) ([]*entity.Feed, error) {
	const query = `SELECT ` + feedColumns + ` FROM feeds ORDER BY id ASC`
	return repo.query(ctx, "List", query)
}

func (repo *FeedRepo) ListActive(ctx context.Context) ([]*entity.Feed, error) {
	const query = `SELECT ` + feedColumns + ` FROM feeds WHERE active = TRUE ORDER BY id ASC`
	return repo.query(ctx, "ListActive", query)
}

func (repo *FeedRepo) query(ctx context.Context, op, query string) ([]*entity.Feed, error) {
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: QueryContext: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var feeds []*entity.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: Scan: %w", op, err)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows.Err: %w", op, err)
	}
	return feeds, nil
}

func (repo *FeedRepo) Upsert(ctx context.Context, feed *entity.Feed) (int64, error) {
	const query = `
INSERT INTO feeds (name, url, category, max_items, active)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (url) DO UPDATE SET
       name      = EXCLUDED.name,
       category  = EXCLUDED.category,
       max_items = EXCLUDED.max_items,
       active    = EXCLUDED.active
RETURNING id`
	var id int64
	err := repo.db.QueryRowContext(ctx, query,
		feed.Name, feed.URL, feed.Category, feed.Limit(), feed.Active,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("Upsert: %w", err)
	}
	feed.ID = id
	return id, nil
}

func (repo *FeedRepo) RecordFetch(ctx context.Context, id int64, at time.Time, lastErr string) error {
	const query = `UPDATE feeds SET last_fetched_at = $1, last_error = $2 WHERE id = $3`
	res, err := repo.db.ExecContext(ctx, query, at.UTC(), lastErr, id)
	if err != nil {
		return fmt.Errorf("RecordFetch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("RecordFetch: %w", entity.ErrNotFound)
	}
	return nil
}
