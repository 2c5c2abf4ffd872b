package sqlite

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

func (repo *FeedRepo) List(ctx context.Context) ([]*entity.Feed, error) {
	return repo.query(ctx, "List", `
SELECT id, name, url, category, max_items, active, last_fetched_at, last_error
FROM feeds ORDER BY id ASC`)
}

func (repo *FeedRepo) ListActive(ctx context.Context) ([]*entity.Feed, error) {
	return repo.query(ctx, "ListActive", `
SELECT id, name, url, category, max_items, active, last_fetched_at, last_error
FROM feeds WHERE active = 1 ORDER BY id ASC`)
}

func (repo *FeedRepo) query(ctx context.Context, op, query string) ([]*entity.Feed, error) {
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: QueryContext: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var feeds []*entity.Feed
	for rows.Next() {
		var (
			feed        entity.Feed
			lastFetched sql.NullTime
		)
		if err := rows.Scan(&feed.ID, &feed.Name, &feed.URL, &feed.Category, &feed.MaxItems,
			&feed.Active, &lastFetched, &feed.LastError); err != nil {
			return nil, fmt.Errorf("%s: Scan: %w", op, err)
		}
		if lastFetched.Valid {
			t := lastFetched.Time.UTC()
			feed.LastFetchedAt = &t
		}
		feeds = append(feeds, &feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows.Err: %w", op, err)
	}
	return feeds, nil
}

func (repo *FeedRepo) Upsert(ctx context.Context, feed *entity.Feed) (int64, error) {
	const query = `
INSERT INTO feeds (name, url, category, max_items, active)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (url) DO UPDATE SET
       name      = excluded.name,
       category  = excluded.category,
       max_items = excluded.max_items,
       active    = excluded.active
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
	res, err := repo.db.ExecContext(ctx,
		`UPDATE feeds SET last_fetched_at = ?, last_error = ? WHERE id = ?`, at.UTC(), lastErr, id)
	if err != nil {
		return fmt.Errorf("RecordFetch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("RecordFetch: %w", entity.ErrNotFound)
	}
	return nil
}
