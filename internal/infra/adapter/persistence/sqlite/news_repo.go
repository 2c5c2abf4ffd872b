package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/repository"
)

// NewsRepo implements the NewsRepository interface using SQLite.
type NewsRepo struct {
	db           *sql.DB
	queryBuilder *NewsQueryBuilder
}

// NewNewsRepo creates a new SQLite-backed news repository.
func NewNewsRepo(db *sql.DB) repository.NewsRepository {
	return &NewsRepo{db: db, queryBuilder: NewNewsQueryBuilder()}
}

func scanNews(rows *sql.Rows) (*entity.NewsRecord, error) {
	var (
		rec         entity.NewsRecord
		format      string
		kind        string
		sourceURLs  string
		feedID      sql.NullInt64
		feedGUID    sql.NullString
		rawPayload  sql.NullString
		publishedAt sql.NullTime
	)
	if err := rows.Scan(
		&rec.ID, &rec.Title, &format, &rec.Content, &rec.ContentHTML, &rec.Comment,
		&rec.SourceURL, &sourceURLs, &rec.SourceName, &kind, &rec.Category,
		&feedID, &feedGUID, &rec.Fallback, &rawPayload, &publishedAt, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.Format = entity.Format(format)
	rec.Kind = entity.SourceKind(kind)
	rec.FeedID = feedID.Int64
	rec.FeedGUID = feedGUID.String
	if rawPayload.Valid && rawPayload.String != "" {
		rec.RawPayload = json.RawMessage(rawPayload.String)
	}
	if publishedAt.Valid {
		t := publishedAt.Time.UTC()
		rec.PublishedAt = &t
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	if sourceURLs != "" {
		if err := json.Unmarshal([]byte(sourceURLs), &rec.SourceURLs); err != nil {
			return nil, fmt.Errorf("unmarshal source_urls: %w", err)
		}
	}
	return &rec, nil
}

func (repo *NewsRepo) ExistsByURL(ctx context.Context, url string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM news_source_urls WHERE url = ?)`
	var existsFlag bool
	if err := repo.db.QueryRowContext(ctx, query, entity.NormalizeURL(url)).Scan(&existsFlag); err != nil {
		return false, fmt.Errorf("ExistsByURL: %w", err)
	}
	return existsFlag, nil
}

// ExistsByURLBatch checks many URLs in one query. The returned map is keyed
// by the caller's URLs as given.
func (repo *NewsRepo) ExistsByURLBatch(ctx context.Context, urls []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(urls) == 0 {
		return result, nil
	}

	byNorm := make(map[string][]string, len(urls))
	norms := make([]string, 0, len(urls))
	for _, u := range urls {
		n := entity.NormalizeURL(u)
		if _, ok := byNorm[n]; !ok {
			norms = append(norms, n)
		}
		byNorm[n] = append(byNorm[n], u)
	}

	query, args, err := repo.queryBuilder.ExistingURLs(norms)
	if err != nil {
		return nil, fmt.Errorf("ExistsByURLBatch: build: %w", err)
	}
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ExistsByURLBatch: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var found string
		if err := rows.Scan(&found); err != nil {
			return nil, fmt.Errorf("ExistsByURLBatch: Scan: %w", err)
		}
		for _, orig := range byNorm[found] {
			result[orig] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ExistsByURLBatch: rows.Err: %w", err)
	}
	return result, nil
}

func (repo *NewsRepo) ExistsByFeedGUID(ctx context.Context, feedID int64, guid string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM news WHERE feed_id = ? AND feed_guid = ?)`
	var existsFlag bool
	if err := repo.db.QueryRowContext(ctx, query, feedID, guid).Scan(&existsFlag); err != nil {
		return false, fmt.Errorf("ExistsByFeedGUID: %w", err)
	}
	return existsFlag, nil
}

func (repo *NewsRepo) Insert(ctx context.Context, rec *entity.NewsRecord) (int64, error) {
	const insertNews = `
INSERT INTO news
       (title, format, content, content_html, comment, source_url, source_urls,
        source_name, kind, category, feed_id, feed_guid, fallback, raw_payload,
        published_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	const insertURL = `INSERT INTO news_source_urls (url, news_id) VALUES (?, ?) ON CONFLICT (url) DO NOTHING`

	norm := make([]string, 0, len(rec.SourceURLs))
	for _, u := range rec.SourceURLs {
		if n := entity.NormalizeURL(u); n != "" {
			norm = append(norm, n)
		}
	}
	urlsJSON, err := json.Marshal(norm)
	if err != nil {
		return 0, fmt.Errorf("Insert: marshal source_urls: %w", err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var published any
	if rec.PublishedAt != nil {
		published = rec.PublishedAt.UTC()
	}
	var raw any
	if len(rec.RawPayload) > 0 {
		raw = string(rec.RawPayload)
	}

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("Insert: BeginTx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, insertNews,
		rec.Title, string(rec.Format), rec.Content, rec.ContentHTML, rec.Comment,
		entity.NormalizeURL(rec.SourceURL), string(urlsJSON),
		rec.SourceName, string(rec.Kind), rec.Category,
		sql.NullInt64{Int64: rec.FeedID, Valid: rec.FeedID != 0},
		sql.NullString{String: rec.FeedGUID, Valid: rec.FeedGUID != ""},
		rec.Fallback, raw, published, createdAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("Insert: %w", entity.ErrAlreadyExists)
		}
		return 0, fmt.Errorf("Insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("Insert: LastInsertId: %w", err)
	}

	for _, u := range rec.ConsumedURLs() {
		if _, err := tx.ExecContext(ctx, insertURL, u, id); err != nil {
			return 0, fmt.Errorf("Insert: source url: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("Insert: Commit: %w", err)
	}
	rec.ID = id
	rec.CreatedAt = createdAt.UTC()
	return id, nil
}

func (repo *NewsRepo) ListRecent(ctx context.Context, q repository.RecentQuery) ([]*entity.NewsRecord, error) {
	query, args, err := repo.queryBuilder.Recent(q)
	if err != nil {
		return nil, fmt.Errorf("ListRecent: build: %w", err)
	}
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListRecent: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*entity.NewsRecord, 0, max(q.Limit, 0))
	for rows.Next() {
		rec, err := scanNews(rows)
		if err != nil {
			return nil, fmt.Errorf("ListRecent: Scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListRecent: rows.Err: %w", err)
	}
	return records, nil
}

func (repo *NewsRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := repo.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM news`).Scan(&n); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}
