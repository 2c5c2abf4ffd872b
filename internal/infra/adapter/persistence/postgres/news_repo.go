package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/repository"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type NewsRepo struct {
	db           *sql.DB
	queryBuilder *NewsQueryBuilder
}

func NewNewsRepo(db *sql.DB) repository.NewsRepository {
	return &NewsRepo{
		db:           db,
		queryBuilder: NewNewsQueryBuilder(),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNews(row rowScanner) (*entity.NewsRecord, error) {
	var (
		rec         entity.NewsRecord
		format      string
		kind        string
		sourceURLs  []byte
		feedID      sql.NullInt64
		feedGUID    sql.NullString
		rawPayload  []byte
		publishedAt sql.NullTime
	)
	if err := row.Scan(
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
	if len(rawPayload) > 0 {
		rec.RawPayload = json.RawMessage(rawPayload)
	}
	if publishedAt.Valid {
		t := publishedAt.Time.UTC()
		rec.PublishedAt = &t
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	if len(sourceURLs) > 0 {
		if err := json.Unmarshal(sourceURLs, &rec.SourceURLs); err != nil {
			return nil, fmt.Errorf("unmarshal source_urls: %w", err)
		}
	}
	return &rec, nil
}

func (repo *NewsRepo) ExistsByURL(ctx context.Context, url string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM news_source_urls WHERE url = $1)`
	var existsFlag bool
	err := repo.db.QueryRowContext(ctx, query, entity.NormalizeURL(url)).Scan(&existsFlag)
	if err != nil {
		return false, fmt.Errorf("ExistsByURL: %w", err)
	}
	return existsFlag, nil
}

// ExistsByURLBatch はバッチでURL存在チェックを行い、N+1問題を解消する
// The returned map is keyed by the caller's URLs as given.
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
	const query = `SELECT EXISTS (SELECT 1 FROM news WHERE feed_id = $1 AND feed_guid = $2)`
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
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING id`
	const insertURL = `
INSERT INTO news_source_urls (url, news_id) VALUES ($1, $2)
ON CONFLICT (url) DO NOTHING`

	urlsJSON, err := json.Marshal(normalizedURLs(rec.SourceURLs))
	if err != nil {
		return 0, fmt.Errorf("Insert: marshal source_urls: %w", err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("Insert: BeginTx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, insertNews,
		rec.Title, string(rec.Format), rec.Content, rec.ContentHTML, rec.Comment,
		entity.NormalizeURL(rec.SourceURL), string(urlsJSON),
		rec.SourceName, string(rec.Kind), rec.Category,
		nullInt64(rec.FeedID), nullString(rec.FeedGUID), rec.Fallback, nullJSON(rec.RawPayload),
		utcPtr(rec.PublishedAt), createdAt.UTC(),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("Insert: %w", entity.ErrAlreadyExists)
		}
		return 0, fmt.Errorf("Insert: %w", err)
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
	const query = `SELECT COUNT(*) FROM news`
	var n int64
	if err := repo.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func normalizedURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if n := entity.NormalizeURL(u); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
