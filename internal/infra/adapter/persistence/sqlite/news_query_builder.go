// Package sqlite provides SQLite implementations of repository interfaces.
package sqlite

import (
	sq "github.com/Masterminds/squirrel"

	"newsfromai/internal/repository"
)

const newsColumns = `id, title, format, content, content_html, comment, source_url, source_urls,
source_name, kind, category, feed_id, feed_guid, fallback, raw_payload, published_at, created_at`

// NewsQueryBuilder builds the dynamic news queries for SQLite.
type NewsQueryBuilder struct {
	sb sq.StatementBuilderType
}

func NewNewsQueryBuilder() *NewsQueryBuilder {
	return &NewsQueryBuilder{sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

func (qb *NewsQueryBuilder) Recent(q repository.RecentQuery) (string, []interface{}, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = repository.DefaultRecentLimit
	}
	offset := max(q.Offset, 0)

	b := qb.sb.Select(newsColumns).From("news")
	if q.Category != "" {
		b = b.Where(sq.Eq{"category": q.Category})
	}
	if q.Format != "" {
		b = b.Where(sq.Eq{"format": string(q.Format)})
	}
	return b.OrderBy("COALESCE(published_at, created_at) DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
}

func (qb *NewsQueryBuilder) ExistingURLs(urls []string) (string, []interface{}, error) {
	return qb.sb.Select("url").
		From("news_source_urls").
		Where(sq.Eq{"url": urls}).
		ToSql()
}
