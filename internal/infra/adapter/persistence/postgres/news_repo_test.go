package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsfromai/internal/domain/entity"
	pg "newsfromai/internal/infra/adapter/persistence/postgres"
	"newsfromai/internal/repository"
)

/* ────────────────────────────  ヘルパ  ──────────────────────────── */

var newsCols = []string{
	"id", "title", "format", "content", "content_html", "comment", "source_url", "source_urls",
	"source_name", "kind", "category", "feed_id", "feed_guid", "fallback", "raw_payload",
	"published_at", "created_at",
}

func newsRow(rows *sqlmock.Rows, n *entity.NewsRecord, urlsJSON string) *sqlmock.Rows {
	var feedID, feedGUID, published any
	if n.FeedID != 0 {
		feedID = n.FeedID
	}
	if n.FeedGUID != "" {
		feedGUID = n.FeedGUID
	}
	if n.PublishedAt != nil {
		published = *n.PublishedAt
	}
	return rows.AddRow(
		n.ID, n.Title, string(n.Format), n.Content, n.ContentHTML, n.Comment, n.SourceURL, []byte(urlsJSON),
		n.SourceName, string(n.Kind), n.Category, feedID, feedGUID, n.Fallback, nil,
		published, n.CreatedAt,
	)
}

/* ──────────────────────────── 1. ExistsByURL ──────────────────────────── */

func TestNewsRepo_ExistsByURL_Normalizes(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM news_source_urls WHERE url = $1)")).
		WithArgs("https://example.com/a").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	repo := pg.NewNewsRepo(db)
	ok, err := repo.ExistsByURL(context.Background(), "HTTPS://Example.com/a/#top")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewsRepo_ExistsByURL_Error(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT EXISTS").WillReturnError(sql.ErrConnDone)

	_, err := pg.NewNewsRepo(db).ExistsByURL(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

/* ─────────────────────────── 2. ExistsByURLBatch ─────────────────────────── */

func TestNewsRepo_ExistsByURLBatch(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	urls := []string{
		"https://example.com/article1",
		"https://example.com/article2/",
		"https://example.com/article3#comments",
	}

	// article1とarticle3が存在する
	mock.ExpectQuery(regexp.QuoteMeta("SELECT url FROM news_source_urls WHERE url IN ($1,$2,$3)")).
		WithArgs("https://example.com/article1", "https://example.com/article2", "https://example.com/article3").
		WillReturnRows(sqlmock.NewRows([]string{"url"}).
			AddRow("https://example.com/article1").
			AddRow("https://example.com/article3"))

	got, err := pg.NewNewsRepo(db).ExistsByURLBatch(context.Background(), urls)
	require.NoError(t, err)

	want := map[string]bool{
		"https://example.com/article1":          true,
		"https://example.com/article3#comments": true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ExistsByURLBatch mismatch (-want +got):\n%s", diff)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewsRepo_ExistsByURLBatch_Empty(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	got, err := pg.NewNewsRepo(db).ExistsByURLBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

/* ─────────────────────────── 3. ExistsByFeedGUID ─────────────────────────── */

func TestNewsRepo_ExistsByFeedGUID(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM news WHERE feed_id = $1 AND feed_guid = $2)")).
		WithArgs(int64(7), "guid-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := pg.NewNewsRepo(db).ExistsByFeedGUID(context.Background(), 7, "guid-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

/* ──────────────────────────── 4. Insert ──────────────────────────── */

func TestNewsRepo_Insert(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	created := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	rec := &entity.NewsRecord{
		Title:      "Go 1.23",
		Format:     entity.FormatMultiSource,
		Content:    "## Go 1.23",
		SourceURL:  "https://go.dev/blog/go1.23/",
		SourceURLs: []string{"https://go.dev/blog/go1.23", "https://example.com/other"},
		Kind:       entity.SourceKindSearch,
		Category:   "golang",
		CreatedAt:  created,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO news")).
		WithArgs(
			"Go 1.23", "multi_source_report", "## Go 1.23", "", "",
			"https://go.dev/blog/go1.23", `["https://go.dev/blog/go1.23","https://example.com/other"]`,
			"", "search", "golang", nil, nil, false, nil, nil, created,
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO news_source_urls")).
		WithArgs("https://go.dev/blog/go1.23", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO news_source_urls")).
		WithArgs("https://example.com/other", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := pg.NewNewsRepo(db).Insert(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, int64(42), rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewsRepo_Insert_UniqueViolation(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO news").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})
	mock.ExpectRollback()

	_, err := pg.NewNewsRepo(db).Insert(context.Background(), &entity.NewsRecord{
		Title: "dup", SourceURL: "https://example.com/dup", Kind: entity.SourceKindRSS,
	})
	assert.True(t, errors.Is(err, entity.ErrAlreadyExists), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewsRepo_Insert_OtherErrorRollsBack(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO news").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec("INSERT INTO news_source_urls").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := pg.NewNewsRepo(db).Insert(context.Background(), &entity.NewsRecord{
		Title: "t", SourceURL: "https://example.com/x", Kind: entity.SourceKindRSS,
	})
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.False(t, errors.Is(err, entity.ErrAlreadyExists))
	assert.NoError(t, mock.ExpectationsWereMet())
}

/* ──────────────────────────── 5. ListRecent ──────────────────────────── */

func TestNewsRepo_ListRecent(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	created := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	published := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	want := []*entity.NewsRecord{
		{
			ID: 2, Title: "feed item", Format: entity.FormatSingleDeepDive, Content: "c",
			SourceURL: "https://a.example/1", SourceURLs: []string{"https://a.example/1"},
			Kind: entity.SourceKindRSS, FeedID: 3, FeedGUID: "g", PublishedAt: &published, CreatedAt: created,
		},
	}

	rows := newsRow(sqlmock.NewRows(newsCols), want[0], `["https://a.example/1"]`)
	mock.ExpectQuery(regexp.QuoteMeta(
		"FROM news WHERE category = $1 ORDER BY COALESCE(published_at, created_at) DESC, id DESC LIMIT 10 OFFSET 5")).
		WithArgs("golang").
		WillReturnRows(rows)

	got, err := pg.NewNewsRepo(db).ListRecent(context.Background(), repository.RecentQuery{Limit: 10, Offset: 5, Category: "golang"})
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ListRecent mismatch (-want +got):\n%s", diff)
	}
}

func TestNewsRepo_ListRecent_DefaultLimit(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("LIMIT 20 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows(newsCols))

	got, err := pg.NewNewsRepo(db).ListRecent(context.Background(), repository.RecentQuery{Offset: -3})
	require.NoError(t, err)
	assert.Empty(t, got)
}

/* ──────────────────────────── 6. Count ──────────────────────────── */

func TestNewsRepo_Count(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM news")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(12)))

	n, err := pg.NewNewsRepo(db).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}
