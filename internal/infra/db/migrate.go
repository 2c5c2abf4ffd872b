package db

import (
	"database/sql"
	"fmt"
)

// MigrateUp creates the schema for the given driver. Every statement is
// idempotent, so it runs on each start.
func MigrateUp(db *sql.DB, driver string) error {
	switch driver {
	case DriverPostgres:
		return migratePostgres(db)
	case DriverSQLite:
		return migrateSQLite(db)
	default:
		return fmt.Errorf("migrate: unsupported driver %q", driver)
	}
}

func migratePostgres(db *sql.DB) error {
	tables := []string{`
CREATE TABLE IF NOT EXISTS feeds (
    id              SERIAL PRIMARY KEY,
    name            TEXT NOT NULL DEFAULT '',
    url             TEXT NOT NULL UNIQUE,
    category        TEXT NOT NULL DEFAULT '',
    max_items       INTEGER NOT NULL DEFAULT 10,
    active          BOOLEAN NOT NULL DEFAULT TRUE,
    last_fetched_at TIMESTAMPTZ,
    last_error      TEXT NOT NULL DEFAULT ''
)`, `
CREATE TABLE IF NOT EXISTS news (
    id           BIGSERIAL PRIMARY KEY,
    title        TEXT NOT NULL,
    format       VARCHAR(50) NOT NULL,
    content      TEXT NOT NULL,
    content_html TEXT NOT NULL DEFAULT '',
    comment      TEXT NOT NULL DEFAULT '',
    source_url   TEXT NOT NULL UNIQUE,
    source_urls  JSONB NOT NULL DEFAULT '[]',
    source_name  TEXT NOT NULL DEFAULT '',
    kind         VARCHAR(20) NOT NULL,
    category     TEXT NOT NULL DEFAULT '',
    feed_id      INTEGER REFERENCES feeds(id) ON DELETE SET NULL,
    feed_guid    TEXT,
    fallback     BOOLEAN NOT NULL DEFAULT FALSE,
    raw_payload  JSONB,
    published_at TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (feed_id, feed_guid)
)`, `
CREATE TABLE IF NOT EXISTS news_source_urls (
    url     TEXT PRIMARY KEY,
    news_id BIGINT NOT NULL REFERENCES news(id) ON DELETE CASCADE
)`, `
CREATE TABLE IF NOT EXISTS ai_task_log (
    id          BIGSERIAL PRIMARY KEY,
    task        VARCHAR(50) NOT NULL,
    model       TEXT NOT NULL DEFAULT '',
    status      VARCHAR(20) NOT NULL,
    repair_step VARCHAR(20) NOT NULL DEFAULT '',
    duration_ms BIGINT NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`}

	indexes := []string{
		// ホームページの並び順: COALESCE(published_at, created_at) DESC, id DESC
		`CREATE INDEX IF NOT EXISTS idx_news_sort ON news ((COALESCE(published_at, created_at)) DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_news_category ON news(category)`,
		`CREATE INDEX IF NOT EXISTS idx_feeds_active ON feeds(active) WHERE active = TRUE`,
		`CREATE INDEX IF NOT EXISTS idx_ai_task_log_created_at ON ai_task_log(created_at DESC)`,
	}

	for _, stmt := range append(tables, indexes...) {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migrateSQLite(db *sql.DB) error {
	stmts := []string{`
CREATE TABLE IF NOT EXISTS feeds (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    name            TEXT NOT NULL DEFAULT '',
    url             TEXT NOT NULL UNIQUE,
    category        TEXT NOT NULL DEFAULT '',
    max_items       INTEGER NOT NULL DEFAULT 10,
    active          BOOLEAN NOT NULL DEFAULT 1,
    last_fetched_at DATETIME,
    last_error      TEXT NOT NULL DEFAULT ''
)`, `
CREATE TABLE IF NOT EXISTS news (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    title        TEXT NOT NULL,
    format       TEXT NOT NULL,
    content      TEXT NOT NULL,
    content_html TEXT NOT NULL DEFAULT '',
    comment      TEXT NOT NULL DEFAULT '',
    source_url   TEXT NOT NULL UNIQUE,
    source_urls  TEXT NOT NULL DEFAULT '[]',
    source_name  TEXT NOT NULL DEFAULT '',
    kind         TEXT NOT NULL,
    category     TEXT NOT NULL DEFAULT '',
    feed_id      INTEGER REFERENCES feeds(id) ON DELETE SET NULL,
    feed_guid    TEXT,
    fallback     BOOLEAN NOT NULL DEFAULT 0,
    raw_payload  TEXT,
    published_at DATETIME,
    created_at   DATETIME NOT NULL,
    UNIQUE (feed_id, feed_guid)
)`, `
CREATE TABLE IF NOT EXISTS news_source_urls (
    url     TEXT PRIMARY KEY,
    news_id INTEGER NOT NULL REFERENCES news(id) ON DELETE CASCADE
)`, `
CREATE TABLE IF NOT EXISTS ai_task_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    task        TEXT NOT NULL,
    model       TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL,
    repair_step TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT '',
    created_at  DATETIME NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_news_sort ON news (COALESCE(published_at, created_at) DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_news_category ON news(category)`,
		`CREATE INDEX IF NOT EXISTS idx_feeds_active ON feeds(active)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// MigrateDown drops every table created by MigrateUp.
// Use with caution: this will delete all data in the affected tables.
func MigrateDown(db *sql.DB) error {
	dropStatements := []string{
		`DROP TABLE IF EXISTS news_source_urls`,
		`DROP TABLE IF EXISTS ai_task_log`,
		`DROP TABLE IF EXISTS news`,
		`DROP TABLE IF EXISTS feeds`,
	}

	for _, stmt := range dropStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
