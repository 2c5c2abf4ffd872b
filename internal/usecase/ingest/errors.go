// Package ingest runs the ingestion pipeline: keyword generation, search and
// analysis, feed summarization, and persistence of the generated articles.
package ingest

import "errors"

var (
	// ErrRunInProgress is returned by Run when another run has not finished.
	ErrRunInProgress = errors.New("ingest run already in progress")

	// ErrNoKeywords means the query generator produced fewer keywords than
	// the configured minimum. The search phases are skipped.
	ErrNoKeywords = errors.New("not enough keywords")

	// ErrBreakerOpen means the content-shape breaker suspended AI calls.
	ErrBreakerOpen = errors.New("content-shape breaker open")
)
