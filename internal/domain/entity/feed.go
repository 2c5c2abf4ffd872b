package entity

import (
	"strings"
	"time"
)

// DefaultFeedMaxItems caps the number of entries read from one feed per run.
const DefaultFeedMaxItems = 10

// Feed is a configured RSS or Atom source.
type Feed struct {
	ID            int64
	Name          string
	URL           string
	Category      string
	MaxItems      int
	Active        bool
	LastFetchedAt *time.Time
	LastError     string
}

// Validate checks the fields required to fetch the feed.
func (f *Feed) Validate() error {
	if strings.TrimSpace(f.URL) == "" {
		return &ValidationError{Field: "url", Message: "feed URL is required"}
	}
	if !IsHTTPURL(f.URL) {
		return &ValidationError{Field: "url", Message: "feed URL must be an absolute http or https URL"}
	}
	if f.MaxItems < 0 {
		return &ValidationError{Field: "max_items", Message: "max_items must not be negative"}
	}
	return nil
}

// Limit returns the effective per-run item cap.
func (f *Feed) Limit() int {
	if f.MaxItems <= 0 {
		return DefaultFeedMaxItems
	}
	return f.MaxItems
}
