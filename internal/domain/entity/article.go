// Package entity defines the core domain types of the ingestion pipeline:
// the raw items produced by source readers, the articles generated from them
// by the AI layer, and the records that are persisted for presentation.
package entity

import (
	"encoding/json"
	"strings"
	"time"
)

// SourceKind identifies which reader produced a RawItem.
type SourceKind string

const (
	SourceKindSearch SourceKind = "search"
	SourceKindRSS    SourceKind = "rss"
)

// RawItem is one unit of content as delivered by a source reader, before any
// AI transformation. It never outlives a single ingestion run.
type RawItem struct {
	Title       string
	URL         string
	Summary     string
	Content     string
	PublishedAt *time.Time
	SourceName  string
	Kind        SourceKind
	Category    string
	RawPayload  json.RawMessage
	GUID        string
	FeedID      int64
}

// Validate reports whether the item carries the fields required before any
// AI call is made: a non-empty title and an absolute http(s) URL.
func (r *RawItem) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if strings.TrimSpace(r.URL) == "" {
		return &ValidationError{Field: "url", Message: "URL is required"}
	}
	if !IsHTTPURL(r.URL) {
		return &ValidationError{Field: "url", Message: "URL must be an absolute http or https URL"}
	}
	return nil
}

// Format is the presentation format chosen by the analyzer.
type Format string

const (
	FormatTimeline       Format = "timeline"
	FormatMultiSource    Format = "multi_source_report"
	FormatSingleDeepDive Format = "single_article_deep_dive"
)

// IsKnown reports whether f is one of the formats the presentation layer
// renders specially. Unknown formats are still stored as-is.
func (f Format) IsKnown() bool {
	switch f {
	case FormatTimeline, FormatMultiSource, FormatSingleDeepDive:
		return true
	}
	return false
}

// GeneratedArticle is the result of the AI transformation of one or more
// RawItems.
type GeneratedArticle struct {
	Format     Format
	Content    string
	Comment    string
	SourceURLs []string
	// Fallback is set when Content came from the deterministic template
	// instead of an AI reply.
	Fallback   bool
	RepairStep string
}
