package entity

import (
	"encoding/json"
	"time"
)

// NewsRecord is the durable, presentable form of a generated article.
// The pipeline never mutates a record after it has been inserted.
type NewsRecord struct {
	ID          int64
	Title       string
	Format      Format
	Content     string
	ContentHTML string
	Comment     string
	SourceURL   string
	SourceURLs  []string
	SourceName  string
	Kind        SourceKind
	Category    string
	FeedID      int64
	FeedGUID    string
	Fallback    bool
	RawPayload  json.RawMessage
	PublishedAt *time.Time
	CreatedAt   time.Time
}

// SortTime is the timestamp used to order records for presentation.
func (n *NewsRecord) SortTime() time.Time {
	if n.PublishedAt != nil {
		return *n.PublishedAt
	}
	return n.CreatedAt
}

// ConsumedURLs returns every normalized URL the record was built from,
// primary URL first, without duplicates.
func (n *NewsRecord) ConsumedURLs() []string {
	seen := make(map[string]struct{}, len(n.SourceURLs)+1)
	out := make([]string, 0, len(n.SourceURLs)+1)
	for _, u := range append([]string{n.SourceURL}, n.SourceURLs...) {
		nu := NormalizeURL(u)
		if nu == "" {
			continue
		}
		if _, ok := seen[nu]; ok {
			continue
		}
		seen[nu] = struct{}{}
		out = append(out, nu)
	}
	return out
}

// AITaskStatus is the outcome of one AI call.
type AITaskStatus string

const (
	AITaskOK             AITaskStatus = "ok"
	AITaskTransportError AITaskStatus = "transport_error"
	AITaskShapeError     AITaskStatus = "shape_error"
	AITaskConfigError    AITaskStatus = "config_error"
)

// AITaskLog is one audit row per AI call.
type AITaskLog struct {
	ID         int64
	Task       string
	Model      string
	Status     AITaskStatus
	RepairStep string
	Duration   time.Duration
	Error      string
	CreatedAt  time.Time
}
