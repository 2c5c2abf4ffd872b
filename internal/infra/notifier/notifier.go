// Package notifier posts newly stored news records to chat webhooks.
//
// Slack and Discord are supported. Each notifier rate limits itself to the
// webhook's documented budget and retries transient failures once. Webhook
// URLs embed their credentials, so they never appear in returned errors.
package notifier

import (
	"context"
	"time"

	"newsfromai/internal/domain/entity"
)

// Notifier delivers one record to a single destination.
type Notifier interface {
	// Name is the lowercase channel identifier used in logs and metrics.
	Name() string

	// Send posts rec. It returns a non-nil error once retries are exhausted
	// or ctx ends.
	Send(ctx context.Context, rec *entity.NewsRecord) error
}

// WebhookConfig configures one webhook destination.
type WebhookConfig struct {
	Enabled    bool
	WebhookURL string
	Timeout    time.Duration

	// RetryDelay is the base delay between attempts after a 5xx or a
	// network failure. Zero means 5s.
	RetryDelay time.Duration
}

func (c WebhookConfig) retryDelay() time.Duration {
	if c.RetryDelay <= 0 {
		return 5 * time.Second
	}
	return c.RetryDelay
}

// excerpt is the text shown under the title: the comment when present,
// otherwise the start of the body.
func excerpt(rec *entity.NewsRecord, limit int) string {
	text := rec.Comment
	if text == "" {
		text = rec.Content
	}
	return truncate(text, limit, "...")
}

// truncate shortens s to at most limit runes including suffix.
func truncate(s string, limit int, suffix string) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	keep := limit - len([]rune(suffix))
	if keep < 0 {
		keep = 0
	}
	return string(r[:keep]) + suffix
}
