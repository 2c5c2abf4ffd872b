package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"newsfromai/internal/domain/entity"
)

// Slack Block Kit limits.
const (
	maxSectionTextLength = 3000
	maxFallbackLength    = 150
)

// SlackPayload is the Incoming Webhook body using Block Kit.
type SlackPayload struct {
	Text   string       `json:"text"`
	Blocks []SlackBlock `json:"blocks"`
}

// SlackBlock is a section or context block.
type SlackBlock struct {
	Type     string       `json:"type"`
	Text     *SlackText   `json:"text,omitempty"`
	Elements []*SlackText `json:"elements,omitempty"`
}

// SlackText is a mrkdwn text object.
type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Slack posts records to a Slack Incoming Webhook, at most one per second.
type Slack struct {
	hook *webhook
}

// NewSlack builds a Slack notifier.
func NewSlack(cfg WebhookConfig, logger *slog.Logger) *Slack {
	return &Slack{hook: newWebhook("slack", cfg, rate.Limit(1), 1, logger)}
}

// Name implements Notifier.
func (s *Slack) Name() string { return "slack" }

// Send implements Notifier.
func (s *Slack) Send(ctx context.Context, rec *entity.NewsRecord) error {
	return s.hook.deliver(ctx, rec, SlackMessage(rec))
}

// SlackMessage renders rec as a title link with an excerpt, followed by a
// context line naming the source, category and time.
func SlackMessage(rec *entity.NewsRecord) SlackPayload {
	source := rec.SourceName
	if source == "" {
		source = string(rec.Kind)
	}

	section := fmt.Sprintf("*<%s|%s>*\n\n%s", rec.SourceURL, rec.Title, excerpt(rec, maxSectionTextLength))
	ctxLine := fmt.Sprintf("%s • %s", source, rec.SortTime().UTC().Format(time.RFC3339))
	if rec.Category != "" {
		ctxLine = fmt.Sprintf("%s • %s • %s", source, rec.Category, rec.SortTime().UTC().Format(time.RFC3339))
	}

	return SlackPayload{
		Text: truncate(fmt.Sprintf("%s - %s", rec.Title, source), maxFallbackLength, "..."),
		Blocks: []SlackBlock{
			{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: truncate(section, maxSectionTextLength, "...")}},
			{Type: "context", Elements: []*SlackText{{Type: "mrkdwn", Text: ctxLine}}},
		},
	}
}
