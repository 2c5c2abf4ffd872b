package notifier

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"newsfromai/internal/domain/entity"
)

const (
	maxTitleLength       = 256
	maxDescriptionLength = 4096
	maxFooterLength      = 2048

	// #5865F2
	discordBlurple  = 5793266
	fallbackColor   = 0x99AAB5
	discordRatePerS = 0.5
)

// DiscordPayload is the webhook body.
type DiscordPayload struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

// DiscordEmbed is one rich embed.
type DiscordEmbed struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	URL         string        `json:"url"`
	Color       int           `json:"color"`
	Footer      DiscordFooter `json:"footer"`
	Timestamp   string        `json:"timestamp"`
}

// DiscordFooter is the embed footer.
type DiscordFooter struct {
	Text string `json:"text"`
}

// Discord posts records to a Discord webhook. Discord allows 30 requests a
// minute per webhook.
type Discord struct {
	hook *webhook
}

// NewDiscord builds a Discord notifier.
func NewDiscord(cfg WebhookConfig, logger *slog.Logger) *Discord {
	return &Discord{hook: newWebhook("discord", cfg, rate.Limit(discordRatePerS), 3, logger)}
}

// Name implements Notifier.
func (d *Discord) Name() string { return "discord" }

// Send implements Notifier.
func (d *Discord) Send(ctx context.Context, rec *entity.NewsRecord) error {
	return d.hook.deliver(ctx, rec, DiscordMessage(rec))
}

// DiscordMessage renders rec as a single embed. Fallback records are shown
// in grey.
func DiscordMessage(rec *entity.NewsRecord) DiscordPayload {
	footer := rec.SourceName
	if rec.Category != "" {
		footer += " · " + rec.Category
	}
	color := discordBlurple
	if rec.Fallback {
		color = fallbackColor
	}
	return DiscordPayload{Embeds: []DiscordEmbed{{
		Title:       truncate(rec.Title, maxTitleLength, "..."),
		Description: excerpt(rec, maxDescriptionLength),
		URL:         rec.SourceURL,
		Color:       color,
		Footer:      DiscordFooter{Text: truncate(footer, maxFooterLength, "...")},
		Timestamp:   rec.SortTime().UTC().Format(time.RFC3339),
	}}}
}
