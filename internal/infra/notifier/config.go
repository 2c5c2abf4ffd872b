package notifier

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	pkgconfig "newsfromai/internal/pkg/config"
)

// Config holds both webhook destinations.
type Config struct {
	Discord WebhookConfig
	Slack   WebhookConfig

	// MaxConcurrent bounds in-flight deliveries across channels.
	MaxConcurrent int
}

// Enabled reports whether any destination is on.
func (c Config) Enabled() bool {
	return c.Discord.Enabled || c.Slack.Enabled
}

// LoadConfigFromEnv reads the notification settings. A destination whose
// URL is missing or does not point at the expected host is disabled with a
// warning rather than failing startup.
//
// Environment variables:
//   - DISCORD_ENABLED, DISCORD_WEBHOOK_URL
//   - SLACK_ENABLED, SLACK_WEBHOOK_URL
//   - NOTIFY_TIMEOUT (default: 30s)
//   - NOTIFY_MAX_CONCURRENT (default: 10, range 1-50)
func LoadConfigFromEnv(logger *slog.Logger) Config {
	if logger == nil {
		logger = slog.Default()
	}
	fb := pkgconfig.NewFallbacks(logger, nil)
	timeout := pkgconfig.Track(fb, "notify_timeout",
		pkgconfig.LoadEnvDuration("NOTIFY_TIMEOUT", 30*time.Second, func(d time.Duration) error {
			return pkgconfig.ValidateDuration(d, time.Second, 2*time.Minute)
		}))

	return Config{
		Discord: loadWebhook(logger, fb, "discord", timeout, validateDiscordURL),
		Slack:   loadWebhook(logger, fb, "slack", timeout, validateSlackURL),
		MaxConcurrent: pkgconfig.Track(fb, "notify_max_concurrent",
			pkgconfig.LoadEnvInt("NOTIFY_MAX_CONCURRENT", 10, func(n int) error {
				return pkgconfig.ValidateIntRange(n, 1, 50)
			})),
	}
}

func loadWebhook(logger *slog.Logger, fb *pkgconfig.Fallbacks, name string, timeout time.Duration, validate func(*url.URL) error) WebhookConfig {
	prefix := strings.ToUpper(name)
	enabled := pkgconfig.Track(fb, name+"_enabled", pkgconfig.LoadEnvBool(prefix+"_ENABLED", false))
	if !enabled {
		return WebhookConfig{}
	}

	raw := pkgconfig.LoadEnvString(prefix+"_WEBHOOK_URL", "")
	if raw == "" {
		logger.Warn("webhook URL is empty, notifications disabled", slog.String("channel", name))
		return WebhookConfig{}
	}
	u, err := url.Parse(raw)
	if err == nil {
		err = validate(u)
	}
	if err != nil {
		logger.Warn("invalid webhook URL, notifications disabled",
			slog.String("channel", name),
			slog.Any("error", err))
		return WebhookConfig{}
	}
	return WebhookConfig{Enabled: true, WebhookURL: raw, Timeout: timeout}
}

func validateDiscordURL(u *url.URL) error {
	if u.Scheme != "https" {
		return fmt.Errorf("scheme must be https")
	}
	if u.Host != "discord.com" && u.Host != "discordapp.com" {
		return fmt.Errorf("unexpected host %q", u.Host)
	}
	if !strings.HasPrefix(u.Path, "/api/webhooks/") {
		return fmt.Errorf("path must start with /api/webhooks/")
	}
	return nil
}

func validateSlackURL(u *url.URL) error {
	if u.Scheme != "https" {
		return fmt.Errorf("scheme must be https")
	}
	if u.Host != "hooks.slack.com" {
		return fmt.Errorf("unexpected host %q", u.Host)
	}
	if !strings.HasPrefix(u.Path, "/services/") {
		return fmt.Errorf("path must start with /services/")
	}
	return nil
}

// Build returns a notifier per enabled destination.
func Build(cfg Config, logger *slog.Logger) []Notifier {
	var out []Notifier
	if cfg.Discord.Enabled {
		out = append(out, NewDiscord(cfg.Discord, logger))
	}
	if cfg.Slack.Enabled {
		out = append(out, NewSlack(cfg.Slack, logger))
	}
	return out
}
