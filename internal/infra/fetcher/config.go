package fetcher

import (
	"fmt"
	"log/slog"
	"time"

	pkgconfig "newsfromai/internal/pkg/config"
)

// ContentFetchConfig controls full-text enrichment of thin feed items.
type ContentFetchConfig struct {
	// Enabled turns enrichment on. When false the feed content is used as-is.
	Enabled bool

	// Timeout bounds one page download.
	Timeout time.Duration

	// MaxBodySize is enforced while reading, not from Content-Length.
	MaxBodySize int64

	MaxRedirects int

	// DenyPrivateIPs rejects URLs (and redirect targets) that resolve to
	// private networks. Tests against httptest servers turn it off.
	DenyPrivateIPs bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() ContentFetchConfig {
	return ContentFetchConfig{
		Enabled:        true,
		Timeout:        10 * time.Second,
		MaxBodySize:    10 * 1024 * 1024, // 10MB
		MaxRedirects:   5,
		DenyPrivateIPs: true,
	}
}

// Validate checks the configured limits.
//
// Validation rules:
//   - Timeout: > 0
//   - MaxBodySize: 1KB-100MB
//   - MaxRedirects: 0-10
func (c *ContentFetchConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}

	minBodySize := int64(1024)              // 1KB
	maxBodySize := int64(100 * 1024 * 1024) // 100MB
	if c.MaxBodySize < minBodySize || c.MaxBodySize > maxBodySize {
		return fmt.Errorf("max body size must be between %d and %d bytes, got %d", minBodySize, maxBodySize, c.MaxBodySize)
	}

	if c.MaxRedirects < 0 || c.MaxRedirects > 10 {
		return fmt.Errorf("max redirects must be between 0 and 10, got %d", c.MaxRedirects)
	}

	return nil
}

// LoadConfigFromEnv reads CONTENT_FETCH_* variables. Invalid values fall
// back to the default for that field and are logged.
//
// Environment variables:
//   - CONTENT_FETCH_ENABLED (default: true)
//   - CONTENT_FETCH_TIMEOUT (default: 10s)
//   - CONTENT_FETCH_MAX_BODY_SIZE in bytes (default: 10485760)
//   - CONTENT_FETCH_MAX_REDIRECTS (default: 5)
//   - CONTENT_FETCH_DENY_PRIVATE_IPS (default: true)
func LoadConfigFromEnv(logger *slog.Logger) ContentFetchConfig {
	def := DefaultConfig()
	fb := pkgconfig.NewFallbacks(logger, nil)

	return ContentFetchConfig{
		Enabled: pkgconfig.Track(fb, "content_fetch_enabled",
			pkgconfig.LoadEnvBool("CONTENT_FETCH_ENABLED", def.Enabled)),
		Timeout: pkgconfig.Track(fb, "content_fetch_timeout",
			pkgconfig.LoadEnvDuration("CONTENT_FETCH_TIMEOUT", def.Timeout, pkgconfig.ValidatePositiveDuration)),
		MaxBodySize: int64(pkgconfig.Track(fb, "content_fetch_max_body_size",
			pkgconfig.LoadEnvInt("CONTENT_FETCH_MAX_BODY_SIZE", int(def.MaxBodySize), func(v int) error {
				return pkgconfig.ValidateIntRange(v, 1024, 100*1024*1024)
			}))),
		MaxRedirects: pkgconfig.Track(fb, "content_fetch_max_redirects",
			pkgconfig.LoadEnvInt("CONTENT_FETCH_MAX_REDIRECTS", def.MaxRedirects, func(v int) error {
				return pkgconfig.ValidateIntRange(v, 0, 10)
			})),
		DenyPrivateIPs: pkgconfig.Track(fb, "content_fetch_deny_private_ips",
			pkgconfig.LoadEnvBool("CONTENT_FETCH_DENY_PRIVATE_IPS", def.DenyPrivateIPs)),
	}
}
