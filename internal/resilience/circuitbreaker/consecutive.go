package circuitbreaker

import (
	"log/slog"
	"sync"
	"time"

	"newsfromai/internal/observability/metrics"
)

// ConsecutiveConfig configures a Consecutive breaker.
type ConsecutiveConfig struct {
	Name string

	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold int

	// Cooldown is how long the breaker stays open. When it elapses the
	// breaker closes with a zeroed counter.
	Cooldown time.Duration

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time

	// OnStateChange is called after every open/close transition.
	OnStateChange func(name string, open bool)
}

// DefaultConsecutiveConfig returns a breaker that opens after three
// consecutive failures and pauses for ten minutes.
func DefaultConsecutiveConfig(name string) ConsecutiveConfig {
	return ConsecutiveConfig{
		Name:      name,
		Threshold: 3,
		Cooldown:  10 * time.Minute,
	}
}

// Consecutive is a counting breaker: any success resets the counter, and
// there is no half-open probing. A single failure after the cooldown does
// not re-open it; a fresh run of Threshold failures is needed.
type Consecutive struct {
	cfg ConsecutiveConfig

	mu       sync.Mutex
	failures int
	open     bool
	openedAt time.Time
}

// NewConsecutive creates a closed breaker.
func NewConsecutive(cfg ConsecutiveConfig) *Consecutive {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Consecutive{cfg: cfg}
}

// Name returns the breaker name.
func (c *Consecutive) Name() string {
	return c.cfg.Name
}

// Allow reports whether a guarded call may proceed now.
func (c *Consecutive) Allow() bool {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return true
	}
	if c.cfg.Now().Sub(c.openedAt) < c.cfg.Cooldown {
		c.mu.Unlock()
		return false
	}
	c.open = false
	c.failures = 0
	c.mu.Unlock()

	c.changed(false)
	return true
}

// RecordSuccess resets the failure counter.
func (c *Consecutive) RecordSuccess() {
	c.mu.Lock()
	c.failures = 0
	c.mu.Unlock()
}

// RecordFailure counts one failure and reports whether it opened the breaker.
func (c *Consecutive) RecordFailure() bool {
	c.mu.Lock()
	if c.open {
		c.mu.Unlock()
		return false
	}
	c.failures++
	if c.failures < c.cfg.Threshold {
		c.mu.Unlock()
		return false
	}
	c.open = true
	c.openedAt = c.cfg.Now()
	c.mu.Unlock()

	c.changed(true)
	return true
}

// IsOpen reports the state without advancing the cooldown.
func (c *Consecutive) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Failures returns the current consecutive failure count.
func (c *Consecutive) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

func (c *Consecutive) changed(open bool) {
	if open {
		slog.Warn("circuit breaker opened",
			slog.String("circuit", c.cfg.Name),
			slog.Int("threshold", c.cfg.Threshold),
			slog.Duration("cooldown", c.cfg.Cooldown))
	} else {
		slog.Info("circuit breaker closed after cooldown",
			slog.String("circuit", c.cfg.Name))
	}
	metrics.SetBreakerOpen(c.cfg.Name, open)
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(c.cfg.Name, open)
	}
}
