// Package retry repeats feed downloads and database pings that failed for a
// transient reason. Which failures are transient is decided by Transient;
// everything else is returned after the first attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"syscall"
	"time"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/observability/logging"
)

// Policy describes how often and how patiently an operation is repeated.
type Policy struct {
	// Name identifies the operation in logs.
	Name string

	// MaxAttempts counts the first call. Values below 1 mean one attempt.
	MaxAttempts int

	// BaseDelay is the wait after the first failure. Each further wait is
	// multiplied by Multiplier and capped at MaxDelay.
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64

	// Jitter adds up to this fraction of the wait at random (0 to 1).
	Jitter float64

	// Retryable overrides Transient.
	Retryable func(error) bool
}

// FeedPolicy makes one extra attempt. A feed that is still failing is read
// again on the next run.
func FeedPolicy() Policy {
	return Policy{
		Name:        "feed-fetch",
		MaxAttempts: 2,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
		Jitter:      0.1,
	}
}

// DBPolicy covers a database that is still starting up. Any ping failure
// other than cancellation is retried.
func DBPolicy() Policy {
	return Policy{
		Name:        "db-ping",
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2,
		Jitter:      0.1,
		Retryable: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
	}
}

// Do calls op until it succeeds, fails permanently, attempts run out or ctx
// ends. The error of the last attempt is returned wrapped.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	logger := logging.FromContext(ctx).With(slog.String("operation", p.Name))
	retryable := p.Retryable
	if retryable == nil {
		retryable = Transient
	}
	attempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil {
			if attempt > 1 {
				logger.InfoContext(ctx, "succeeded after retry", slog.Int("attempt", attempt))
			}
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		wait := p.Backoff(attempt)
		logger.WarnContext(ctx, "transient failure, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", wait),
			slog.Any("error", err))

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s: retry aborted: %w", p.Name, errors.Join(ctx.Err(), err))
		}
	}
	return fmt.Errorf("%s: gave up after %d attempts: %w", p.Name, attempts, err)
}

// Backoff is the wait after the given failed attempt (1-based), jitter
// included.
func (p Policy) Backoff(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	for i := 1; i < attempt; i++ {
		d *= mult
	}
	if p.MaxDelay > 0 {
		d = min(d, float64(p.MaxDelay))
	}
	if j := min(p.Jitter, 1); j > 0 {
		// #nosec G404 -- jitter does not need a cryptographic source.
		d += rand.Float64() * d * j
	}
	return time.Duration(d)
}

// StatusError is an HTTP reply that was not the expected success.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
	}
	return "unexpected HTTP status " + e.Status
}

// TransientStatus reports whether a reply with code may succeed when
// repeated: 408, 429 and 5xx.
func TransientStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500 && code < 600:
		return true
	}
	return false
}

// Transient reports whether err is worth another attempt. Cancellation,
// malformed documents and 4xx replies other than 408 and 429 are permanent.
// Timeouts (including http.Client.Timeout), refused or reset connections,
// truncated bodies and TransientStatus replies are transient; Do still stops
// once its own context is done.
func Transient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, entity.ErrParse):
		return false
	}

	var status *StatusError
	if errors.As(err, &status) {
		return TransientStatus(status.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
