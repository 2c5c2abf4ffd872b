package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"newsfromai/internal/domain/entity"
)

const (
	maxAttempts   = 2
	maxErrorBody  = 512
	defaultWait   = 5 * time.Second
	maxRetryAfter = time.Minute
)

// RateLimitError is a 429 reply.
type RateLimitError struct {
	RetryAfter time.Duration
	Service    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded (retry after %v)", e.Service, e.RetryAfter)
}

// ClientError is a non-429 4xx reply. It is not retried.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string { return e.Message }

// ServerError is a 5xx reply.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string { return e.Message }

func isRetryable(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// webhook is the transport shared by the Slack and Discord notifiers.
type webhook struct {
	service string
	cfg     WebhookConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func newWebhook(service string, cfg WebhookConfig, limit rate.Limit, burst int, logger *slog.Logger) *webhook {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &webhook{
		service: service,
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// deliver waits for a rate-limit token, then posts payload with retries.
func (w *webhook) deliver(ctx context.Context, rec *entity.NewsRecord, payload any) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limiter: %w", w.service, err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", w.service, err)
	}

	logger := w.logger.With(
		slog.String("channel", w.service),
		slog.Int64("record_id", rec.ID),
		slog.String("url", rec.SourceURL))

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = w.post(ctx, body)
		if lastErr == nil {
			logger.Debug("notification delivered", slog.Int("attempt", attempt))
			return nil
		}
		if !isRetryable(lastErr) || attempt == maxAttempts {
			break
		}

		wait := w.cfg.retryDelay() * time.Duration(attempt)
		var rl *RateLimitError
		if errors.As(lastErr, &rl) {
			wait = rl.RetryAfter
		}
		logger.Warn("notification failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", wait),
			slog.Any("error", lastErr))

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s notification canceled: %w", w.service, ctx.Err())
		}
	}
	return fmt.Errorf("%s notification failed: %w", w.service, lastErr)
}

func (w *webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", w.service, stripURL(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s webhook: %w", entity.ErrTransport, w.service, stripURL(err))
	}
	defer func() { _ = resp.Body.Close() }()
	reply, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{Service: w.service, RetryAfter: retryAfter(resp, reply)}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &ClientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s webhook client error %d: %s", w.service, resp.StatusCode, reply),
		}
	case resp.StatusCode >= 500:
		return &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s webhook server error %d: %s", w.service, resp.StatusCode, reply),
		}
	}
	return fmt.Errorf("%s webhook: unexpected status %d", w.service, resp.StatusCode)
}

// retryAfter reads the wait from a JSON retry_after field (Discord, in
// seconds) or the Retry-After header. It is capped at one minute.
func retryAfter(resp *http.Response, body []byte) time.Duration {
	var payload struct {
		RetryAfter float64 `json:"retry_after"`
	}
	wait := defaultWait
	if err := json.Unmarshal(body, &payload); err == nil && payload.RetryAfter > 0 {
		wait = time.Duration(payload.RetryAfter * float64(time.Second))
	} else if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
	}
	return min(wait, maxRetryAfter)
}

// stripURL removes the request URL from http.Client errors; webhook URLs
// carry their token in the path.
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}
