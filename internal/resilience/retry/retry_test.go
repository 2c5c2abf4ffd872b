package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsfromai/internal/domain/entity"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		Name:        "test",
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2,
	}
}

// script returns an op that replays errs, then succeeds.
func script(calls *int, errs ...error) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		if *calls <= len(errs) {
			return errs[*calls-1]
		}
		return nil
	}
}

/* ───── Do ───── */

func TestDo_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	require.NoError(t, Do(context.Background(), fastPolicy(3), script(&calls)))
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesServerErrorThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(2), script(&calls,
		fmt.Errorf("%w: %w", entity.ErrTransport, &StatusError{StatusCode: 503, Status: "503 Service Unavailable"})))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_NotFoundIsNotRetried(t *testing.T) {
	calls := 0
	notFound := fmt.Errorf("%w: %w", entity.ErrTransport, &StatusError{StatusCode: 404, Status: "404 Not Found"})
	err := Do(context.Background(), fastPolicy(3), script(&calls, notFound, notFound))

	assert.Equal(t, 1, calls)
	assert.Same(t, notFound, err)
}

func TestDo_ParseErrorIsNotRetried(t *testing.T) {
	calls := 0
	bad := fmt.Errorf("%w: unexpected EOF in <channel>", entity.ErrParse)
	err := Do(context.Background(), fastPolicy(3), script(&calls, bad))

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, entity.ErrParse)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	refused := fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)
	err := Do(context.Background(), fastPolicy(3), script(&calls, refused, refused, refused, refused))

	assert.Equal(t, 3, calls)
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Contains(t, err.Error(), "test: gave up after 3 attempts")
}

func TestDo_ZeroAttemptsMeansOne(t *testing.T) {
	calls := 0
	refused := fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)
	err := Do(context.Background(), fastPolicy(0), script(&calls, refused))

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
}

func TestDo_CanceledWhileWaiting(t *testing.T) {
	p := fastPolicy(3)
	p.BaseDelay = time.Hour
	p.MaxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	op := func(context.Context) error {
		calls++
		time.AfterFunc(20*time.Millisecond, cancel)
		return &StatusError{StatusCode: http.StatusBadGateway}
	}

	err := Do(ctx, p, op)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
	var status *StatusError
	assert.True(t, errors.As(err, &status))
}

func TestDo_StopsWhenContextExpired(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	calls := 0
	err := Do(ctx, fastPolicy(3), script(&calls, ctx.Err(), ctx.Err()))
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_CustomRetryable(t *testing.T) {
	p := fastPolicy(2)
	p.Retryable = func(error) bool { return true }
	calls := 0
	require.NoError(t, Do(context.Background(), p, script(&calls, errors.New("anything"))))
	assert.Equal(t, 2, calls)
}

/* ───── Backoff ───── */

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(4))
	assert.Equal(t, time.Second, p.Backoff(5))
	assert.Equal(t, time.Second, p.Backoff(50))
}

func TestPolicy_BackoffJitterStaysInRange(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2, Jitter: 0.1}
	for range 100 {
		d := p.Backoff(1)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}

func TestPolicies(t *testing.T) {
	feed := FeedPolicy()
	assert.Equal(t, 2, feed.MaxAttempts)
	assert.Equal(t, "feed-fetch", feed.Name)

	db := DBPolicy()
	assert.Equal(t, 3, db.MaxAttempts)
	assert.LessOrEqual(t, db.MaxDelay, time.Second)
	assert.True(t, db.Retryable(errors.New("the database system is starting up")))
	assert.False(t, db.Retryable(context.Canceled))
}

/* ───── Transient ───── */

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"client timeout", fmt.Errorf("get feed: %w", context.DeadlineExceeded), true},
		{"parse", fmt.Errorf("%w: bad xml", entity.ErrParse), false},
		{"500", &StatusError{StatusCode: 500}, true},
		{"503 wrapped", fmt.Errorf("%w: %w", entity.ErrTransport, &StatusError{StatusCode: 503}), true},
		{"408", &StatusError{StatusCode: http.StatusRequestTimeout}, true},
		{"429", &StatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"403", &StatusError{StatusCode: http.StatusForbidden}, false},
		{"404", &StatusError{StatusCode: http.StatusNotFound}, false},
		{"net timeout", fmt.Errorf("read: %w", timeoutErr{}), true},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"unreachable", syscall.ENETUNREACH, true},
		{"truncated body", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), true},
		{"empty body", fmt.Errorf("%w: empty feed body", entity.ErrTransport), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transient(tt.err))
		})
	}
}

func TestStatusError_Error(t *testing.T) {
	assert.Equal(t, "unexpected HTTP status 503 Service Unavailable",
		(&StatusError{StatusCode: 503, Status: "503 Service Unavailable"}).Error())
	assert.Equal(t, "unexpected HTTP status 502", (&StatusError{StatusCode: 502}).Error())
}
