// Package notify fans newly stored records out to the configured chat
// channels. Deliveries run in the background so a slow webhook never holds
// up ingestion; each channel has its own circuit breaker.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/resilience/circuitbreaker"
)

const (
	defaultSendTimeout = 30 * time.Second
	defaultPoolTimeout = 30 * time.Second
)

// Channel is one delivery destination. Implementations do their own rate
// limiting and retries.
type Channel interface {
	Name() string
	Send(ctx context.Context, rec *entity.NewsRecord) error
}

// ChannelHealth is the breaker state of one channel.
type ChannelHealth struct {
	Name               string `json:"name"`
	State              string `json:"state"`
	CircuitBreakerOpen bool   `json:"circuit_breaker_open"`
}

type channel struct {
	Channel
	breaker *circuitbreaker.CircuitBreaker
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithMetrics replaces the default-registry metrics.
func WithMetrics(m *Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithSendTimeout bounds one delivery, retries included.
func WithSendTimeout(d time.Duration) Option { return func(s *Service) { s.sendTimeout = d } }

// WithPoolTimeout bounds the wait for a free delivery slot. A delivery that
// cannot get one in time is dropped.
func WithPoolTimeout(d time.Duration) Option { return func(s *Service) { s.poolTimeout = d } }

// Service dispatches records to channels.
type Service struct {
	channels    []channel
	pool        chan struct{}
	logger      *slog.Logger
	metrics     *Metrics
	sendTimeout time.Duration
	poolTimeout time.Duration

	mu             sync.Mutex
	closed         bool
	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewService builds a Service. maxConcurrent bounds in-flight deliveries
// across all channels.
func NewService(channels []Channel, maxConcurrent int, opts ...Option) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		pool:           make(chan struct{}, maxConcurrent),
		logger:         slog.Default(),
		sendTimeout:    defaultSendTimeout,
		poolTimeout:    defaultPoolTimeout,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = DefaultMetrics()
	}
	for _, ch := range channels {
		s.channels = append(s.channels, channel{
			Channel: ch,
			breaker: circuitbreaker.New(circuitbreaker.NotifyChannelConfig(ch.Name())),
		})
	}
	return s
}

// NotifyNewRecord queues rec for every channel and returns immediately.
// Failures are logged and counted, never returned.
func (s *Service) NotifyNewRecord(ctx context.Context, rec *entity.NewsRecord) {
	if rec == nil || len(s.channels) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.WarnContext(ctx, "notification service stopped, record not sent", slog.Int64("record_id", rec.ID))
		return
	}

	snapshot := *rec
	requestID := uuid.NewString()
	for _, ch := range s.channels {
		s.metrics.Dispatched.WithLabelValues(ch.Name()).Inc()
		s.wg.Add(1)
		go s.deliver(requestID, ch, &snapshot)
	}
}

func (s *Service) deliver(requestID string, ch channel, rec *entity.NewsRecord) {
	defer s.wg.Done()
	s.metrics.Active.Inc()
	defer s.metrics.Active.Dec()

	logger := s.logger.With(
		slog.String("request_id", requestID),
		slog.String("channel", ch.Name()),
		slog.Int64("record_id", rec.ID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in notification channel",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	wait := time.NewTimer(s.poolTimeout)
	defer wait.Stop()
	select {
	case s.pool <- struct{}{}:
		defer func() { <-s.pool }()
	case <-wait.C:
		logger.Warn("notification dropped: worker pool full")
		s.metrics.Dropped.WithLabelValues(ch.Name(), "pool_full").Inc()
		return
	case <-s.shutdownCtx.Done():
	}
	if s.shutdownCtx.Err() != nil {
		logger.Warn("notification dropped: service shut down")
		s.metrics.Dropped.WithLabelValues(ch.Name(), "shutdown").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(s.shutdownCtx, s.sendTimeout)
	defer cancel()

	start := time.Now()
	_, err := ch.breaker.Execute(func() (interface{}, error) {
		return nil, ch.Send(ctx, rec)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		logger.Warn("notification dropped: circuit breaker open")
		s.metrics.Dropped.WithLabelValues(ch.Name(), "circuit_open").Inc()
		return
	}

	d := time.Since(start)
	s.metrics.recordResult(ch.Name(), d, err)
	if err != nil {
		logger.Warn("notification failed",
			slog.String("title", rec.Title),
			slog.Duration("send_duration", d),
			slog.Any("error", err))
		return
	}
	logger.Info("notification sent",
		slog.String("title", rec.Title),
		slog.Duration("send_duration", d))
}

// ChannelHealth reports every channel's breaker.
func (s *Service) ChannelHealth() []ChannelHealth {
	out := make([]ChannelHealth, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ChannelHealth{
			Name:               ch.Name(),
			State:              ch.breaker.State().String(),
			CircuitBreakerOpen: ch.breaker.IsOpen(),
		})
	}
	return out
}

// Shutdown stops accepting records and waits for queued deliveries. When
// ctx ends first the remaining deliveries are canceled.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	defer s.shutdownCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("notification shutdown timed out, canceling deliveries")
		return ctx.Err()
	}
}
