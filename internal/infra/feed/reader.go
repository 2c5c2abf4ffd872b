// Package feed reads RSS and Atom feeds and normalizes their entries into
// raw items. It uses gofeed's format parsers with circuit breaker and retry
// around the download.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/observability/logging"
	"newsfromai/internal/observability/metrics"
	"newsfromai/internal/observability/tracing"
	"newsfromai/internal/resilience/circuitbreaker"
	"newsfromai/internal/resilience/retry"
	"newsfromai/internal/usecase/ingest"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
)

const (
	UserAgent      = "newsfromai-feed-reader/1.0"
	DefaultTimeout = 15 * time.Second
	DialTimeout    = 5 * time.Second
	MaxRedirects   = 5
	// MaxBodyBytes caps a downloaded feed document.
	MaxBodyBytes int64 = 5 << 20
)

// Metadata describes the feed itself rather than its entries.
type Metadata struct {
	Title       string
	Link        string
	Description string
}

// Result is a parsed feed: its metadata and at most Limit entries.
type Result struct {
	Meta  Metadata
	Items []entity.RawItem
}

// Reader implements ingest.SourceReader for RSS 2.0, RSS 1.0 and Atom feeds.
type Reader struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryPolicy    retry.Policy
	maxBytes       int64
}

var _ ingest.SourceReader = (*Reader)(nil)

// NewReader creates a Reader using client. A nil client gets DefaultHTTPClient.
func NewReader(client *http.Client) *Reader {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &Reader{
		client:         client,
		circuitBreaker: circuitbreaker.New(circuitbreaker.FeedFetchConfig()),
		retryPolicy:    retry.FeedPolicy(),
		maxBytes:       MaxBodyBytes,
	}
}

// DefaultHTTPClient returns the client used for feed downloads: 15s overall,
// 5s to connect, at most five redirects.
func DefaultHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: DialTimeout}).DialContext
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: tracing.Transport(transport),
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", MaxRedirects)
			}
			return nil
		},
	}
}

// Read returns the feed's entries as raw items.
func (r *Reader) Read(ctx context.Context, req ingest.SourceRequest) ([]entity.RawItem, error) {
	res, err := r.ReadFeed(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// ReadFeed downloads req.Target and parses it. Download failures wrap
// entity.ErrTransport; documents that are not a readable feed wrap
// entity.ErrParse.
func (r *Reader) ReadFeed(ctx context.Context, req ingest.SourceRequest) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "feed.read",
		attribute.Int64("feed.id", req.FeedID),
		attribute.String("feed.url", logging.SafeURL(req.Target)))
	start := time.Now()

	var body []byte
	err := retry.Do(ctx, r.retryPolicy, func(ctx context.Context) error {
		out, err := r.circuitBreaker.Execute(func() (interface{}, error) {
			return r.download(ctx, req.Target)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("feed fetch circuit breaker open, request rejected",
					slog.String("service", "feed-fetch"),
					slog.String("url", logging.SafeURL(req.Target)),
					slog.String("state", r.circuitBreaker.State().String()))
				return fmt.Errorf("%w: feed circuit breaker open", entity.ErrTransport)
			}
			return err
		}
		body = out.([]byte)
		return nil
	})
	metrics.RecordFeedFetch(req.FeedID, time.Since(start))
	if err != nil {
		if !errors.Is(err, entity.ErrTransport) {
			err = fmt.Errorf("%w: %w", entity.ErrTransport, err)
		}
		metrics.RecordFeedFetchError(req.FeedID, "transport")
		tracing.EndSpan(span, err)
		return nil, err
	}

	res, err := Parse(body, req)
	if err != nil {
		metrics.RecordFeedFetchError(req.FeedID, "parse")
		tracing.EndSpan(span, err)
		return nil, err
	}
	tracing.EndSpan(span, nil)
	return res, nil
}

func (r *Reader) download(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", entity.ErrTransport, err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %w", entity.ErrTransport,
			&retry.StatusError{StatusCode: resp.StatusCode, Status: resp.Status})
	}

	body, err := readCapped(resp.Body, r.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrTransport, err)
	}
	if isBlank(body) {
		return nil, fmt.Errorf("%w: empty feed body", entity.ErrTransport)
	}
	return body, nil
}
