// Package search reads keyword results from a JSON web search API. The
// default target is Google Programmable Search, but the response decoder
// also understands the common "results" and Bing-style "webPages" envelopes.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/observability/logging"
	"newsfromai/internal/observability/metrics"
	"newsfromai/internal/observability/tracing"
	"newsfromai/internal/resilience/circuitbreaker"
	"newsfromai/internal/usecase/ingest"

	"github.com/araddon/dateparse"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
)

const (
	UserAgent      = "newsfromai-search/1.0"
	DefaultTimeout = 20 * time.Second
	MaxResults     = 10
	// placeholders used when a hit lacks a field
	missingTitle = "N/A"
	missingLink  = "#"
	maxErrorBody = 512
	maxBodyBytes = 2 << 20
)

// Config holds the endpoint and credentials. APIKey is sent as the "key"
// query parameter and never logged.
type Config struct {
	Endpoint     string
	APIKey       string
	EngineID     string
	Num          int
	DateRestrict string
}

// Reader implements ingest.SourceReader over the search API.
type Reader struct {
	client         *http.Client
	cfg            Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

var _ ingest.SourceReader = (*Reader)(nil)

// NewReader returns a Reader. A nil client gets DefaultHTTPClient(DefaultTimeout).
func NewReader(client *http.Client, cfg Config) *Reader {
	if client == nil {
		client = DefaultHTTPClient(DefaultTimeout)
	}
	return &Reader{
		client:         client,
		cfg:            cfg,
		circuitBreaker: circuitbreaker.New(circuitbreaker.SearchAPIConfig()),
	}
}

// DefaultHTTPClient returns a traced client with the given overall timeout.
func DefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: 5 * time.Second}).DialContext
	return &http.Client{Timeout: timeout, Transport: tracing.Transport(transport)}
}

// Read runs one query. It returns (nil, nil) when the response holds no
// recognizable result container.
func (r *Reader) Read(ctx context.Context, req ingest.SourceRequest) ([]entity.RawItem, error) {
	query := strings.TrimSpace(req.Target)
	if query == "" {
		return nil, nil
	}

	ctx, span := tracing.StartSpan(ctx, "search.read", attribute.String("search.query", query))

	out, err := r.circuitBreaker.Execute(func() (interface{}, error) {
		return r.fetch(ctx, query, r.num(req.Limit))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			slog.Warn("search circuit breaker open, request rejected",
				slog.String("service", "search-api"),
				slog.String("query", query))
			err = fmt.Errorf("%w: search circuit breaker open", entity.ErrTransport)
		}
		metrics.RecordSearchRequest("error", 0)
		tracing.EndSpan(span, err)
		return nil, err
	}

	items, err := decode(out.([]byte), req)
	if err != nil {
		metrics.RecordSearchRequest("error", 0)
		tracing.EndSpan(span, err)
		return nil, err
	}
	metrics.RecordSearchRequest("ok", len(items))
	span.SetAttributes(attribute.Int("search.results", len(items)))
	tracing.EndSpan(span, nil)
	return items, nil
}

// num clamps the requested result count to what the API accepts.
func (r *Reader) num(limit int) int {
	n := limit
	if n <= 0 {
		n = r.cfg.Num
	}
	if n <= 0 {
		n = MaxResults
	}
	return min(max(n, 1), MaxResults)
}

func (r *Reader) fetch(ctx context.Context, query string, num int) ([]byte, error) {
	endpoint, err := url.Parse(r.cfg.Endpoint)
	if err != nil || endpoint.Host == "" {
		return nil, fmt.Errorf("%w: invalid search endpoint", entity.ErrConfiguration)
	}
	q := endpoint.Query()
	q.Set("key", r.cfg.APIKey)
	q.Set("cx", r.cfg.EngineID)
	q.Set("q", query)
	q.Set("num", strconv.Itoa(num))
	if r.cfg.DateRestrict != "" {
		q.Set("dateRestrict", r.cfg.DateRestrict)
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", entity.ErrTransport, err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrTransport, redactURLError(err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", entity.ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		slog.Warn("search request failed",
			slog.String("query", query),
			slog.Int("status_code", resp.StatusCode),
			slog.String("body", snippet))
		return nil, fmt.Errorf("%w: search returned HTTP %d", entity.ErrTransport, resp.StatusCode)
	}
	return body, nil
}

// redactURLError drops the query string (which carries the API key) from
// errors produced by http.Client.
func redactURLError(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	return fmt.Errorf("%s %s: %w", uerr.Op, logging.SafeURL(uerr.URL), uerr.Err)
}

type envelope struct {
	Items    []json.RawMessage `json:"items"`
	Results  []json.RawMessage `json:"results"`
	WebPages *struct {
		Value []json.RawMessage `json:"value"`
	} `json:"webPages"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type hit struct {
	Title       string `json:"title"`
	Name        string `json:"name"`
	Link        string `json:"link"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet"`
	Description string `json:"description"`
	DisplayLink string `json:"displayLink"`
	Pagemap     struct {
		Metatags []map[string]any `json:"metatags"`
	} `json:"pagemap"`
}

var (
	dateTags = []string{"article:published_time", "og:article:published_time", "publishdate", "dc.date.issued", "datepublished", "timestamp"}
	siteTags = []string{"og:site_name", "application-name", "twitter:site"}
)

func decode(body []byte, req ingest.SourceRequest) ([]entity.RawItem, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: search response: %w", entity.ErrParse, err)
	}

	var raw []json.RawMessage
	switch {
	case env.Items != nil:
		raw = env.Items
	case env.Results != nil:
		raw = env.Results
	case env.WebPages != nil && env.WebPages.Value != nil:
		raw = env.WebPages.Value
	case env.Error != nil:
		return nil, fmt.Errorf("%w: search api error %d: %s", entity.ErrTransport, env.Error.Code, env.Error.Message)
	default:
		return nil, nil
	}

	items := make([]entity.RawItem, 0, len(raw))
	for _, msg := range raw {
		var h hit
		if err := json.Unmarshal(msg, &h); err != nil {
			slog.Debug("skipping undecodable search hit", slog.Any("error", err))
			continue
		}
		items = append(items, h.item(msg, req))
	}
	return items, nil
}

func (h hit) item(raw json.RawMessage, req ingest.SourceRequest) entity.RawItem {
	link := firstNonEmpty(h.Link, h.URL, missingLink)
	var meta map[string]any
	if len(h.Pagemap.Metatags) > 0 {
		meta = h.Pagemap.Metatags[0]
	}

	source := firstNonEmpty(metaString(meta, siteTags...), h.DisplayLink, req.SourceName)
	if source == "" {
		if u, err := url.Parse(link); err == nil {
			source = u.Hostname()
		}
	}

	return entity.RawItem{
		Title:       firstNonEmpty(h.Title, h.Name, missingTitle),
		URL:         link,
		Summary:     firstNonEmpty(h.Snippet, h.Description),
		PublishedAt: metaDate(meta),
		SourceName:  source,
		Kind:        entity.SourceKindSearch,
		Category:    req.Category,
		RawPayload:  raw,
	}
}

func metaString(meta map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := meta[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func metaDate(meta map[string]any) *time.Time {
	for _, k := range dateTags {
		s := metaString(meta, k)
		if s == "" {
			continue
		}
		if t, err := dateparse.ParseIn(s, time.UTC); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
