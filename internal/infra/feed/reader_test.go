package feed_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/infra/feed"
	"newsfromai/internal/usecase/ingest"
)

func serve(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		if _, err := w.Write([]byte(body)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestReader_Read_RSS(t *testing.T) {
	server := serve(t, "application/rss+xml", `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <link>https://example.com</link>
    <description>Test Description</description>
    <item>
      <title>Article 1</title>
      <link>https://example.com/article1</link>
      <description>Description 1</description>
      <guid isPermaLink="false">a-1</guid>
      <pubDate>Mon, 01 Jan 2024 00:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Article 2</title>
      <link>https://example.com/article2</link>
      <description>Description 2</description>
      <pubDate>Tue, 02 Jan 2024 00:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`)

	reader := feed.NewReader(&http.Client{Timeout: 10 * time.Second})
	items, err := reader.Read(context.Background(), ingest.SourceRequest{
		Kind:     entity.SourceKindRSS,
		Target:   server.URL,
		Category: "tech",
		FeedID:   7,
	})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items length = %d, want 2", len(items))
	}

	first := items[0]
	if first.Title != "Article 1" {
		t.Errorf("items[0].Title = %q, want %q", first.Title, "Article 1")
	}
	if first.URL != "https://example.com/article1" {
		t.Errorf("items[0].URL = %q, want %q", first.URL, "https://example.com/article1")
	}
	if first.Content != "Description 1" || first.Summary != "Description 1" {
		t.Errorf("items[0] body = %q/%q, want Description 1", first.Content, first.Summary)
	}
	if first.GUID != "a-1" {
		t.Errorf("items[0].GUID = %q, want a-1", first.GUID)
	}
	if items[1].GUID != "" {
		t.Errorf("items[1].GUID = %q, want empty", items[1].GUID)
	}
	if first.SourceName != "Test Feed" {
		t.Errorf("items[0].SourceName = %q, want feed title", first.SourceName)
	}
	if first.Kind != entity.SourceKindRSS || first.Category != "tech" || first.FeedID != 7 {
		t.Errorf("items[0] tags = %q/%q/%d", first.Kind, first.Category, first.FeedID)
	}
	if first.PublishedAt == nil || entity.FormatTimestamp(*first.PublishedAt) != "2024-01-01 00:00:00" {
		t.Errorf("items[0].PublishedAt = %v", first.PublishedAt)
	}
	if len(first.RawPayload) == 0 {
		t.Error("items[0].RawPayload is empty")
	}
}

func TestReader_Read_ConfiguredNameWins(t *testing.T) {
	server := serve(t, "application/rss+xml", `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Feed Title</title>
<item><title>A</title><link>https://example.com/a</link></item>
</channel></rss>`)

	items, err := feed.NewReader(nil).Read(context.Background(), ingest.SourceRequest{
		Target:     server.URL,
		SourceName: "Configured",
	})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(items) != 1 || items[0].SourceName != "Configured" {
		t.Fatalf("items = %+v", items)
	}
}

func TestReader_Read_Atom(t *testing.T) {
	server := serve(t, "application/atom+xml", `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Test Atom Feed</title>
  <subtitle>About things</subtitle>
  <link rel="self" href="https://example.com/feed.xml"/>
  <link href="https://example.com"/>
  <updated>2024-01-01T00:00:00Z</updated>
  <entry>
    <title>Atom Article 1</title>
    <link rel="self" href="https://example.com/atom1.xml"/>
    <link rel="alternate" href="https://example.com/atom1"/>
    <id>urn:uuid:atom1</id>
    <updated>2024-01-01T00:00:00Z</updated>
    <summary>Atom Summary 1</summary>
  </entry>
</feed>`)

	res, err := feed.NewReader(nil).ReadFeed(context.Background(), ingest.SourceRequest{Target: server.URL})
	if err != nil {
		t.Fatalf("ReadFeed() error = %v", err)
	}
	if res.Meta.Title != "Test Atom Feed" || res.Meta.Link != "https://example.com" || res.Meta.Description != "About things" {
		t.Errorf("Meta = %+v", res.Meta)
	}
	if len(res.Items) != 1 {
		t.Fatalf("items length = %d, want 1", len(res.Items))
	}
	item := res.Items[0]
	if item.URL != "https://example.com/atom1" {
		t.Errorf("URL = %q, want alternate link", item.URL)
	}
	if item.GUID != "urn:uuid:atom1" {
		t.Errorf("GUID = %q", item.GUID)
	}
	if item.Summary != "Atom Summary 1" {
		t.Errorf("Summary = %q", item.Summary)
	}
}

func TestReader_Read_LeadingGarbage(t *testing.T) {
	server := serve(t, "text/xml", "Notice: Undefined index in feed.php on line 3\n"+`<?xml version="1.0"?>
<rss version="2.0"><channel><title>T</title>
<item><title>A</title><link>https://example.com/a</link></item>
</channel></rss>`)

	items, err := feed.NewReader(nil).Read(context.Background(), ingest.SourceRequest{Target: server.URL})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items length = %d, want 1", len(items))
	}
}

func TestReader_Read_Limit(t *testing.T) {
	server := serve(t, "application/rss+xml", `<?xml version="1.0"?>
<rss version="2.0"><channel><title>T</title>
<item><title>A</title><link>https://example.com/a</link></item>
<item><title>B</title><link>https://example.com/b</link></item>
<item><title>C</title><link>https://example.com/c</link></item>
</channel></rss>`)

	items, err := feed.NewReader(nil).Read(context.Background(), ingest.SourceRequest{Target: server.URL, Limit: 2})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items length = %d, want 2", len(items))
	}
	if items[1].Title != "B" {
		t.Errorf("items[1].Title = %q, want B", items[1].Title)
	}
}

func TestReader_Read_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			want: entity.ErrTransport,
		},
		{
			name:    "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {},
			want:    entity.ErrTransport,
		},
		{
			name: "html page",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html><body><p>not a feed</p></body></html>"))
			},
			want: entity.ErrParse,
		},
		{
			name: "broken xml",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<?xml version="1.0"?><rss version="2.0"><channel><item><title>x</ti`))
			},
			want: entity.ErrParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			items, err := feed.NewReader(nil).Read(context.Background(), ingest.SourceRequest{Target: server.URL})
			if err == nil {
				t.Fatalf("Read() error = nil, items = %v", items)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Read() error = %v, want %v", err, tt.want)
			}
			if items != nil {
				t.Errorf("items = %v, want nil", items)
			}
		})
	}
}

func TestReader_Read_ContextCanceled(t *testing.T) {
	server := serve(t, "application/rss+xml", `<rss version="2.0"><channel></channel></rss>`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := feed.NewReader(nil).Read(ctx, ingest.SourceRequest{Target: server.URL}); err == nil {
		t.Fatal("Read() error = nil, want error for canceled context")
	}
}

func TestReader_Read_RetriesOnlyTransientStatus(t *testing.T) {
	const rss = `<rss version="2.0"><channel><title>T</title><item><title>A</title><link>https://example.com/a</link></item></channel></rss>`

	tests := []struct {
		name      string
		first     int
		wantCalls int32
		wantErr   bool
	}{
		{name: "service unavailable", first: http.StatusServiceUnavailable, wantCalls: 2},
		{name: "too many requests", first: http.StatusTooManyRequests, wantCalls: 2},
		{name: "not found", first: http.StatusNotFound, wantCalls: 1, wantErr: true},
		{name: "forbidden", first: http.StatusForbidden, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					w.WriteHeader(tt.first)
					return
				}
				_, _ = w.Write([]byte(rss))
			}))
			defer server.Close()

			items, err := feed.NewReader(nil).Read(context.Background(), ingest.SourceRequest{Target: server.URL})
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("requests = %d, want %d", got, tt.wantCalls)
			}
			if tt.wantErr {
				if !errors.Is(err, entity.ErrTransport) {
					t.Errorf("Read() error = %v, want ErrTransport", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if len(items) != 1 {
				t.Errorf("len(items) = %d, want 1", len(items))
			}
		})
	}
}
