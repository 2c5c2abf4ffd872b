package search_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/infra/search"
	"newsfromai/internal/usecase/ingest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secretKey = "sk-search-secret-123"

func newServer(t *testing.T, status int, body string, check func(*http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func newReader(endpoint string) *search.Reader {
	return search.NewReader(nil, search.Config{
		Endpoint: endpoint,
		APIKey:   secretKey,
		EngineID: "cx-1",
		Num:      5,
	})
}

func TestReader_Read_GoogleItems(t *testing.T) {
	body := `{
  "kind": "customsearch#search",
  "items": [
    {
      "title": "Go 1.26 released",
      "link": "https://go.dev/blog/go1.26",
      "snippet": "The Go team is happy to announce...",
      "displayLink": "go.dev",
      "pagemap": {"metatags": [{"og:site_name": "The Go Blog", "article:published_time": "2026-02-10T17:00:00Z"}]}
    },
    {
      "snippet": "no title and no link"
    }
  ]
}`
	var got *http.Request
	server := newServer(t, http.StatusOK, body, func(r *http.Request) { got = r })

	items, err := newReader(server.URL).Read(context.Background(), ingest.SourceRequest{
		Kind:     entity.SourceKindSearch,
		Target:   "golang release",
		Category: "golang release",
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	q := got.URL.Query()
	assert.Equal(t, secretKey, q.Get("key"))
	assert.Equal(t, "cx-1", q.Get("cx"))
	assert.Equal(t, "golang release", q.Get("q"))
	assert.Equal(t, "5", q.Get("num"))
	assert.Equal(t, search.UserAgent, got.Header.Get("User-Agent"))

	first := items[0]
	assert.Equal(t, "Go 1.26 released", first.Title)
	assert.Equal(t, "https://go.dev/blog/go1.26", first.URL)
	assert.Equal(t, "The Go team is happy to announce...", first.Summary)
	assert.Equal(t, "The Go Blog", first.SourceName)
	assert.Equal(t, entity.SourceKindSearch, first.Kind)
	assert.Equal(t, "golang release", first.Category)
	require.NotNil(t, first.PublishedAt)
	assert.Equal(t, "2026-02-10 17:00:00", entity.FormatTimestamp(*first.PublishedAt))
	assert.Contains(t, string(first.RawPayload), "go1.26")

	second := items[1]
	assert.Equal(t, "N/A", second.Title)
	assert.Equal(t, "#", second.URL)
	assert.Error(t, second.Validate(), "placeholder link must not validate")
}

func TestReader_Read_AlternateEnvelopes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantTitle string
		wantURL   string
		wantSum   string
	}{
		{
			name:      "results",
			body:      `{"results":[{"name":"Result name","url":"https://example.com/r","description":"desc"}]}`,
			wantTitle: "Result name",
			wantURL:   "https://example.com/r",
			wantSum:   "desc",
		},
		{
			name:      "webPages",
			body:      `{"webPages":{"value":[{"name":"Bing hit","url":"https://example.com/b","snippet":"snip"}]}}`,
			wantTitle: "Bing hit",
			wantURL:   "https://example.com/b",
			wantSum:   "snip",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newServer(t, http.StatusOK, tt.body, nil)
			items, err := newReader(server.URL).Read(context.Background(), ingest.SourceRequest{Target: "q"})
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, tt.wantTitle, items[0].Title)
			assert.Equal(t, tt.wantURL, items[0].URL)
			assert.Equal(t, tt.wantSum, items[0].Summary)
			assert.Equal(t, "example.com", items[0].SourceName)
		})
	}
}

func TestReader_Read_NoContainer(t *testing.T) {
	server := newServer(t, http.StatusOK, `{"kind":"customsearch#search","searchInformation":{"totalResults":"0"}}`, nil)

	items, err := newReader(server.URL).Read(context.Background(), ingest.SourceRequest{Target: "nothing"})
	assert.NoError(t, err)
	assert.Nil(t, items)
}

func TestReader_Read_EmptyQuery(t *testing.T) {
	called := false
	server := newServer(t, http.StatusOK, `{"items":[]}`, func(*http.Request) { called = true })

	items, err := newReader(server.URL).Read(context.Background(), ingest.SourceRequest{Target: "  "})
	assert.NoError(t, err)
	assert.Nil(t, items)
	assert.False(t, called)
}

func TestReader_Read_Failures(t *testing.T) {
	t.Run("non-2xx is transport error without secrets", func(t *testing.T) {
		server := newServer(t, http.StatusForbidden, `{"error":{"code":403,"message":"quota"}}`, nil)
		_, err := newReader(server.URL).Read(context.Background(), ingest.SourceRequest{Target: "q"})
		require.ErrorIs(t, err, entity.ErrTransport)
		assert.NotContains(t, err.Error(), secretKey)
	})

	t.Run("malformed json is parse error", func(t *testing.T) {
		server := newServer(t, http.StatusOK, `{"items": [`, nil)
		_, err := newReader(server.URL).Read(context.Background(), ingest.SourceRequest{Target: "q"})
		assert.ErrorIs(t, err, entity.ErrParse)
	})

	t.Run("error object with 200", func(t *testing.T) {
		server := newServer(t, http.StatusOK, `{"error":{"code":400,"message":"bad cx"}}`, nil)
		_, err := newReader(server.URL).Read(context.Background(), ingest.SourceRequest{Target: "q"})
		assert.ErrorIs(t, err, entity.ErrTransport)
	})

	t.Run("unreachable host hides key", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		endpoint := server.URL
		server.Close()

		_, err := newReader(endpoint).Read(context.Background(), ingest.SourceRequest{Target: "q"})
		require.ErrorIs(t, err, entity.ErrTransport)
		assert.False(t, strings.Contains(err.Error(), secretKey), "error leaks api key: %v", err)
	})
}

func TestReader_Read_ClampsNum(t *testing.T) {
	tests := []struct {
		limit int
		want  string
	}{
		{limit: 25, want: "10"},
		{limit: 3, want: "3"},
		{limit: 0, want: "5"},
	}
	for _, tt := range tests {
		var num string
		server := newServer(t, http.StatusOK, `{"items":[]}`, func(r *http.Request) { num = r.URL.Query().Get("num") })
		_, err := newReader(server.URL).Read(context.Background(), ingest.SourceRequest{Target: "q", Limit: tt.limit})
		require.NoError(t, err)
		assert.Equal(t, tt.want, num, "limit %d", tt.limit)
	}
}
