package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/* ───── ヘルパ ───── */

const rssBody = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Example</title>
<item><guid>g-1</guid><title>First post</title><link>https://example.com/first</link><description>first body</description></item>
<item><guid>g-2</guid><title>Second post</title><link>https://example.com/second</link><description>second body</description></item>
</channel></rss>`

type env struct {
	configPath string
	dbPath     string
}

// setup writes a config with one feed served by httptest and points the
// CLI at a fresh SQLite file. No API keys are set, so feed items get the
// fallback summary and search stays disabled.
func setup(t *testing.T) env {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("SEARCH_API_KEY", "")
	t.Setenv("CONTENT_FETCH_ENABLED", "false")
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("DATABASE_URL", "")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssBody))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := `
interest: "open source databases"
feeds:
  - name: Example
    url: ` + srv.URL + `/rss
    category: tech
pipeline:
  search_delay: 0s
  item_delay: 0s
  feed_delay: 0s
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return env{configPath: path, dbPath: filepath.Join(dir, "news.db")}
}

func (e env) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", e.configPath, "--db-driver", "sqlite", "--db-url", e.dbPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

/* ───── run / list / feeds ───── */

func TestRunThenList(t *testing.T) {
	e := setup(t)

	out, err := e.execute(t, "run", "--json")
	require.NoError(t, err)
	var first runSummary
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	assert.Equal(t, "ok", first.Status)
	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 2, first.Fallbacks)
	assert.Equal(t, 1, first.FeedsProcessed)
	assert.Empty(t, first.FailedSteps)

	out, err = e.execute(t, "list", "--json")
	require.NoError(t, err)
	var views []newsView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 2)
	for _, v := range views {
		assert.True(t, v.Fallback)
		assert.Equal(t, "single_article_deep_dive", v.Format)
		assert.Equal(t, "tech", v.Category)
		assert.Empty(t, v.ContentHTML)
		assert.Contains(t, v.Content, "[Read original]("+v.SourceURL+")")
	}

	out, err = e.execute(t, "run", "--json")
	require.NoError(t, err)
	var second runSummary
	require.NoError(t, json.Unmarshal([]byte(out), &second))
	assert.Zero(t, second.Inserted)
	assert.Equal(t, 2, second.Duplicated)
}

func TestList_TableAndPaging(t *testing.T) {
	e := setup(t)
	_, err := e.execute(t, "run")
	require.NoError(t, err)

	out, err := e.execute(t, "list", "--limit", "1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "[fallback]")

	out, err = e.execute(t, "list", "--category", "nope", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)

	_, err = e.execute(t, "list", "--offset", "-1")
	assert.Error(t, err)
}

func TestList_HTMLIncludedOnRequest(t *testing.T) {
	e := setup(t)
	_, err := e.execute(t, "run")
	require.NoError(t, err)

	out, err := e.execute(t, "list", "--json", "--html", "--limit", "1")
	require.NoError(t, err)
	var views []newsView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Contains(t, views[0].ContentHTML, "<a href=")
}

func TestFeeds_SyncAndList(t *testing.T) {
	e := setup(t)

	out, err := e.execute(t, "feeds", "sync")
	require.NoError(t, err)
	assert.Equal(t, "1 feeds synchronized\n", out)

	out, err = e.execute(t, "feeds", "list", "--json")
	require.NoError(t, err)
	var feeds []feedView
	require.NoError(t, json.Unmarshal([]byte(out), &feeds))
	require.Len(t, feeds, 1)
	assert.Equal(t, "Example", feeds[0].Name)
	assert.True(t, feeds[0].Active)
	assert.Nil(t, feeds[0].LastFetchedAt)

	_, err = e.execute(t, "run", "--no-sync")
	require.NoError(t, err)

	out, err = e.execute(t, "feeds", "list", "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &feeds))
	require.Len(t, feeds, 1)
	assert.NotNil(t, feeds[0].LastFetchedAt)
	assert.Empty(t, feeds[0].LastError)
}

/* ───── migrate / version ───── */

func TestMigrate(t *testing.T) {
	e := setup(t)

	out, err := e.execute(t, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date (sqlite)")

	_, err = e.execute(t, "migrate", "down")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	out, err = e.execute(t, "migrate", "down", "--yes")
	require.NoError(t, err)
	assert.Equal(t, "schema dropped\n", out)

	_, err = e.execute(t, "list")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "dev\n", out.String())

	cmd = newRootCmd()
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--json"})
	require.NoError(t, cmd.Execute())
	var info map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, "dev", info["version"])
	assert.NotEmpty(t, info["goVersion"])
}

func TestRun_MissingConfig(t *testing.T) {
	e := setup(t)
	e.configPath = filepath.Join(t.TempDir(), "absent.yaml")
	_, err := e.execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "あいう…", clip("あいうえお", 4))
}
