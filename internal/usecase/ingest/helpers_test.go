package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/infra/ai"
)

func TestNormalizeKeywords(t *testing.T) {
	tests := []struct {
		name  string
		in    []string
		limit int
		want  []string
	}{
		{"trims and collapses", []string{"  go   generics ", "rust"}, 5, []string{"go generics", "rust"}},
		{"drops empties", []string{"", "   ", "go"}, 5, []string{"go"}},
		{"case-insensitive dedup keeps first", []string{"Go", "go", "GO"}, 5, []string{"Go"}},
		{"caps at limit", []string{"a", "b", "c", "d"}, 3, []string{"a", "b", "c"}},
		{"nil", nil, 5, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeKeywords(tt.in, tt.limit))
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 10, TruncationMarker))
	assert.Equal(t, "日本"+TruncationMarker, truncateRunes("日本語です", 2, TruncationMarker))
	assert.Equal(t, "abc", truncateRunes("abcdef", 3, ""))
	assert.Equal(t, "unlimited", truncateRunes("unlimited", 0, TruncationMarker))
}

func TestFallbackContent(t *testing.T) {
	got := FallbackContent(entity.RawItem{Title: "T", Summary: "S", URL: "https://example.com/x"})
	assert.Equal(t, "## T\n\nS\n\n[Read original](https://example.com/x)", got)
}

func TestArticleFromAnalysis_Article(t *testing.T) {
	g := keywordGroup{keyword: "go", items: []entity.RawItem{
		{Title: "A", URL: "https://a.example"},
		{Title: "B", URL: "https://b.example"},
	}}
	r := ai.Repaired{Step: ai.StepSpan, Article: &ai.ArticlePayload{
		Format:  "listicle",
		Summary: "  body  ",
		Comment: "note",
	}}

	got := articleFromAnalysis(r, g)
	assert.Equal(t, entity.Format("listicle"), got.Format, "unknown formats are kept")
	assert.Equal(t, "body", got.Content)
	assert.Equal(t, "note", got.Comment)
	assert.Equal(t, "span", got.RepairStep)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, got.SourceURLs)
}

func TestSearchRecord(t *testing.T) {
	published := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	g := keywordGroup{keyword: "go", items: []entity.RawItem{
		{Title: "A", URL: "https://a.example", SourceName: "A News", PublishedAt: &published, RawPayload: []byte(`{"id":1}`)},
		{Title: "B", URL: "https://b.example", RawPayload: []byte(`{"id":2}`)},
	}}
	rec := searchRecord(g, entity.GeneratedArticle{Format: entity.FormatTimeline, Content: "c", SourceURLs: []string{"https://a.example", "https://b.example"}})

	assert.Equal(t, "A", rec.Title)
	assert.Equal(t, "https://a.example", rec.SourceURL)
	assert.Equal(t, "A News", rec.SourceName)
	assert.Equal(t, "go", rec.Category)
	require.NotNil(t, rec.PublishedAt)
	assert.JSONEq(t, `[{"id":1},{"id":2}]`, string(rec.RawPayload))
}

func TestMaterials(t *testing.T) {
	published := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	m := materials([]entity.RawItem{{Title: "A", URL: "https://a.example", Summary: "s", PublishedAt: &published}})
	require.Len(t, m, 1)
	assert.Equal(t, "2024-02-03 04:05:06", m[0].PublishedAt)

	system, user := ai.DefaultPrompts()[ai.TaskNewsAnalyzer].Render(map[string]any{"keyword": "go", "materials": m})
	assert.NotEmpty(t, system)
	assert.True(t, strings.Contains(user, `"url":"https://a.example"`))
}

func TestNewOrchestrator_Defaults(t *testing.T) {
	o := NewOrchestrator(Config{}, Deps{})
	def := DefaultConfig()
	assert.Equal(t, def.KeywordsMin, o.cfg.KeywordsMin)
	assert.Equal(t, def.KeywordsMax, o.cfg.KeywordsMax)
	assert.Equal(t, def.MaxContentRunes, o.cfg.MaxContentRunes)
	assert.Equal(t, def.BreakerThreshold, o.cfg.BreakerThreshold)
	assert.Equal(t, PhaseIdle, o.Phase())
	assert.False(t, o.BreakerOpen())
}
