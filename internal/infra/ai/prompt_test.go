package ai_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/infra/ai"
)

func TestFillPlaceholders(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     map[string]any
		want     string
	}{
		{"string", "Interest: {interest}", map[string]any{"interest": "AI"}, "Interest: AI"},
		{"number and bool", "{count} items, strict={strict}", map[string]any{"count": 5, "strict": true}, "5 items, strict=true"},
		{"named string type", "format={format}", map[string]any{"format": entity.FormatTimeline}, "format=timeline"},
		{"non-scalar is JSON", "urls={urls}", map[string]any{"urls": []string{"a", "b"}}, `urls=["a","b"]`},
		{"map is JSON", "{m}", map[string]any{"m": map[string]int{"x": 1}}, `{"x":1}`},
		{"unknown token kept", "hello {name}", map[string]any{"other": 1}, "hello {name}"},
		{"json braces untouched", `{"format": "{format}"}`, map[string]any{"format": "x"}, `{"format": "x"}`},
		{"nil value", "[{v}]", map[string]any{"v": nil}, "[]"},
		{"no vars", "{a}", nil, "{a}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ai.FillPlaceholders(tt.template, tt.vars))
		})
	}
}

func TestDefaultPrompts_CoverAllTasks(t *testing.T) {
	prompts := ai.DefaultPrompts()
	for _, task := range []string{ai.TaskQueryGenerator, ai.TaskNewsAnalyzer, ai.TaskRSSSummarizer, ai.TaskCommenter} {
		p, ok := prompts[task]
		assert.True(t, ok, task)
		assert.NotEmpty(t, p.User, task)
	}

	_, user := prompts[ai.TaskQueryGenerator].Render(map[string]any{"interest": "robotics", "count": 4})
	assert.Contains(t, user, "robotics")
	assert.Contains(t, user, "Return 4 short")
}
