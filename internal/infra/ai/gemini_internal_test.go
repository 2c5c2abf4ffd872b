package ai

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
)

func TestGeminiText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"format":`), genai.Text(`"timeline"}`)}},
		}},
	}
	assert.Equal(t, `{"format":"timeline"}`, geminiText(resp))

	assert.Equal(t, "", geminiText(nil))
	assert.Equal(t, "", geminiText(&genai.GenerateContentResponse{}))
	assert.Equal(t, "", geminiText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	// multi-byte runes are never split
	assert.Equal(t, "日...", truncate("日本語", 4))
}
