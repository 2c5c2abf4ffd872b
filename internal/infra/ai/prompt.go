package ai

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
)

// Prompt is a system/user template pair for one task.
type Prompt struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Render fills both templates with vars.
func (p Prompt) Render(vars map[string]any) (system, user string) {
	return FillPlaceholders(p.System, vars), FillPlaceholders(p.User, vars)
}

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// FillPlaceholders replaces {name} tokens with values from vars. Strings,
// numbers and booleans are substituted as text; any other value is
// JSON-encoded. Tokens without a matching key are left untouched.
func FillPlaceholders(template string, vars map[string]any) string {
	if len(vars) == 0 {
		return template
	}
	return placeholderRe.ReplaceAllStringFunc(template, func(tok string) string {
		v, ok := vars[tok[1:len(tok)-1]]
		if !ok {
			return tok
		}
		return scalarText(v)
	})
}

func scalarText(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.String:
		return reflect.ValueOf(v).String()
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprint(v)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// DefaultPrompts returns the built-in templates, keyed by task name.
// A configuration file may override any of them.
func DefaultPrompts() map[string]Prompt {
	return map[string]Prompt{
		TaskQueryGenerator: {
			System: "You generate web search queries for a news desk. Reply with JSON only.",
			User: "Reader interest:\n{interest}\n\n" +
				"Return {count} short, distinct search keywords for today's most relevant news on this interest, " +
				`as a JSON object of the form {"keywords": ["...", "..."]}.`,
		},
		TaskNewsAnalyzer: {
			System: "You are a news editor. You turn search results into one well-structured article. Reply with JSON only.",
			User: "Topic: {keyword}\n\nSearch results (JSON):\n{materials}\n\n" +
				"Choose the best presentation format: \"timeline\" for developing stories, " +
				"\"multi_source_report\" when several outlets cover the same event, " +
				"\"single_article_deep_dive\" when one source dominates. " +
				`Reply as {"format": "...", "title": "...", "content": "<Markdown article>"}.`,
		},
		TaskRSSSummarizer: {
			System: "You summarize news articles for a reader digest. Reply with JSON only.",
			User: "Source: {source}\nTitle: {title}\nURL: {url}\nPublished: {published_at}\n\nArticle:\n{content}\n\n" +
				`Reply as {"format": "single_article_deep_dive", "content": "<Markdown summary with key points>"}.`,
		},
		TaskCommenter: {
			System: "You are a columnist. Add a short editorial note (two or three sentences, plain text).",
			User:   "Title: {title}\n\nArticle:\n{content}",
		},
	}
}
