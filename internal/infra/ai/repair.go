package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"newsfromai/internal/domain/entity"
)

// Shape is the JSON structure a task's reply must have.
type Shape int

const (
	// ShapeArticle is an object with "format" and "content" or "summary".
	ShapeArticle Shape = iota
	// ShapeItemList is an array of objects with "title", "summary" or
	// "content", and "source_url" or "url".
	ShapeItemList
	// ShapeStringList is an array of strings, optionally wrapped in an
	// object.
	ShapeStringList
	// ShapeArticleOrList accepts either ShapeArticle or ShapeItemList.
	ShapeArticleOrList
)

func (s Shape) String() string {
	switch s {
	case ShapeArticle:
		return "article"
	case ShapeItemList:
		return "item_list"
	case ShapeStringList:
		return "string_list"
	case ShapeArticleOrList:
		return "article_or_list"
	}
	return "unknown"
}

// RepairStep names the step that produced a usable value.
type RepairStep string

const (
	StepDirect RepairStep = "direct"
	StepSpan   RepairStep = "span"
	StepFence  RepairStep = "fence"
	StepOpaque RepairStep = "opaque"
)

// ArticlePayload is the object form of a reply.
type ArticlePayload struct {
	Format     string   `json:"format"`
	Title      string   `json:"title,omitempty"`
	Content    string   `json:"content,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	Comment    string   `json:"comment,omitempty"`
	SourceURLs []string `json:"source_urls,omitempty"`
}

// Body returns Content, or Summary when Content is empty.
func (a ArticlePayload) Body() string {
	if strings.TrimSpace(a.Content) != "" {
		return a.Content
	}
	return a.Summary
}

// ItemPayload is one element of a list reply.
type ItemPayload struct {
	Title     string `json:"title"`
	Summary   string `json:"summary,omitempty"`
	Content   string `json:"content,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	URL       string `json:"url,omitempty"`
	Format    string `json:"format,omitempty"`
}

// Body returns Summary, or Content when Summary is empty.
func (i ItemPayload) Body() string {
	if strings.TrimSpace(i.Summary) != "" {
		return i.Summary
	}
	return i.Content
}

// Link returns SourceURL, or URL when SourceURL is empty.
func (i ItemPayload) Link() string {
	if i.SourceURL != "" {
		return i.SourceURL
	}
	return i.URL
}

// Repaired holds exactly one populated value matching the requested shape.
type Repaired struct {
	Step    RepairStep
	Article *ArticlePayload
	Items   []ItemPayload
	Strings []string
}

// Repair extracts a value of the given shape from a model reply, trying
// direct parse, then the first bracketed span, then a fenced code block.
// With allowOpaque and ShapeArticle (or ShapeArticleOrList), any non-empty
// reply finally becomes a single_article_deep_dive article.
func Repair(raw string, shape Shape, allowOpaque bool) (Repaired, error) {
	steps := []struct {
		step RepairStep
		fn   func(string, Shape) (Repaired, bool)
	}{
		{StepDirect, parseDirect},
		{StepSpan, parseSpan},
		{StepFence, parseFence},
	}
	for _, s := range steps {
		if r, ok := s.fn(raw, shape); ok {
			r.Step = s.step
			return r, nil
		}
	}
	if allowOpaque {
		if r, ok := opaqueFallback(raw, shape); ok {
			return r, nil
		}
	}
	return Repaired{}, fmt.Errorf("reply does not match %s shape: %w", shape, entity.ErrContentShape)
}

func parseDirect(raw string, shape Shape) (Repaired, bool) {
	return decodeShape(strings.TrimSpace(raw), shape)
}

// parseSpan takes the text from the first '{' or '[' through the last
// matching closer. When that greedy span does not decode, the first balanced
// span starting at the same opener is tried.
func parseSpan(raw string, shape Shape) (Repaired, bool) {
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return Repaired{}, false
	}
	closer := byte('}')
	if raw[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(raw, closer)
	if end > start {
		if r, ok := decodeShape(raw[start:end+1], shape); ok {
			return r, true
		}
	}
	if span, ok := balancedSpan(raw[start:]); ok {
		return decodeShape(span, shape)
	}
	return Repaired{}, false
}

var fenceRe = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \\t]*\\r?\\n?(.*?)```")

func parseFence(raw string, shape Shape) (Repaired, bool) {
	for _, m := range fenceRe.FindAllStringSubmatch(raw, -1) {
		if r, ok := decodeShape(strings.TrimSpace(m[1]), shape); ok {
			return r, true
		}
	}
	return Repaired{}, false
}

func opaqueFallback(raw string, shape Shape) (Repaired, bool) {
	if shape != ShapeArticle && shape != ShapeArticleOrList {
		return Repaired{}, false
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return Repaired{}, false
	}
	return Repaired{
		Step:    StepOpaque,
		Article: &ArticlePayload{Format: string(entity.FormatSingleDeepDive), Content: text},
	}, true
}

// balancedSpan returns the prefix of s (which starts with an opener) up to
// its matching closer, skipping brackets inside JSON strings.
func balancedSpan(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

func decodeShape(text string, shape Shape) (Repaired, bool) {
	if text == "" {
		return Repaired{}, false
	}
	switch shape {
	case ShapeArticle:
		return decodeArticle(text)
	case ShapeItemList:
		return decodeItems(text)
	case ShapeStringList:
		return decodeStrings(text)
	case ShapeArticleOrList:
		if r, ok := decodeArticle(text); ok {
			return r, true
		}
		return decodeItems(text)
	}
	return Repaired{}, false
}

func decodeArticle(text string) (Repaired, bool) {
	if text[0] != '{' {
		return Repaired{}, false
	}
	var a ArticlePayload
	if err := json.Unmarshal([]byte(text), &a); err != nil {
		return Repaired{}, false
	}
	if strings.TrimSpace(a.Format) == "" || strings.TrimSpace(a.Body()) == "" {
		return Repaired{}, false
	}
	return Repaired{Article: &a}, true
}

func decodeItems(text string) (Repaired, bool) {
	if text[0] != '[' {
		return Repaired{}, false
	}
	var items []ItemPayload
	if err := json.Unmarshal([]byte(text), &items); err != nil || len(items) == 0 {
		return Repaired{}, false
	}
	for _, it := range items {
		if strings.TrimSpace(it.Title) == "" || strings.TrimSpace(it.Body()) == "" || strings.TrimSpace(it.Link()) == "" {
			return Repaired{}, false
		}
	}
	return Repaired{Items: items}, true
}

// decodeStrings accepts a bare array, or an object wrapping it under
// "keywords" or a single key (JSON mode forces an object at the top level).
func decodeStrings(text string) (Repaired, bool) {
	if text[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return Repaired{}, false
		}
		inner, ok := obj["keywords"]
		if !ok && len(obj) == 1 {
			for _, v := range obj {
				inner = v
			}
		}
		text = strings.TrimSpace(string(inner))
		if text == "" {
			return Repaired{}, false
		}
	}
	if text[0] != '[' {
		return Repaired{}, false
	}
	var list []string
	if err := json.Unmarshal([]byte(text), &list); err != nil {
		return Repaired{}, false
	}
	return Repaired{Strings: list}, true
}
