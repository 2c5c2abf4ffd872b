package ai

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

var ugcPolicy = bluemonday.UGCPolicy()

// RenderHTML converts generated Markdown to sanitized HTML. Content that
// already starts with a tag is only sanitized.
func RenderHTML(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "<") {
		return ugcPolicy.Sanitize(trimmed)
	}
	html := blackfriday.Run([]byte(trimmed), blackfriday.WithExtensions(blackfriday.CommonExtensions|blackfriday.AutoHeadingIDs))
	return string(ugcPolicy.SanitizeBytes(html))
}
