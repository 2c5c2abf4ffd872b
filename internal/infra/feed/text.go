package feed

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// SummaryRunes is the length a stripped summary is clipped to.
const SummaryRunes = 600

// StripHTML returns the visible text of an HTML fragment with whitespace
// collapsed. Script and style elements are dropped.
func StripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return collapseSpace(html.UnescapeString(s))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseSpace(html.UnescapeString(s))
	}
	doc.Find("script, style, noscript").Remove()
	return collapseSpace(doc.Text())
}

// Summarize strips markup from s and clips it to SummaryRunes.
func Summarize(s string) string {
	text := StripHTML(s)
	if utf8.RuneCountInString(text) <= SummaryRunes {
		return text
	}
	r := []rune(text)
	return strings.TrimSpace(string(r[:SummaryRunes])) + "…"
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
