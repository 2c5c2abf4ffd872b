package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/usecase/ingest"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/mmcdole/gofeed/rss"
)

// Parse decodes a feed document into at most req.EffectiveLimit() raw items.
// The configured source name wins over the feed's own title.
func Parse(body []byte, req ingest.SourceRequest) (*Result, error) {
	clean := sanitize(body)
	if len(clean) == 0 {
		return nil, fmt.Errorf("%w: empty feed document", entity.ErrParse)
	}

	switch gofeed.DetectFeedType(bytes.NewReader(clean)) {
	case gofeed.FeedTypeRSS:
		f, err := (&rss.Parser{}).Parse(bytes.NewReader(clean))
		if err != nil {
			return nil, fmt.Errorf("%w: rss: %w", entity.ErrParse, err)
		}
		return fromRSS(f, req), nil
	case gofeed.FeedTypeAtom:
		f, err := (&atom.Parser{}).Parse(bytes.NewReader(clean))
		if err != nil {
			return nil, fmt.Errorf("%w: atom: %w", entity.ErrParse, err)
		}
		return fromAtom(f, req), nil
	default:
		return nil, fmt.Errorf("%w: not an RSS or Atom document", entity.ErrParse)
	}
}

func fromRSS(f *rss.Feed, req ingest.SourceRequest) *Result {
	res := &Result{Meta: Metadata{
		Title:       strings.TrimSpace(f.Title),
		Link:        strings.TrimSpace(f.Link),
		Description: StripHTML(f.Description),
	}}
	name := firstNonEmpty(req.SourceName, res.Meta.Title)
	limit := req.EffectiveLimit()

	for _, it := range f.Items {
		if len(res.Items) >= limit {
			break
		}
		body := firstNonEmpty(it.Description, custom(it.Custom, "summary"), it.Content, custom(it.Custom, "content"))

		var guid, dcDate string
		if it.GUID != nil {
			guid = strings.TrimSpace(it.GUID.Value)
		}
		if it.DublinCoreExt != nil && len(it.DublinCoreExt.Date) > 0 {
			dcDate = it.DublinCoreExt.Date[0]
		}

		res.Items = append(res.Items, entity.RawItem{
			Title:       StripHTML(it.Title),
			URL:         rssLink(it),
			Summary:     Summarize(body),
			Content:     body,
			PublishedAt: firstDate(it.PubDate, custom(it.Custom, "updated"), custom(it.Custom, "published"), dcDate),
			SourceName:  name,
			Kind:        entity.SourceKindRSS,
			Category:    req.Category,
			RawPayload:  payload(it),
			GUID:        guid,
			FeedID:      req.FeedID,
		})
	}
	return res
}

func fromAtom(f *atom.Feed, req ingest.SourceRequest) *Result {
	res := &Result{Meta: Metadata{
		Title:       strings.TrimSpace(f.Title),
		Link:        atomLink(f.Links),
		Description: StripHTML(f.Subtitle),
	}}
	name := firstNonEmpty(req.SourceName, res.Meta.Title)
	limit := req.EffectiveLimit()

	for _, e := range f.Entries {
		if len(res.Items) >= limit {
			break
		}
		var content string
		if e.Content != nil {
			content = e.Content.Value
		}
		body := firstNonEmpty(e.Summary, content)

		var dcDate string
		if dc, ok := e.Extensions["dc"]; ok {
			if d := ext.NewDublinCoreExtension(dc); len(d.Date) > 0 {
				dcDate = d.Date[0]
			}
		}

		res.Items = append(res.Items, entity.RawItem{
			Title:       StripHTML(e.Title),
			URL:         atomLink(e.Links),
			Summary:     Summarize(body),
			Content:     body,
			PublishedAt: firstDate(e.Updated, e.Published, dcDate),
			SourceName:  name,
			Kind:        entity.SourceKindRSS,
			Category:    req.Category,
			RawPayload:  payload(e),
			GUID:        strings.TrimSpace(e.ID),
			FeedID:      req.FeedID,
		})
	}
	return res
}

func rssLink(it *rss.Item) string {
	if link := strings.TrimSpace(it.Link); link != "" {
		return link
	}
	for _, l := range it.Links {
		if strings.TrimSpace(l) != "" {
			return strings.TrimSpace(l)
		}
	}
	// A permalink guid doubles as the item link.
	if it.GUID != nil && it.GUID.IsPermalink != "false" && entity.IsHTTPURL(it.GUID.Value) {
		return strings.TrimSpace(it.GUID.Value)
	}
	return ""
}

// atomLink prefers rel="alternate", then the first link without rel, then
// the first link.
func atomLink(links []*atom.Link) string {
	var noRel, first string
	for _, l := range links {
		if l == nil || strings.TrimSpace(l.Href) == "" {
			continue
		}
		href := strings.TrimSpace(l.Href)
		if first == "" {
			first = href
		}
		switch strings.ToLower(strings.TrimSpace(l.Rel)) {
		case "alternate":
			return href
		case "":
			if noRel == "" {
				noRel = href
			}
		}
	}
	return firstNonEmpty(noRel, first)
}

func custom(m map[string]string, key string) string {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func payload(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
