package feed

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// dateLayouts are tried in order before falling back to dateparse.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"Mon, 2 Jan 2006 15:04:05 -0700",
}

// zoneOffsets maps the named zones seen in RFC 822/1123 dates to numeric
// offsets. time.Parse reads an unknown abbreviation as UTC.
var zoneOffsets = map[string]string{
	"UT":   "+0000",
	"UTC":  "+0000",
	"GMT":  "+0000",
	"Z":    "+0000",
	"EST":  "-0500",
	"EDT":  "-0400",
	"CST":  "-0600",
	"CDT":  "-0500",
	"MST":  "-0700",
	"MDT":  "-0600",
	"PST":  "-0800",
	"PDT":  "-0700",
	"AKST": "-0900",
	"AKDT": "-0800",
	"HST":  "-1000",
	"WET":  "+0000",
	"WEST": "+0100",
	"BST":  "+0100",
	"CET":  "+0100",
	"CEST": "+0200",
	"EET":  "+0200",
	"EEST": "+0300",
	"MSK":  "+0300",
	"JST":  "+0900",
	"KST":  "+0900",
	"AEST": "+1000",
	"AEDT": "+1100",
	"NZST": "+1200",
	"NZDT": "+1300",
}

// numericZone rewrites a trailing zone abbreviation to its offset.
func numericZone(s string) string {
	i := strings.LastIndexByte(s, ' ')
	if i < 0 {
		return s
	}
	if off, ok := zoneOffsets[strings.ToUpper(s[i+1:])]; ok {
		return s[:i+1] + off
	}
	return s
}

// ParseDate parses a feed timestamp and returns it in UTC. Values without a
// zone are read as UTC. It returns nil when nothing matches.
func ParseDate(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	s = numericZone(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	if t, err := dateparse.ParseIn(s, time.UTC); err == nil {
		u := t.UTC()
		return &u
	}
	return nil
}

// firstDate returns the first candidate that parses.
func firstDate(candidates ...string) *time.Time {
	for _, c := range candidates {
		if t := ParseDate(c); t != nil {
			return t
		}
	}
	return nil
}
