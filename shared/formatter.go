package shared

import (
	"github.com/microcosm-cc/bluemonday"
	"html"
	"strings"
	"time"
	"unicode"
)

const dayKeyFormat = "2006-01-02"

// DayKey is the UTC calendar day used to bucket per-user counters.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayKeyFormat)
}

func TruncateWithEllipsis(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	// https://stackoverflow.com/a/73939904/7479498
	lastSpaceIx := maxLen
	len := 0
	for i, r := range text {
		if unicode.IsSpace(r) {
			lastSpaceIx = i
		}
		len++
		if len > maxLen {
			return text[:lastSpaceIx] + "…"
		}
	}
	// If here, string is shorter or equal to maxLen
	return text
}

// CompareIds orders platform ids that are decimal strings of varying length.
// Shorter numbers come first; equal lengths compare lexically.
func CompareIds(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// MaxId returns the larger of two ids; an empty id is smaller than any other.
func MaxId(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if CompareIds(a, b) >= 0 {
		return a
	}
	return b
}

// StripHtml reduces markup to plain text.
func StripHtml(htm string) string {
	p := bluemonday.StrictPolicy()
	plain := p.Sanitize(htm)
	plain = html.UnescapeString(plain)
	plain = strings.TrimSpace(plain)
	return plain
}
