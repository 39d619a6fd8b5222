package render

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var stripPolicy = bluemonday.StrictPolicy()

// esc escapes text for Telegram HTML parse mode.
func esc(s string) string { return html.EscapeString(s) }

func bold(s string) string { return "<b>" + esc(s) + "</b>" }

// stripHTML reduces upstream HTML bodies to plain text.
func stripHTML(s string) string {
	plain := html.UnescapeString(stripPolicy.Sanitize(s))
	return strings.TrimSpace(plain)
}

// truncRunes returns s truncated to at most n runes, with an ellipsis
// marking the cut.
func truncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	cut := 0
	for i, r := range s {
		count++
		if count == n {
			cut = i + utf8.RuneLen(r)
			continue
		}
		if count > n {
			if cut <= 0 {
				cut = i
			}
			return s[:cut] + "…"
		}
	}
	return s
}
