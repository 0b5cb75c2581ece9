// Package textutil normalizes document titles and snippets pulled from
// platform APIs before they are persisted or rendered.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// NormalizeTitle canonicalizes a document title for storage. Fullwidth forms
// are folded to their narrow equivalents, the text is NFC normalized, control
// characters are dropped, and interior whitespace runs collapse to one space.
func NormalizeTitle(title string) string {
	folded := width.Narrow.String(norm.NFC.String(title))
	var b strings.Builder
	b.Grow(len(folded))
	prevSpace := false
	for _, r := range folded {
		switch {
		case unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			if !prevSpace && b.Len() > 0 {
				b.WriteByte(' ')
				prevSpace = true
			}
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// Truncate shortens text to at most max runes, appending an ellipsis when
// anything was cut. A max below one returns the empty string.
func Truncate(text string, max int) string {
	if max < 1 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	if max == 1 {
		return "…"
	}
	return string(runes[:max-1]) + "…"
}

// Snippet produces a single-line preview of body text suitable for error
// messages and status output.
func Snippet(text string, max int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	return Truncate(collapsed, max)
}
