package htmlutil

import (
	"strings"

	"github.com/k3a/html2text"
)

// ToText converts HTML to plain text using a proper HTML parser.
// Handles entities, strips tags, and preserves readable text.
func ToText(s string) string {
	return html2text.HTML2Text(s)
}

// Snippet flattens s to a single line of plain text no longer than max runes.
func Snippet(s string, max int) string {
	text := strings.Join(strings.Fields(ToText(s)), " ")
	if r := []rune(text); max > 0 && len(r) > max {
		return strings.TrimSpace(string(r[:max])) + "..."
	}
	return text
}
