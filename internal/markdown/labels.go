// internal/markdown/labels.go
package markdown

import (
	"strings"
	"unicode/utf8"
)

// labelAttrs are consulted, in order, before the element's own text.
var labelAttrs = []string{"name", "title", "aria-label"}

// Label picks the human readable name of an element: the name, title or
// aria-label attribute, then its visible text, then href or src. The result
// is a single line of at most maxRunes runes plus an ellipsis.
func Label(el *Element, maxRunes int) string {
	for _, attr := range labelAttrs {
		if v := oneLine(el.Attr(attr)); v != "" {
			return truncate(v, maxRunes)
		}
	}
	if v := oneLine(el.InnerText()); v != "" {
		return truncate(v, maxRunes)
	}
	for _, attr := range []string{"href", "src"} {
		if v := oneLine(el.Attr(attr)); v != "" {
			return truncate(v, maxRunes)
		}
	}
	return ""
}

// oneLine collapses all whitespace, including line breaks, to single spaces.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxRunes])) + "..."
}
