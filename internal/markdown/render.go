// internal/markdown/render.go
package markdown

import (
	"regexp"
	"strings"
)

var (
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
	blankLines    = regexp.MustCompile(`\n{2,}`)
)

// Render formats a built tree. Children are rendered before their parent so
// every formatter sees finished strings.
func Render(nodes []Node, reg *Registry, opts RenderOptions) string {
	r := &renderer{registry: reg, opts: opts}
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = r.render(n, 0)
	}
	return cleanup(joinFragments(parts))
}

type renderer struct {
	registry *Registry
	opts     RenderOptions
}

func (r *renderer) render(n Node, indent int) string {
	switch v := n.(type) {
	case *Text:
		return v.Value
	case *Element:
		schema, ok := r.registry.Lookup(v.Type)
		childIndent := indent
		if ok && schema.IncrementIndent() {
			childIndent++
		}
		children := make([]string, len(v.Children))
		for i, c := range v.Children {
			children[i] = r.render(c, childIndent)
		}
		ctx := FormatContext{Element: v, Children: children, Indent: indent, Options: r.opts}
		if !ok {
			return ctx.Content()
		}
		return schema.Format(ctx)
	}
	return ""
}

// cleanup removes stray cell separators and trailing spaces, collapses
// runs of line breaks and trims the result.
func cleanup(s string) string {
	s = strings.ReplaceAll(s, cellSeparator, " | ")
	s = trailingSpace.ReplaceAllString(s, "\n")
	s = blankLines.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
