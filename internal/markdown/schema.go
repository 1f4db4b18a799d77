// internal/markdown/schema.go
package markdown

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
)

// DefaultMaxLabelLength bounds labels of interactive elements, in runes.
const DefaultMaxLabelLength = 100

// IndentUnit is the indentation added per nesting level.
const IndentUnit = "    "

// RenderOptions tune formatting.
type RenderOptions struct {
	MaxLabelLength int
}

func (o RenderOptions) maxLabel() int {
	if o.MaxLabelLength <= 0 {
		return DefaultMaxLabelLength
	}
	return o.MaxLabelLength
}

// FormatContext is what a schema's formatter sees: the element, the rendered
// strings of its children (one per child, same order) and its indent level.
type FormatContext struct {
	Element  *Element
	Children []string
	Indent   int
	Options  RenderOptions
}

// Content joins the rendered children.
func (c FormatContext) Content() string {
	return joinFragments(c.Children)
}

// Schema classifies DOM elements into one node type and formats that type.
type Schema interface {
	// Name is the node type this schema produces.
	Name() string
	// Matches reports whether the element is recognized by tag or attribute value.
	Matches(n *html.Node, meta *schemas.NodeMetadata) bool
	// Transitions lists the types allowed as the next classified descendant.
	Transitions() []string
	// IncrementIndent renders children one indent level deeper.
	IncrementIndent() bool
	Format(ctx FormatContext) string
}

// Rule is the declarative Schema used by every builtin type.
type Rule struct {
	TypeName string
	// Tags are lower-case tag names.
	Tags []string
	// AttrValues maps an attribute to the values (case-insensitive) that
	// select this schema. An empty string accepts a bare attribute.
	AttrValues map[string][]string
	// Extra, when set, must also accept the element.
	Extra  func(n *html.Node, meta *schemas.NodeMetadata) bool
	Next   []string
	Indent bool
	// IsInteractive marks types the agent can target by id.
	IsInteractive bool
	FormatFunc    func(ctx FormatContext) string
}

var _ Schema = (*Rule)(nil)

func (r *Rule) Name() string          { return r.TypeName }
func (r *Rule) Transitions() []string { return r.Next }
func (r *Rule) IncrementIndent() bool { return r.Indent }
func (r *Rule) Interactive() bool     { return r.IsInteractive }

func (r *Rule) Matches(n *html.Node, meta *schemas.NodeMetadata) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if !r.matchesTag(n) && !r.matchesAttr(n) {
		return false
	}
	return r.Extra == nil || r.Extra(n, meta)
}

func (r *Rule) matchesTag(n *html.Node) bool {
	tag := strings.ToLower(n.Data)
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (r *Rule) matchesAttr(n *html.Node) bool {
	for _, a := range n.Attr {
		values, ok := r.AttrValues[a.Key]
		if !ok {
			continue
		}
		val := strings.ToLower(strings.TrimSpace(a.Val))
		for _, v := range values {
			if v == val {
				return true
			}
		}
	}
	return false
}

func (r *Rule) Format(ctx FormatContext) string {
	if r.FormatFunc == nil {
		return ctx.Content()
	}
	return r.FormatFunc(ctx)
}

// interactive is implemented by schemas whose elements the agent can target.
type interactive interface {
	Interactive() bool
}

func isInteractive(s Schema) bool {
	i, ok := s.(interactive)
	return ok && i.Interactive()
}

// joinFragments joins rendered strings with a single space, dropping empty
// ones. No space is added next to a line break.
func joinFragments(parts []string) string {
	var b strings.Builder
	prev := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if prev != "" && !strings.HasSuffix(prev, "\n") && !strings.HasPrefix(p, "\n") {
			b.WriteByte(' ')
		}
		b.WriteString(p)
		prev = p
	}
	return b.String()
}
