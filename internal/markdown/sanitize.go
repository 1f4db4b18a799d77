// internal/markdown/sanitize.go
package markdown

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// removedTags are dropped together with their whole subtree.
var removedTags = setOf(
	"script", "style", "noscript", "template", "meta", "link", "head", "title",
	"iframe", "object", "embed", "svg", "canvas", "base",
)

// allowedTags survive sanitization as is. Other elements are dropped but
// their children are kept.
var allowedTags = setOf(
	"html", "body", "div", "span", "p", "a", "img", "button", "input", "textarea",
	"select", "option", "optgroup", "label", "form", "fieldset", "legend",
	"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li", "dl", "dt", "dd",
	"table", "thead", "tbody", "tfoot", "tr", "td", "th", "caption",
	"b", "strong", "i", "em", "u", "ins", "s", "del", "strike", "code", "kbd",
	"samp", "pre", "blockquote", "br", "hr", "section", "article", "main",
	"header", "footer", "nav", "aside", "figure", "figcaption", "details",
	"summary", "small", "sub", "sup", "mark", "abbr", "cite", "q", "time", "dialog",
)

// Sanitize cleans a parsed document in place. Comments, doctypes and
// processing instructions are removed, as are the subtrees of removedTags.
// A disallowed element without attributes is unwrapped; one with attributes
// becomes a span so its node id, role and inline style still take part in
// pruning and classification.
func Sanitize(doc *html.Node) {
	sanitizeChildren(doc)
}

func sanitizeChildren(parent *html.Node) {
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case html.CommentNode, html.DoctypeNode:
			parent.RemoveChild(c)
		case html.ElementNode:
			tag := strings.ToLower(c.Data)
			switch {
			case removedTags[tag]:
				parent.RemoveChild(c)
			case allowedTags[tag]:
				sanitizeChildren(c)
			case len(c.Attr) > 0:
				c.Data = "span"
				c.DataAtom = atom.Span
				sanitizeChildren(c)
			default:
				sanitizeChildren(c)
				next = unwrap(parent, c)
			}
		}
		c = next
	}
}

// unwrap replaces n by its children and returns the node to visit after them.
func unwrap(parent, n *html.Node) *html.Node {
	next := n.NextSibling
	for child := n.FirstChild; child != nil; {
		following := child.NextSibling
		n.RemoveChild(child)
		parent.InsertBefore(child, n)
		child = following
	}
	parent.RemoveChild(n)
	return next
}

func setOf(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}
