// internal/markdown/node.go

// Package markdown turns an observed DOM snapshot into the text observation
// shown to the agent. HTML is sanitized, pruned for visibility, classified
// into a typed tree by a registry of schemas and rendered by each schema's
// formatter.
package markdown

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
)

// Node is either a *Text leaf or an *Element classified by a schema.
type Node interface {
	node()
}

// Text is a run of visible text. Whitespace is already collapsed except
// inside preformatted blocks.
type Text struct {
	Value string
}

// Element is a DOM element matched by the schema named Type.
type Element struct {
	Type     string
	Tag      string
	Attrs    []html.Attribute
	Metadata *schemas.NodeMetadata
	Children []Node
}

func (*Text) node()    {}
func (*Element) node() {}

// Attr returns the value of the named attribute, or "".
func (e *Element) Attr(name string) string {
	for _, a := range e.Attrs {
		if a.Namespace == "" && a.Key == name {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether the attribute is present, even if empty.
func (e *Element) HasAttr(name string) bool {
	for _, a := range e.Attrs {
		if a.Namespace == "" && a.Key == name {
			return true
		}
	}
	return false
}

// CandidateID returns the id the agent uses to target this element, or "".
func (e *Element) CandidateID() string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata.CandidateID
}

// InnerText joins the text leaves below e. Only text that survived pruning is
// included.
func (e *Element) InnerText() string {
	var parts []string
	var walk func(n Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case *Text:
			if s := strings.TrimSpace(v.Value); s != "" {
				parts = append(parts, s)
			}
		case *Element:
			for _, c := range v.Children {
				walk(c)
			}
		}
	}
	walk(e)
	return strings.Join(parts, " ")
}
