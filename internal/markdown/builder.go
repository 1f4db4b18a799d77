// internal/markdown/builder.go
package markdown

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
	"github.com/brandontrabucco/insta-dev-sub000/internal/browser/parser"
)

// BuildOptions control pruning.
type BuildOptions struct {
	// Viewport, when set, prunes elements whose bounding rect does not overlap it.
	Viewport *schemas.Rect
	// RequireVisible prunes elements the server reported as not visible.
	RequireVisible bool
	// RequireFrontmost stops covered elements from being classified as interactive.
	RequireFrontmost bool
}

// Builder converts HTML plus metadata into a typed tree.
type Builder struct {
	registry *Registry
	logger   *zap.Logger
}

// NewBuilder returns a builder over a (normally frozen) registry.
func NewBuilder(registry *Registry, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{registry: registry, logger: logger.Named("markdown")}
}

type buildState struct {
	metadata map[string]*schemas.NodeMetadata
	opts     BuildOptions
	pruned   int
}

// Build parses, sanitizes and classifies rawHTML. Elements are joined to
// metadata through their backend_node_id attribute.
func (b *Builder) Build(rawHTML string, metadata map[string]*schemas.NodeMetadata, opts BuildOptions) (nodes []Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			nodes = nil
			err = schemas.NewEnvError(schemas.KindParse, "build", fmt.Errorf("panic while building tree: %v", r))
		}
	}()

	doc, err := htmlquery.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, schemas.NewEnvError(schemas.KindParse, "build", err)
	}
	Sanitize(doc)

	state := &buildState{metadata: metadata, opts: opts}
	nodes = b.buildChildren(state, doc, "", false)
	b.logger.Debug("Built semantic tree.",
		zap.Int("top_level_nodes", len(nodes)),
		zap.Int("pruned_elements", state.pruned))
	return nodes, nil
}

func (b *Builder) buildChildren(state *buildState, parent *html.Node, enclosing string, preformatted bool) []Node {
	var out []Node
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, b.buildNode(state, c, enclosing, preformatted)...)
	}
	return out
}

func (b *Builder) buildNode(state *buildState, n *html.Node, enclosing string, preformatted bool) []Node {
	switch n.Type {
	case html.TextNode:
		if t := newText(n.Data, preformatted); t != nil {
			return []Node{t}
		}
		return nil
	case html.ElementNode:
	default:
		return b.buildChildren(state, n, enclosing, preformatted)
	}

	meta := lookupMetadata(n, state.metadata)
	if isHidden(n, meta, state.opts) {
		state.pruned++
		return nil
	}

	skip := func(s Schema) bool {
		return state.opts.RequireFrontmost && meta != nil && !meta.IsFrontmost && isInteractive(s)
	}
	schema, ok := b.registry.Classify(n, meta, enclosing, skip)
	if !ok {
		// Semantically empty wrapper: its content stays under the enclosing type.
		return b.buildChildren(state, n, enclosing, preformatted)
	}

	el := &Element{
		Type:     schema.Name(),
		Tag:      strings.ToLower(n.Data),
		Attrs:    n.Attr,
		Metadata: meta,
	}
	el.Children = b.buildChildren(state, n, el.Type, preformatted || el.Type == TypePreformatted)
	return []Node{el}
}

func newText(data string, preformatted bool) *Text {
	data = strings.ReplaceAll(data, cellSeparator, "")
	if preformatted {
		if data == "" {
			return nil
		}
		return &Text{Value: data}
	}
	collapsed := strings.Join(strings.Fields(data), " ")
	if collapsed == "" {
		return nil
	}
	return &Text{Value: collapsed}
}

func lookupMetadata(n *html.Node, metadata map[string]*schemas.NodeMetadata) *schemas.NodeMetadata {
	if len(metadata) == 0 {
		return nil
	}
	id := strings.TrimSpace(htmlquery.SelectAttr(n, schemas.BackendNodeIDAttr))
	if id == "" {
		return nil
	}
	return metadata[id]
}

// isHidden decides whether n and its subtree are pruned.
func isHidden(n *html.Node, meta *schemas.NodeMetadata, opts BuildOptions) bool {
	if strings.EqualFold(strings.TrimSpace(htmlquery.SelectAttr(n, "aria-hidden")), "true") {
		return true
	}
	if htmlquery.ExistsAttr(n, "hidden") {
		return true
	}
	if strings.EqualFold(n.Data, "input") && strings.EqualFold(htmlquery.SelectAttr(n, "type"), "hidden") {
		return true
	}
	if style := htmlquery.SelectAttr(n, "style"); style != "" {
		inline := parser.ParseInline(style)
		if hiddenStyle(inline.Get("display"), inline.Get("visibility")) {
			return true
		}
	}

	if meta == nil {
		return false
	}
	if hiddenStyle(strings.ToLower(meta.Style("display")), strings.ToLower(meta.Style("visibility"))) {
		return true
	}
	if opts.RequireVisible && !meta.IsVisible {
		return true
	}
	if opts.Viewport != nil && !meta.BoundingClientRect.Overlaps(*opts.Viewport) {
		return true
	}
	return false
}

func hiddenStyle(display, visibility string) bool {
	return display == "none" || visibility == "hidden" || visibility == "collapse"
}
