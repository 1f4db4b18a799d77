// api/schemas/browser.go
package schemas

import (
	"image"
	"strconv"

	"github.com/chromedp/cdproto/cdp"
)

// -- Observed Element Schemas --

// Rect is an axis-aligned rectangle in CSS pixels, as reported by getBoundingClientRect.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Overlaps reports whether two rectangles intersect. Intervals are closed, so
// rectangles that only touch along an edge or a corner still overlap.
func (r Rect) Overlaps(other Rect) bool {
	return r.X <= other.X+other.Width &&
		other.X <= r.X+r.Width &&
		r.Y <= other.Y+other.Height &&
		other.Y <= r.Y+r.Height
}

// NodeMetadata is the per-element state the automation server observed for one step.
// Everything except CandidateID is read-only once decoded.
type NodeMetadata struct {
	BackendNodeID      cdp.BackendNodeID `json:"backend_node_id"`
	BoundingClientRect Rect              `json:"bounding_client_rect"`
	// ComputedStyle holds the subset of computed CSS properties the server exports
	// (display, visibility, opacity, ...).
	ComputedStyle map[string]string `json:"computed_style,omitempty"`
	ScrollLeft    float64           `json:"scroll_left"`
	ScrollTop     float64           `json:"scroll_top"`
	// EditableValue is the live value of inputs, textareas and contenteditable elements.
	EditableValue *string `json:"editable_value,omitempty"`
	IsVisible     bool    `json:"is_visible"`
	IsFrontmost   bool    `json:"is_frontmost"`
	// CandidateID is written by the candidate resolver. An empty value means the
	// element is not eligible for agent interaction.
	CandidateID string `json:"candidate_id,omitempty"`
}

// Style returns a computed style property, or "" when the server did not export it.
func (m *NodeMetadata) Style(property string) string {
	if m == nil || m.ComputedStyle == nil {
		return ""
	}
	return m.ComputedStyle[property]
}

// Key returns the string form of the backend node id, matching the metadata map keys
// and the backend_node_id attribute in the raw HTML.
func (m *NodeMetadata) Key() string {
	return strconv.FormatInt(int64(m.BackendNodeID), 10)
}

// BrowserObservation is the raw state of the page for a single step plus the
// text rendering derived from it.
type BrowserObservation struct {
	RawHTML string `json:"raw_html"`
	// Metadata is keyed by backend node id.
	Metadata   map[string]*NodeMetadata `json:"metadata"`
	Screenshot image.Image              `json:"-"`
	CurrentURL string                   `json:"current_url"`
	// ProcessedText is the only field meant for an LLM-facing caller.
	ProcessedText string `json:"processed_text"`
}

// BackendNodeIDAttr is the attribute the automation server stamps on every
// observed element in RawHTML; its value is the metadata map key.
const BackendNodeIDAttr = "backend_node_id"
