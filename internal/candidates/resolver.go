// internal/candidates/resolver.go

// Package candidates decides which observed elements the agent may interact
// with and stamps the identifier it will see in the observation text.
package candidates

import (
	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
)

// Resolver stamps CandidateID on the metadata of an observation in place.
// An entry left with an empty CandidateID renders as plain content.
type Resolver interface {
	Resolve(obs *schemas.BrowserObservation)
}

// IdentityResolver makes every observed element a candidate whose id is its
// backend node id, so an id read from the text maps straight back to the node.
type IdentityResolver struct{}

// Resolve implements Resolver.
func (IdentityResolver) Resolve(obs *schemas.BrowserObservation) {
	if obs == nil {
		return
	}
	for _, m := range obs.Metadata {
		if m != nil {
			m.CandidateID = m.Key()
		}
	}
}

// FilterResolver makes only the elements accepted by Keep candidates. The
// rest have their CandidateID cleared.
type FilterResolver struct {
	Keep func(*schemas.NodeMetadata) bool
}

// Resolve implements Resolver.
func (f FilterResolver) Resolve(obs *schemas.BrowserObservation) {
	if obs == nil {
		return
	}
	for _, m := range obs.Metadata {
		if m == nil {
			continue
		}
		if f.Keep == nil || f.Keep(m) {
			m.CandidateID = m.Key()
		} else {
			m.CandidateID = ""
		}
	}
}

// VisibleOnly keeps elements the server reported as visible.
func VisibleOnly(m *schemas.NodeMetadata) bool { return m.IsVisible }
