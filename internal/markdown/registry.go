// internal/markdown/registry.go
package markdown

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/net/html"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
)

// ErrRegistryFrozen is returned by mutations after Freeze.
var ErrRegistryFrozen = errors.New("schema registry is frozen")

type registryEntry struct {
	schema      Schema
	priority    int
	seq         int
	transitions []string
}

// Registry holds the schemas in classification order. It is built once,
// frozen, and then shared read-only by any number of builders and renderers.
// Registration must not run concurrently with use.
type Registry struct {
	entries   []*registryEntry
	byName    map[string]*registryEntry
	overrides map[string]Schema
	frozen    bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:    map[string]*registryEntry{},
		overrides: map[string]Schema{},
	}
}

// Register adds s. Higher priorities are tried first; equal priorities keep
// registration order. Every type named in behavesLike gains s in its
// transitions, so s may appear wherever those types allow it.
func (r *Registry) Register(s Schema, priority int, behavesLike ...string) error {
	if r.frozen {
		return ErrRegistryFrozen
	}
	name := s.Name()
	if name == "" {
		return fmt.Errorf("schema has an empty name")
	}
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("schema %q is already registered", name)
	}
	for _, parent := range behavesLike {
		if _, ok := r.byName[parent]; !ok {
			return fmt.Errorf("schema %q behaves like unknown schema %q", name, parent)
		}
	}

	entry := &registryEntry{
		schema:      s,
		priority:    priority,
		seq:         len(r.entries),
		transitions: append([]string(nil), s.Transitions()...),
	}
	r.entries = append(r.entries, entry)
	r.byName[name] = entry
	sort.SliceStable(r.entries, func(i, j int) bool {
		if r.entries[i].priority != r.entries[j].priority {
			return r.entries[i].priority > r.entries[j].priority
		}
		return r.entries[i].seq < r.entries[j].seq
	})

	for _, parent := range behavesLike {
		p := r.byName[parent]
		if !contains(p.transitions, name) {
			p.transitions = append(p.transitions, name)
		}
	}
	return nil
}

// Override replaces the registered schema named base. The replacement keeps
// the base's name, priority and transitions and is consulted before it.
func (r *Registry) Override(base string, replacement Schema) error {
	if r.frozen {
		return ErrRegistryFrozen
	}
	if _, ok := r.byName[base]; !ok {
		return fmt.Errorf("cannot override unknown schema %q", base)
	}
	if replacement.Name() != base {
		return fmt.Errorf("override of %q must keep its name, got %q", base, replacement.Name())
	}
	r.overrides[base] = replacement
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() { r.frozen = true }

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool { return r.frozen }

// Lookup returns the effective schema for a type name.
func (r *Registry) Lookup(name string) (Schema, bool) {
	if s, ok := r.overrides[name]; ok {
		return s, true
	}
	entry, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return entry.schema, true
}

// Transitions returns the effective transitions of a type.
func (r *Registry) Transitions(name string) []string {
	if entry, ok := r.byName[name]; ok {
		return entry.transitions
	}
	return nil
}

// Names lists the registered types in classification order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.schema.Name()
	}
	return names
}

// Allowed reports whether child may be classified below parent. An empty
// parent is the document root, below which everything is allowed.
func (r *Registry) Allowed(parent, child string) bool {
	if parent == "" {
		return true
	}
	return contains(r.Transitions(parent), child)
}

// Classify returns the first schema, in priority order, that matches n and
// is allowed below parent. skip filters out candidates before matching.
func (r *Registry) Classify(n *html.Node, meta *schemas.NodeMetadata, parent string, skip func(Schema) bool) (Schema, bool) {
	for _, entry := range r.entries {
		name := entry.schema.Name()
		if !r.Allowed(parent, name) {
			continue
		}
		s, _ := r.Lookup(name)
		if skip != nil && skip(s) {
			continue
		}
		if s.Matches(n, meta) {
			return s, true
		}
	}
	return nil, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
