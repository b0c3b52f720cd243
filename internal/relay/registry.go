package relay

import "fmt"

// Registry is an immutable set of relay definitions built from one
// configuration unit. Reload builds a new Registry and swaps it whole;
// a Registry is never mutated in place.
type Registry struct {
	byID  map[string]*Relay
	order []*Relay
}

// NewRegistry validates the definitions and builds a registry. Any invalid
// or duplicate definition rejects the whole set.
func NewRegistry(relays []*Relay) (*Registry, error) {
	g := &Registry{
		byID:  make(map[string]*Relay, len(relays)),
		order: make([]*Relay, 0, len(relays)),
	}
	for _, r := range relays {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := g.byID[r.ID]; dup {
			return nil, fmt.Errorf("relay: duplicate id %q", r.ID)
		}
		g.byID[r.ID] = r
		g.order = append(g.order, r)
	}
	return g, nil
}

// Get returns the relay definition for id.
func (g *Registry) Get(id string) (*Relay, bool) {
	r, ok := g.byID[id]
	return r, ok
}

// All returns the relays in configuration order. The returned slice must
// not be modified.
func (g *Registry) All() []*Relay {
	return g.order
}

// Len returns the number of relays.
func (g *Registry) Len() int {
	return len(g.order)
}
