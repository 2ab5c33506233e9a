package adapter

import (
	"fmt"

	"github.com/amishk599/jobsync/internal/model"
)

// Registry holds the registered portal adapters.
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates a registry with the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) {
	r.adapters = append(r.adapters, a)
}

// Lookup returns the first adapter that handles portal.
func (r *Registry) Lookup(portal string) (Adapter, error) {
	for _, a := range r.adapters {
		if a.CanHandle(portal) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("portal %q: %w", portal, model.ErrUnknownPortal)
}

// Names returns the canonical names of all registered adapters.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		names = append(names, a.Name())
	}
	return names
}
