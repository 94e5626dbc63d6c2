package backend

import (
	"sort"

	"github.com/Harshitk-cp/smartsearch/internal/domain"
)

// Registry is the closed set of adapters available to the router and the
// dispatcher. It is built once at startup and read-only afterwards.
type Registry struct {
	backends map[string]domain.Backend
}

// NewRegistry indexes adapters by ID. When two adapters share an ID the
// first one wins.
func NewRegistry(backends ...domain.Backend) *Registry {
	r := &Registry{backends: make(map[string]domain.Backend, len(backends))}
	for _, b := range backends {
		if b == nil {
			continue
		}
		if _, exists := r.backends[b.ID()]; exists {
			continue
		}
		r.backends[b.ID()] = b
	}
	return r
}

func (r *Registry) Get(id string) (domain.Backend, bool) {
	b, ok := r.backends[id]
	return b, ok
}

func (r *Registry) Has(id string) bool {
	_, ok := r.backends[id]
	return ok
}

// IDs returns the registered backend IDs sorted lexically.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int { return len(r.backends) }

var (
	_ domain.Backend = (*SearchAdapter)(nil)
	_ domain.Backend = (*DeepResearchAdapter)(nil)
)
