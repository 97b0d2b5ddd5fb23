package ai

import (
	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

// Registry holds the configured providers in registration order. The order
// matters: it is the fallback order when a request names no explicit
// fallback list.
type Registry struct {
	order     []string
	providers map[string]models.AIProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]models.AIProvider)}
}

// Register adds a provider. Re-registering a name replaces the provider but
// keeps its original position.
func (r *Registry) Register(p models.AIProvider) {
	name := p.Name()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (models.AIProvider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int { return len(r.order) }
