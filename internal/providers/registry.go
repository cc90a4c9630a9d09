package providers

import (
	"fmt"
	"sync"

	"github.com/spacesedan/sentiment-aura/internal/models"
	"github.com/spacesedan/sentiment-aura/internal/validation"
)

// Registry resolves provider ids to implementations. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[models.ProviderID]Provider
	order     []models.ProviderID
}

func NewRegistry(ps ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[models.ProviderID]Provider)}
	for _, p := range ps {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := p.ID()
	if id == "" {
		return fmt.Errorf("provider has an empty id")
	}
	if id == models.EnsembleProvider {
		return fmt.Errorf("provider id %q is reserved", id)
	}
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("provider %q already registered", id)
	}

	r.providers[id] = p
	r.order = append(r.order, id)
	return nil
}

func (r *Registry) Get(id models.ProviderID) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[id]
	return p, ok
}

// IDs lists registered providers in registration order.
func (r *Registry) IDs() []models.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ProviderID, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}

// Resolve returns the providers for ids in request order with duplicates removed.
// An unknown id is the caller's fault and yields an InvalidInputError.
func (r *Registry) Resolve(ids []models.ProviderID) ([]Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[models.ProviderID]struct{}, len(ids))
	out := make([]Provider, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		p, ok := r.providers[id]
		if !ok {
			return nil, &validation.InvalidInputError{
				Reason: validation.ReasonUnknownProvider,
				Detail: string(id),
			}
		}
		out = append(out, p)
	}
	return out, nil
}
