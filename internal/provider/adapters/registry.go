package adapters

import (
	entitlementdomain "github.com/voyatra/hybridpay/internal/entitlement/domain"
	"github.com/voyatra/hybridpay/internal/provider/domain"
)

// Registry holds the configured payment providers keyed by method, so the
// orchestrator and manager can treat both rails uniformly.
type Registry struct {
	providers map[entitlementdomain.PaymentMethod]domain.Provider
}

func NewRegistry(providers ...domain.Provider) *Registry {
	registry := &Registry{providers: map[entitlementdomain.PaymentMethod]domain.Provider{}}
	for _, p := range providers {
		if p == nil {
			continue
		}
		method := p.Method()
		if !method.Valid() {
			continue
		}
		registry.providers[method] = p
	}
	return registry
}

func (r *Registry) Get(method entitlementdomain.PaymentMethod) (domain.Provider, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	p, ok := r.providers[method]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return p, nil
}

// All returns every registered provider.
func (r *Registry) All() []domain.Provider {
	if r == nil {
		return nil
	}
	out := make([]domain.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}
