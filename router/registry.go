package router

import (
	"context"
	"fmt"
	"sync"

	"xdao.co/facetrouter/model"
)

// Invocation is one call delivered to a facet. The facet runs against the
// router's state: Router is the router that forwarded the call and Caller is
// the original caller, unchanged by forwarding.
type Invocation struct {
	Router   *Router
	Caller   model.Address
	Selector model.Selector
	Args     []byte
	// Initializer is set when the facet runs as a cut's initializer.
	Initializer bool
}

// Facet is a callable implementation module.
type Facet interface {
	Invoke(ctx context.Context, inv Invocation) ([]byte, error)
}

// FacetFunc adapts a function to Facet.
type FacetFunc func(ctx context.Context, inv Invocation) ([]byte, error)

func (f FacetFunc) Invoke(ctx context.Context, inv Invocation) ([]byte, error) { return f(ctx, inv) }

// Registry holds the facets that can receive calls, keyed by address. The
// routing table stores only addresses; forwarding resolves them here.
type Registry struct {
	mu     sync.RWMutex
	facets map[model.Address]Facet
}

func NewRegistry() *Registry {
	return &Registry{facets: make(map[model.Address]Facet)}
}

// Register makes f callable at addr. Addresses are write-once.
func (r *Registry) Register(addr model.Address, f Facet) error {
	if addr.IsZero() {
		return model.NewError(model.CodeFacetNotCallable, "cannot register a facet at the null address")
	}
	if f == nil {
		return model.NewError(model.CodeFacetNotCallable, "nil facet").WithFacet(addr)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.facets[addr]; ok {
		return fmt.Errorf("router: facet already registered at %s", addr)
	}
	r.facets[addr] = f
	return nil
}

// Lookup returns the facet registered at addr.
func (r *Registry) Lookup(addr model.Address) (Facet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.facets[addr]
	return f, ok
}

// Callable reports whether a non-null facet is registered at addr.
func (r *Registry) Callable(addr model.Address) bool {
	if addr.IsZero() {
		return false
	}
	_, ok := r.Lookup(addr)
	return ok
}

func (r *Registry) requireCallable(addr model.Address, what string) error {
	if r.Callable(addr) {
		return nil
	}
	return model.NewError(model.CodeFacetNotCallable, "%s has no callable code", what).WithFacet(addr)
}
