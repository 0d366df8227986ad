package router

import (
	"xdao.co/facetrouter/model"
)

// Facets returns every facet and its selectors, in facet-list order.
func (r *Router) Facets() []model.Facet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.All()
}

// FacetFunctionSelectors returns the selectors routed to facet. It returns an
// empty slice for an unknown facet.
func (r *Router) FacetFunctionSelectors(facet model.Address) []model.Selector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s := r.index.SelectorsOf(facet); s != nil {
		return s
	}
	return []model.Selector{}
}

// FacetAddresses returns the facet list.
func (r *Router) FacetAddresses() []model.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.Addresses()
}

// FacetAddress returns the facet routed for sel, or the null address.
func (r *Router) FacetAddress(sel model.Selector) model.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, _ := r.index.FacetOf(sel)
	return a
}

// SupportsInterface reports whether the ERC-165 interface id has been
// declared by an initializer.
func (r *Router) SupportsInterface(id model.Selector) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.interfaces[id]
}

// CheckTable verifies the routing table's structural invariants.
func (r *Router) CheckTable() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.Check()
}
