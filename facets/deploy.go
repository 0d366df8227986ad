package facets

import (
	"context"
	"fmt"

	"xdao.co/facetrouter/model"
	"xdao.co/facetrouter/router"
)

// FacetAddress derives the address a built-in or demo facet is deployed at.
func FacetAddress(name string) model.Address {
	return model.AddressOf([]byte("xdao.facetrouter/facet"), []byte(name))
}

// Deployment is a router with the built-in facets installed.
type Deployment struct {
	Router   *router.Router
	Registry *router.Registry

	Cut, Loupe, Roles, Init model.Address
}

// Deploy builds a router owned by owner the standard way: register the cut
// facet, create the router around it, then apply one cut adding the loupe and
// roles facets with init() as the initializer.
func Deploy(ctx context.Context, owner model.Address, opts ...router.Option) (*Deployment, error) {
	d := &Deployment{
		Registry: router.NewRegistry(),
		Cut:      FacetAddress("cut"),
		Loupe:    FacetAddress("loupe"),
		Roles:    FacetAddress("roles"),
		Init:     FacetAddress("init"),
	}
	loupe, roles := NewLoupe(), NewRoles()
	for addr, m := range map[model.Address]*Module{d.Cut: NewCut(), d.Loupe: loupe, d.Roles: roles, d.Init: NewInit()} {
		if err := d.Registry.Register(addr, m); err != nil {
			return nil, fmt.Errorf("facets: register %s: %w", m.Name(), err)
		}
	}

	r, err := router.New(ctx, owner, d.Cut, d.Registry, opts...)
	if err != nil {
		return nil, err
	}
	d.Router = r

	payload, err := EncodeCall(SigInit, nil)
	if err != nil {
		return nil, err
	}
	cuts := []model.FacetCut{
		{FacetAddress: d.Loupe, Action: model.Add, FunctionSelectors: loupe.Selectors()},
		{FacetAddress: d.Roles, Action: model.Add, FunctionSelectors: roles.Selectors()},
	}
	if err := r.Cut(ctx, owner, cuts, d.Init, payload); err != nil {
		return nil, fmt.Errorf("facets: install built-in facets: %w", err)
	}
	return d, nil
}
