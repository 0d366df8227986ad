package router

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"xdao.co/facetrouter/events"
	"xdao.co/facetrouter/model"
	"xdao.co/facetrouter/table"
)

// Cut applies a batch of directives for caller, then runs the optional
// initializer.
//
// caller must hold model.RoleOwner; nothing else is checked otherwise. The
// whole batch is validated on a scratch copy of the routing table before the
// live table is touched, so a rejected batch has no effect. When init is set,
// payload is call data (selector followed by arguments) delivered to the facet
// at init with the caller unchanged. A failing initializer undoes the cut and
// everything the initializer did. One CutApplied event is emitted per
// successful call.
func (r *Router) Cut(ctx context.Context, caller model.Address, cuts []model.FacetCut, init model.Address, payload []byte) error {
	return r.mutate(ctx, "cut", func(ctx context.Context, op *operation) error {
		r.mu.RLock()
		gate, current := r.gate, r.index
		r.mu.RUnlock()

		if err := gate.Require(model.RoleOwner, caller); err != nil {
			return err
		}
		snap := r.capture()
		initSel, initArgs, err := r.checkInit(init, payload)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := r.plan(next, cuts); err != nil {
			return err
		}

		r.mu.Lock()
		r.index = next
		r.mu.Unlock()

		if !init.IsZero() {
			if err := r.runInit(ctx, op, caller, init, initSel, initArgs); err != nil {
				r.restore(snap)
				return err
			}
		}

		r.emit(events.NewCutApplied(events.CutApplied{
			Cuts:    cloneCuts(cuts),
			Init:    init,
			Payload: append([]byte(nil), payload...),
		}))
		r.log.Info("cut applied",
			zap.Stringer("account", caller),
			zap.Int("directives", len(cuts)),
			zap.Int("selectors", lo.SumBy(cuts, func(c model.FacetCut) int { return len(c.FunctionSelectors) })),
			zap.Stringer("init", init),
		)
		return nil
	})
}

func (r *Router) checkInit(init model.Address, payload []byte) (model.Selector, []byte, error) {
	switch {
	case init.IsZero() && len(payload) != 0:
		return model.Selector{}, nil, model.NewError(model.CodeInitializerMismatch, "payload given without an initializer")
	case !init.IsZero() && len(payload) == 0:
		return model.Selector{}, nil, model.NewError(model.CodeInitializerMismatch, "initializer given without a payload").WithFacet(init)
	case init.IsZero():
		return model.Selector{}, nil, nil
	}
	if err := r.registry.requireCallable(init, "initializer"); err != nil {
		return model.Selector{}, nil, err
	}
	sel, args, err := model.SplitCallData(payload)
	if err != nil {
		return model.Selector{}, nil, model.NewError(model.CodeInitializerMismatch, "initializer payload is not call data").
			WithFacet(init).WithCause(err)
	}
	return sel, args, nil
}

// plan applies cuts to ix in order, so later directives see earlier ones. ix
// is a scratch copy; the first failure aborts the batch.
func (r *Router) plan(ix *table.Index, cuts []model.FacetCut) error {
	for _, c := range cuts {
		if !c.Action.Valid() {
			return model.NewError(model.CodeInvalidAction, "unknown cut action %d", uint8(c.Action)).WithFacet(c.FacetAddress)
		}
		if len(c.FunctionSelectors) == 0 {
			return model.NewError(model.CodeEmptySelectors, "%s directive has no selectors", c.Action).WithFacet(c.FacetAddress)
		}
		var err error
		switch c.Action {
		case model.Add:
			err = r.planAdd(ix, c)
		case model.Replace:
			err = r.planReplace(ix, c)
		case model.Remove:
			err = r.planRemove(ix, c)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) planAdd(ix *table.Index, c model.FacetCut) error {
	if err := r.registry.requireCallable(c.FacetAddress, "add facet"); err != nil {
		return err
	}
	seen := make(map[model.Selector]struct{}, len(c.FunctionSelectors))
	for _, s := range c.FunctionSelectors {
		if _, dup := seen[s]; dup {
			return model.NewError(model.CodeDuplicateSelector, "selector repeated in add directive").
				WithSelector(s).WithFacet(c.FacetAddress)
		}
		seen[s] = struct{}{}
		if err := ix.Add(c.FacetAddress, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) planReplace(ix *table.Index, c model.FacetCut) error {
	if err := r.registry.requireCallable(c.FacetAddress, "replace facet"); err != nil {
		return err
	}
	for _, s := range c.FunctionSelectors {
		owner, ok := ix.FacetOf(s)
		if !ok {
			return model.NewError(model.CodeSelectorNotFound, "cannot replace a selector that is not routed").WithSelector(s)
		}
		if owner == c.FacetAddress {
			return model.NewError(model.CodeNoOpReplace, "selector already routed to facet").
				WithSelector(s).WithFacet(owner)
		}
		if owner == r.address {
			return model.NewError(model.CodeImmutableSelector, "cannot replace an immutable selector").
				WithSelector(s).WithFacet(owner)
		}
		if err := ix.Replace(c.FacetAddress, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) planRemove(ix *table.Index, c model.FacetCut) error {
	if !c.FacetAddress.IsZero() {
		return model.NewError(model.CodeRemoveFacetNotZero, "remove directive must use the null facet address").WithFacet(c.FacetAddress)
	}
	for _, s := range c.FunctionSelectors {
		owner, ok := ix.FacetOf(s)
		if !ok {
			return model.NewError(model.CodeSelectorNotFound, "cannot remove a selector that is not routed").WithSelector(s)
		}
		if r.immutable(s, owner) {
			return model.NewError(model.CodeImmutableSelector, "cannot remove an immutable selector").
				WithSelector(s).WithFacet(owner)
		}
		if _, err := ix.Remove(s); err != nil {
			return err
		}
	}
	return nil
}

// immutable reports whether s can never be removed: the cut entry point, and
// anything routed to the router's own address. Replace checks only the latter.
func (r *Router) immutable(s model.Selector, owner model.Address) bool {
	return s == model.CutSelector || owner == r.address
}

func (r *Router) runInit(ctx context.Context, op *operation, caller, init model.Address, sel model.Selector, args []byte) error {
	f, ok := r.registry.Lookup(init)
	if !ok {
		return model.NewError(model.CodeFacetNotCallable, "initializer has no callable code").WithFacet(init)
	}
	op.initDepth.Add(1)
	defer op.initDepth.Add(-1)

	if err := invokeInit(ctx, f, Invocation{
		Router:      r,
		Caller:      caller,
		Selector:    sel,
		Args:        args,
		Initializer: true,
	}); err != nil {
		r.log.Warn("initializer failed; cut rolled back",
			zap.Stringer("facet", init),
			zap.Stringer("selector", sel),
			zap.Error(err),
		)
		return model.NewError(model.CodeInitializerFailed, "initializer call failed").
			WithFacet(init).WithSelector(sel).WithCause(err)
	}
	return nil
}

// invokeInit reports a panicking initializer as an error.
func invokeInit(ctx context.Context, f Facet, inv Invocation) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("initializer panicked: %v", p)
		}
	}()
	_, err = f.Invoke(ctx, inv)
	return err
}

func cloneCuts(cuts []model.FacetCut) []model.FacetCut {
	return lo.Map(cuts, func(c model.FacetCut, _ int) model.FacetCut {
		c.FunctionSelectors = append([]model.Selector(nil), c.FunctionSelectors...)
		return c
	})
}
