package router

import (
	"context"

	"go.uber.org/zap"

	"xdao.co/facetrouter/model"
)

// Call forwards a call to the facet routed for sel. The facet sees caller
// unchanged. An unrouted selector fails with FunctionNotFound.
func (r *Router) Call(ctx context.Context, caller model.Address, sel model.Selector, args []byte) ([]byte, error) {
	r.mu.RLock()
	facet, ok := r.index.FacetOf(sel)
	r.mu.RUnlock()
	if !ok {
		return nil, model.NewError(model.CodeFunctionNotFound, "no facet for selector").WithSelector(sel)
	}
	f, ok := r.registry.Lookup(facet)
	if !ok {
		return nil, model.NewError(model.CodeFacetNotCallable, "routed facet has no callable code").
			WithSelector(sel).WithFacet(facet)
	}
	r.log.Debug("forwarding call", zap.Stringer("selector", sel), zap.Stringer("facet", facet), zap.Stringer("account", caller))
	return f.Invoke(ctx, Invocation{Router: r, Caller: caller, Selector: sel, Args: args})
}

// CallData forwards framed call data (selector followed by arguments).
func (r *Router) CallData(ctx context.Context, caller model.Address, data []byte) ([]byte, error) {
	sel, args, err := model.SplitCallData(data)
	if err != nil {
		return nil, err
	}
	return r.Call(ctx, caller, sel, args)
}

// SetSupportsInterface declares or withdraws an ERC-165 interface id. It is
// only allowed while a cut initializer is running on ctx.
func (r *Router) SetSupportsInterface(ctx context.Context, id model.Selector, supported bool) error {
	op := r.activeOp(ctx)
	if op == nil || op.initDepth.Load() == 0 {
		return model.NewError(model.CodeUnauthorized, "interface ids can only be set by a cut initializer").WithSelector(id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[model.Selector]bool, len(r.interfaces)+1)
	for k, v := range r.interfaces {
		next[k] = v
	}
	if supported {
		next[id] = true
	} else {
		delete(next, id)
	}
	r.interfaces = next
	return nil
}
