// Package router implements the facet router: the routing table, the cut
// engine that mutates it, the role gate that authorizes mutations, the loupe
// that inspects it, and call forwarding.
//
// Mutations (cuts and role changes) are serialized by an operation lock. A cut
// initializer runs with a context that carries the operation, so mutations it
// makes re-enter without taking the lock but are still authorized. Events of
// an operation and everything nested in it are buffered and handed to the
// event sink as one batch when the outermost operation commits; if the sink
// fails the operation is rolled back.
//
// The routing table, role gate and interface set are copy-on-write: a
// mutation builds a new value and swaps it in, so snapshots are pointer
// copies.
package router

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"xdao.co/facetrouter/access"
	"xdao.co/facetrouter/events"
	"xdao.co/facetrouter/model"
	"xdao.co/facetrouter/table"
)

// Router is one facet router instance.
type Router struct {
	address  model.Address
	registry *Registry
	sink     events.Sink
	log      *zap.Logger

	// opMu serializes outermost mutations. pending is only touched by the
	// goroutine holding it.
	opMu    sync.Mutex
	pending []events.Event

	mu         sync.RWMutex
	index      *table.Index
	gate       *access.Gate
	interfaces map[model.Selector]bool
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router's logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// WithSink sets where committed event batches go. The default discards them.
func WithSink(s events.Sink) Option {
	return func(r *Router) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithAddress sets the router's own address. Selectors routed to it are
// immutable.
func WithAddress(a model.Address) Option {
	return func(r *Router) { r.address = a }
}

// New builds a router owned by owner: owner holds model.RoleOwner and the cut
// selector is routed to cutFacet, which must be registered in registry. The
// genesis events are published as the first batch.
func New(ctx context.Context, owner, cutFacet model.Address, registry *Registry, opts ...Option) (*Router, error) {
	if registry == nil {
		return nil, model.NewError(model.CodeInvalidArgument, "nil facet registry")
	}
	if owner.IsZero() {
		return nil, model.NewError(model.CodeInvalidArgument, "owner must not be the null address")
	}
	r := &Router{
		registry:   registry,
		sink:       events.Discard,
		log:        zap.NewNop(),
		interfaces: map[model.Selector]bool{},
	}
	for _, o := range opts {
		o(r)
	}
	if r.address.IsZero() {
		r.address = model.AddressOf([]byte("xdao.facetrouter/router"), owner[:], cutFacet[:])
	}
	if err := registry.requireCallable(cutFacet, "cut facet"); err != nil {
		return nil, err
	}

	r.gate = access.New(owner, access.WithEmitter(r.emit))
	r.index = table.New()
	if err := r.index.Add(cutFacet, model.CutSelector); err != nil {
		return nil, err
	}

	genesis := []events.Event{
		events.NewRoleChanged(events.RoleChanged{Role: model.RoleOwner, Account: owner, Sender: owner, Change: events.Granted}),
		events.NewCutApplied(events.CutApplied{Cuts: []model.FacetCut{{
			FacetAddress:      cutFacet,
			Action:            model.Add,
			FunctionSelectors: []model.Selector{model.CutSelector},
		}}}),
	}
	if err := r.sink.Publish(ctx, genesis); err != nil {
		return nil, model.NewError(model.CodeInternal, "publish genesis events").WithCause(err)
	}
	r.log.Info("router created",
		zap.Stringer("router", r.address),
		zap.Stringer("owner", owner),
		zap.Stringer("facet", cutFacet),
	)
	return r, nil
}

// Address returns the router's own address.
func (r *Router) Address() model.Address { return r.address }

// Registry returns the facet registry the router forwards into.
func (r *Router) Registry() *Registry { return r.registry }

// state is a rollback point.
type state struct {
	index      *table.Index
	gate       *access.Gate
	interfaces map[model.Selector]bool
	pending    int
}

// operation is the context value carried by an active mutation.
type operation struct {
	router *Router
	done   atomic.Bool
	// initDepth > 0 while an initializer is running.
	initDepth atomic.Int32
}

type opKey struct{}

func (r *Router) activeOp(ctx context.Context) *operation {
	op, ok := ctx.Value(opKey{}).(*operation)
	if !ok || op.router != r || op.done.Load() {
		return nil
	}
	return op
}

func (r *Router) capture() state {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return state{index: r.index, gate: r.gate, interfaces: r.interfaces, pending: len(r.pending)}
}

func (r *Router) restore(s state) {
	r.mu.Lock()
	r.index, r.gate, r.interfaces = s.index, s.gate, s.interfaces
	r.mu.Unlock()
	r.pending = r.pending[:s.pending]
}

// emit buffers an event for the current operation. Callers hold the
// operation.
func (r *Router) emit(e events.Event) { r.pending = append(r.pending, e) }

// mutate runs fn as an operation. Nested calls (ctx carries this router's
// active operation) run inline; outermost calls take the operation lock,
// publish the buffered events on success and roll back on any failure,
// panics included.
func (r *Router) mutate(ctx context.Context, name string, fn func(ctx context.Context, op *operation) error) error {
	if op := r.activeOp(ctx); op != nil {
		return fn(ctx, op)
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	op := &operation{router: r}
	defer op.done.Store(true)
	ctx = context.WithValue(ctx, opKey{}, op)

	snap := r.capture()
	defer func() {
		if p := recover(); p != nil {
			r.restore(snap)
			r.pending = nil
			r.log.Error("operation panicked; rolled back", zap.String("op", name), zap.Any("panic", p))
			panic(p)
		}
	}()
	if err := fn(ctx, op); err != nil {
		r.restore(snap)
		r.log.Debug("operation rejected", zap.String("op", name), zap.String("code", string(model.CodeOf(err))), zap.Error(err))
		return err
	}

	batch := r.pending
	r.pending = nil
	if len(batch) == 0 {
		return nil
	}
	if err := r.sink.Publish(ctx, batch); err != nil {
		r.restore(snap)
		r.log.Error("event publish failed; operation rolled back", zap.String("op", name), zap.Error(err))
		return model.NewError(model.CodeInternal, "%s: events not recorded", name).WithCause(err)
	}
	return nil
}
