// Package facets holds the router's built-in facets and the deployment that
// wires them together.
//
// A facet here is a Module: a named set of methods keyed by selector.
// Arguments and results are CBOR values, standing in for ABI encoding; methods
// with several arguments take a CBOR array.
package facets

import (
	"context"

	"github.com/samber/lo"

	"xdao.co/facetrouter/codec"
	"xdao.co/facetrouter/model"
	"xdao.co/facetrouter/router"
)

// Method handles one selector of a Module.
type Method func(ctx context.Context, inv router.Invocation) ([]byte, error)

// Module is a facet built from individually registered methods.
type Module struct {
	name       string
	signatures []string
	methods    map[model.Selector]Method
}

// NewModule returns an empty module called name.
func NewModule(name string) *Module {
	return &Module{name: name, methods: make(map[model.Selector]Method)}
}

// Handle registers fn for signature. Registering a signature twice panics.
func (m *Module) Handle(signature string, fn Method) *Module {
	sel := model.SelectorOf(signature)
	if _, dup := m.methods[sel]; dup {
		panic("facets: " + m.name + ": duplicate method " + signature)
	}
	m.signatures = append(m.signatures, signature)
	m.methods[sel] = fn
	return m
}

func (m *Module) Name() string { return m.name }

// Signatures returns the method signatures in registration order.
func (m *Module) Signatures() []string { return append([]string(nil), m.signatures...) }

// Selectors returns every method selector in registration order.
func (m *Module) Selectors() []model.Selector { return model.SelectorsOf(m.signatures...) }

// Only returns the selectors of the listed signatures that m implements.
func (m *Module) Only(signatures ...string) []model.Selector {
	keep := lo.Map(signatures, func(s string, _ int) model.Selector { return model.SelectorOf(s) })
	return lo.Filter(m.Selectors(), func(s model.Selector, _ int) bool { return lo.Contains(keep, s) })
}

// Without returns m's selectors except those of the listed signatures.
func (m *Module) Without(signatures ...string) []model.Selector {
	drop := lo.Map(signatures, func(s string, _ int) model.Selector { return model.SelectorOf(s) })
	return lo.Filter(m.Selectors(), func(s model.Selector, _ int) bool { return !lo.Contains(drop, s) })
}

// Invoke dispatches inv to the method registered for its selector.
func (m *Module) Invoke(ctx context.Context, inv router.Invocation) ([]byte, error) {
	fn, ok := m.methods[inv.Selector]
	if !ok {
		return nil, model.NewError(model.CodeFunctionNotFound, "%s has no method for selector", m.name).WithSelector(inv.Selector)
	}
	return fn(ctx, inv)
}

// EncodeCall frames a call: the selector of signature followed by args
// encoded as CBOR. A nil args produces a bare selector.
func EncodeCall(signature string, args any) ([]byte, error) {
	if args == nil {
		return model.CallData(model.SelectorOf(signature), nil), nil
	}
	body, err := codec.Marshal(args)
	if err != nil {
		return nil, err
	}
	return model.CallData(model.SelectorOf(signature), body), nil
}

// Decode unmarshals a CBOR method result or argument.
func Decode[T any](data []byte) (T, error) {
	var v T
	if err := codec.Unmarshal(data, &v); err != nil {
		return v, model.NewError(model.CodeInvalidArgument, "malformed CBOR value").WithCause(err)
	}
	return v, nil
}

func encode(v any) ([]byte, error) {
	b, err := codec.Marshal(v)
	if err != nil {
		return nil, model.NewError(model.CodeInternal, "encode result").WithCause(err)
	}
	return b, nil
}
