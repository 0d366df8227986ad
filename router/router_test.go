package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"xdao.co/facetrouter/events"
	"xdao.co/facetrouter/model"
)

var (
	owner    = model.Address{19: 0x01}
	stranger = model.Address{19: 0x99}

	cutAddr   = model.AddressOf([]byte("test/cut"))
	test1Addr = model.AddressOf([]byte("test/test1"))
	test2Addr = model.AddressOf([]byte("test/test2"))
	initAddr  = model.AddressOf([]byte("test/init"))
)

type harness struct {
	t   *testing.T
	r   *Router
	reg *Registry
	rec *events.Recorder
}

func echoFacet(name string) Facet {
	return FacetFunc(func(_ context.Context, inv Invocation) ([]byte, error) {
		return []byte(fmt.Sprintf("%s:%s:%s", name, inv.Selector, inv.Caller)), nil
	})
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register(cutAddr, echoFacet("cut")))
	require.NoError(t, reg.Register(test1Addr, echoFacet("test1")))
	require.NoError(t, reg.Register(test2Addr, echoFacet("test2")))
	rec := &events.Recorder{}
	r, err := New(context.Background(), owner, cutAddr, reg, WithSink(rec), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return &harness{t: t, r: r, reg: reg, rec: rec}
}

func (h *harness) cut(caller model.Address, cuts ...model.FacetCut) error {
	return h.r.Cut(context.Background(), caller, cuts, model.Address{}, nil)
}

func (h *harness) mustCut(cuts ...model.FacetCut) {
	h.t.Helper()
	require.NoError(h.t, h.cut(owner, cuts...))
	require.NoError(h.t, h.r.CheckTable())
}

func add(f model.Address, s ...model.Selector) model.FacetCut {
	return model.FacetCut{FacetAddress: f, Action: model.Add, FunctionSelectors: s}
}

func replace(f model.Address, s ...model.Selector) model.FacetCut {
	return model.FacetCut{FacetAddress: f, Action: model.Replace, FunctionSelectors: s}
}

func remove(s ...model.Selector) model.FacetCut {
	return model.FacetCut{Action: model.Remove, FunctionSelectors: s}
}

func sigs(prefix string, n int) []model.Selector {
	out := make([]model.Selector, n)
	for i := range out {
		out[i] = model.SelectorOf(fmt.Sprintf("%sFunc%d()", prefix, i+1))
	}
	return out
}

func sortSel(in []model.Selector) []model.Selector {
	out := append([]model.Selector(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

type view struct {
	Facets    []model.Facet
	Addresses []model.Address
}

func (h *harness) view() view {
	return view{Facets: h.r.Facets(), Addresses: h.r.FacetAddresses()}
}

func TestNew_Genesis(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, []model.Address{cutAddr}, h.r.FacetAddresses())
	assert.Equal(t, cutAddr, h.r.FacetAddress(model.CutSelector))
	assert.True(t, h.r.HasRole(model.RoleOwner, owner))
	assert.Equal(t, model.RoleOwner, h.r.GetRoleAdmin(model.RoleOwner))

	batches := h.rec.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, events.KindRoleChanged, batches[0][0].Kind)
	assert.Equal(t, events.KindCutApplied, batches[0][1].Kind)
}

func TestNew_RejectsUncallableCutFacet(t *testing.T) {
	_, err := New(context.Background(), owner, test1Addr, NewRegistry())
	require.True(t, model.IsCode(err, model.CodeFacetNotCallable), "got %v", err)
	_, err = New(context.Background(), model.Address{}, cutAddr, NewRegistry())
	require.True(t, model.IsCode(err, model.CodeInvalidArgument), "got %v", err)
}

func TestCut_AddReplaceRemove(t *testing.T) {
	h := newHarness(t)
	s := sigs("test1", 3)

	h.mustCut(add(test1Addr, s...))
	assert.Equal(t, []model.Address{cutAddr, test1Addr}, h.r.FacetAddresses())
	assert.Equal(t, s, h.r.FacetFunctionSelectors(test1Addr))

	h.mustCut(replace(test2Addr, s[1]))
	assert.Equal(t, test2Addr, h.r.FacetAddress(s[1]))
	assert.ElementsMatch(t, []model.Selector{s[0], s[2]}, h.r.FacetFunctionSelectors(test1Addr))

	h.mustCut(remove(s[0], s[2]))
	assert.Equal(t, []model.Address{cutAddr, test2Addr}, h.r.FacetAddresses())
	assert.Equal(t, model.Address{}, h.r.FacetAddress(s[0]))
	assert.Empty(t, h.r.FacetFunctionSelectors(test1Addr))
	assert.NotNil(t, h.r.FacetFunctionSelectors(test1Addr))
}

func TestCut_PackingRegression(t *testing.T) {
	h := newHarness(t)
	s := sigs("pack", 11)

	// The cut selector holds position 0: s0..s6 fill slot 0, s7..s10 land in slot 1.
	h.mustCut(add(test1Addr, s...))
	h.mustCut(remove(s[5], s[10]))

	want := []model.Selector{s[0], s[1], s[2], s[3], s[4], s[6], s[7], s[8], s[9]}
	if diff := cmp.Diff(sortSel(want), sortSel(h.r.FacetFunctionSelectors(test1Addr))); diff != "" {
		t.Fatalf("selectors mismatch (-want +got):\n%s", diff)
	}
	for _, kept := range want {
		assert.Equal(t, test1Addr, h.r.FacetAddress(kept), "selector %s", kept)
	}
	for _, gone := range []model.Selector{s[5], s[10]} {
		assert.Equal(t, model.Address{}, h.r.FacetAddress(gone))
	}
}

func TestCut_CacheBugScenario(t *testing.T) {
	h := newHarness(t)
	ownerSel := model.SelectorOf("owner()")
	h.mustCut(add(test2Addr, model.SelectorOf("facets()"), ownerSel, model.SelectorOf("hasRole(bytes32,address)")))

	sel := func(hexs string) model.Selector {
		s, err := model.ParseSelector(hexs)
		require.NoError(t, err)
		return s
	}
	added := []model.Selector{
		sel("0x19e3b533"), sel("0x0716c2ae"), sel("0x11046047"), sel("0xcf3bbe18"),
		sel("0x24c1d5a7"), sel("0xcbb835f6"), sel("0xcbb835f7"), sel("0xcbb835f8"),
		sel("0xcbb835f9"), sel("0xcbb835fa"), sel("0xcbb835fb"),
	}
	h.mustCut(add(test1Addr, added...))
	h.mustCut(remove(ownerSel, added[5], added[10]))

	want := append(append([]model.Selector(nil), added[:5]...), added[6:10]...)
	if diff := cmp.Diff(sortSel(want), sortSel(h.r.FacetFunctionSelectors(test1Addr))); diff != "" {
		t.Fatalf("selectors mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, model.Address{}, h.r.FacetAddress(ownerSel))
}

func TestCut_AddThenRemoveRestoresLoupe(t *testing.T) {
	h := newHarness(t)
	base := sigs("base", 5)
	h.mustCut(add(test1Addr, base...))
	before := h.view()

	extra := sigs("extra", 12)
	h.mustCut(add(test1Addr, extra[:6]...), add(test2Addr, extra[6:]...))
	h.mustCut(remove(extra...))

	if diff := cmp.Diff(before, h.view()); diff != "" {
		t.Fatalf("loupe not restored (-before +after):\n%s", diff)
	}
}

func TestCut_Validation(t *testing.T) {
	unknown := model.AddressOf([]byte("test/nowhere"))
	s := sigs("v", 3)

	cases := []struct {
		name string
		cuts []model.FacetCut
		code model.Code
	}{
		{"invalid action", []model.FacetCut{{FacetAddress: test1Addr, Action: 7, FunctionSelectors: s}}, model.CodeInvalidAction},
		{"empty selectors", []model.FacetCut{add(test1Addr)}, model.CodeEmptySelectors},
		{"add null facet", []model.FacetCut{add(model.Address{}, s[0])}, model.CodeFacetNotCallable},
		{"add uncallable facet", []model.FacetCut{add(unknown, s[0])}, model.CodeFacetNotCallable},
		{"add duplicate in directive", []model.FacetCut{add(test1Addr, s[0], s[1], s[0])}, model.CodeDuplicateSelector},
		{"add existing", []model.FacetCut{add(test1Addr, model.CutSelector)}, model.CodeSelectorAlreadyExists},
		{"add existing from earlier directive", []model.FacetCut{add(test1Addr, s[0]), add(test2Addr, s[0])}, model.CodeSelectorAlreadyExists},
		{"replace unmapped", []model.FacetCut{replace(test1Addr, s[2])}, model.CodeSelectorNotFound},
		{"replace uncallable", []model.FacetCut{replace(unknown, s[2])}, model.CodeFacetNotCallable},
		{"replace same facet", []model.FacetCut{add(test1Addr, s[1]), replace(test1Addr, s[1])}, model.CodeNoOpReplace},
		{"remove with facet", []model.FacetCut{{FacetAddress: test1Addr, Action: model.Remove, FunctionSelectors: s[:1]}}, model.CodeRemoveFacetNotZero},
		{"remove unmapped", []model.FacetCut{remove(s[2])}, model.CodeSelectorNotFound},
		{"remove cut selector", []model.FacetCut{remove(model.CutSelector)}, model.CodeImmutableSelector},
		{"remove twice", []model.FacetCut{add(test1Addr, s[0]), remove(s[0]), remove(s[0])}, model.CodeSelectorNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			before := h.view()
			err := h.cut(owner, tc.cuts...)
			require.True(t, model.IsCode(err, tc.code), "got %v, want %s", err, tc.code)
			if diff := cmp.Diff(before, h.view()); diff != "" {
				t.Fatalf("rejected batch changed state (-before +after):\n%s", diff)
			}
			assert.Len(t, h.rec.Batches(), 1, "rejected batch must not emit")
		})
	}
}

func TestCut_ErrorsCarryDetail(t *testing.T) {
	h := newHarness(t)
	s := sigs("d", 1)[0]
	err := h.cut(owner, remove(s))
	var me *model.Error
	require.ErrorAs(t, err, &me)
	require.NotNil(t, me.Selector)
	assert.Equal(t, s, *me.Selector)
}

func TestCut_Unauthorized(t *testing.T) {
	h := newHarness(t)
	before := h.view()

	err := h.cut(stranger, add(test1Addr, sigs("u", 2)...))
	require.True(t, model.IsCode(err, model.CodeUnauthorized), "got %v", err)

	// Authorization is checked before validation.
	err = h.cut(stranger, remove(model.CutSelector))
	require.True(t, model.IsCode(err, model.CodeUnauthorized), "got %v", err)

	if diff := cmp.Diff(before, h.view()); diff != "" {
		t.Fatalf("unauthorized cut changed state:\n%s", diff)
	}
	assert.Len(t, h.rec.Batches(), 1)
}

func TestCut_RouterOwnedSelectorsAreImmutable(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.reg.Register(h.r.Address(), echoFacet("self")))
	s := sigs("self", 2)
	h.mustCut(add(h.r.Address(), s...))

	require.True(t, model.IsCode(h.cut(owner, remove(s[0])), model.CodeImmutableSelector))
	require.True(t, model.IsCode(h.cut(owner, replace(test1Addr, s[1])), model.CodeImmutableSelector))
}

func TestCut_CutFacetCanBeUpgraded(t *testing.T) {
	h := newHarness(t)
	cut2 := model.AddressOf([]byte("test/cut2"))
	require.NoError(t, h.reg.Register(cut2, echoFacet("cut2")))

	h.mustCut(replace(cut2, model.CutSelector))
	assert.Equal(t, cut2, h.r.FacetAddress(model.CutSelector))
	assert.Equal(t, []model.Address{cut2}, h.r.FacetAddresses())

	// Wherever it is routed, the cut entry point stays unremovable.
	require.True(t, model.IsCode(h.cut(owner, remove(model.CutSelector)), model.CodeImmutableSelector))
	assert.Equal(t, cut2, h.r.FacetAddress(model.CutSelector))
}

func TestCut_EventRecordsBatch(t *testing.T) {
	h := newHarness(t)
	s := sigs("e", 2)
	cuts := []model.FacetCut{add(test1Addr, s...)}
	require.NoError(t, h.r.Cut(context.Background(), owner, cuts, model.Address{}, nil))

	batches := h.rec.Batches()
	require.Len(t, batches, 2)
	require.Len(t, batches[1], 1)
	got := batches[1][0]
	require.Equal(t, events.KindCutApplied, got.Kind)
	if diff := cmp.Diff(cuts, got.Cut.Cuts); diff != "" {
		t.Fatalf("event cuts mismatch:\n%s", diff)
	}

	// The event keeps its own copy of the directives.
	cuts[0].FunctionSelectors[0] = model.Selector{}
	assert.Equal(t, s[0], h.rec.Batches()[1][0].Cut.Cuts[0].FunctionSelectors[0])
}

func TestCut_InitializerMismatch(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.reg.Register(initAddr, echoFacet("init")))
	s := sigs("m", 1)
	ctx := context.Background()

	err := h.r.Cut(ctx, owner, []model.FacetCut{add(test1Addr, s...)}, model.Address{}, []byte{1, 2, 3, 4})
	require.True(t, model.IsCode(err, model.CodeInitializerMismatch), "got %v", err)

	err = h.r.Cut(ctx, owner, []model.FacetCut{add(test1Addr, s...)}, initAddr, nil)
	require.True(t, model.IsCode(err, model.CodeInitializerMismatch), "got %v", err)

	err = h.r.Cut(ctx, owner, []model.FacetCut{add(test1Addr, s...)}, initAddr, []byte{1})
	require.True(t, model.IsCode(err, model.CodeInitializerMismatch), "got %v", err)

	err = h.r.Cut(ctx, owner, []model.FacetCut{add(test1Addr, s...)}, model.AddressOf([]byte("none")), []byte{1, 2, 3, 4})
	require.True(t, model.IsCode(err, model.CodeFacetNotCallable), "got %v", err)

	assert.Equal(t, model.Address{}, h.r.FacetAddress(s[0]))
}

func TestCut_InitializerSeesPostCutState(t *testing.T) {
	h := newHarness(t)
	s := sigs("post", 2)
	initSel := model.SelectorOf("init()")

	var seen model.Address
	var seenInv Invocation
	require.NoError(t, h.reg.Register(initAddr, FacetFunc(func(ctx context.Context, inv Invocation) ([]byte, error) {
		seenInv = inv
		seen = inv.Router.FacetAddress(s[1])
		return nil, nil
	})))

	err := h.r.Cut(context.Background(), owner, []model.FacetCut{add(test1Addr, s...)}, initAddr, model.CallData(initSel, []byte{0xaa}))
	require.NoError(t, err)
	assert.Equal(t, test1Addr, seen)
	assert.Equal(t, owner, seenInv.Caller)
	assert.Equal(t, initSel, seenInv.Selector)
	assert.Equal(t, []byte{0xaa}, seenInv.Args)
	assert.True(t, seenInv.Initializer)
}

func TestCut_InitializerFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	s := sigs("rb", 3)
	auditor := model.RoleIDOf("AUDITOR")
	boom := errors.New("boom")

	require.NoError(t, h.reg.Register(initAddr, FacetFunc(func(ctx context.Context, inv Invocation) ([]byte, error) {
		r := inv.Router
		if err := r.GrantRole(ctx, inv.Caller, auditor, stranger); err != nil {
			return nil, err
		}
		if err := r.SetSupportsInterface(ctx, model.Selector{1, 2, 3, 4}, true); err != nil {
			return nil, err
		}
		if err := r.Cut(ctx, inv.Caller, []model.FacetCut{add(test2Addr, sigs("nested", 2)...)}, model.Address{}, nil); err != nil {
			return nil, err
		}
		return nil, boom
	})))

	before := h.view()
	err := h.r.Cut(context.Background(), owner, []model.FacetCut{add(test1Addr, s...)}, initAddr, model.CallData(model.SelectorOf("init()"), nil))
	require.True(t, model.IsCode(err, model.CodeInitializerFailed), "got %v", err)
	require.ErrorIs(t, err, boom)

	if diff := cmp.Diff(before, h.view()); diff != "" {
		t.Fatalf("failed initializer left state behind:\n%s", diff)
	}
	assert.False(t, h.r.HasRole(auditor, stranger))
	assert.False(t, h.r.SupportsInterface(model.Selector{1, 2, 3, 4}))
	assert.Len(t, h.rec.Batches(), 1)
	require.NoError(t, h.r.CheckTable())
}

func TestCut_PanickingInitializerRollsBack(t *testing.T) {
	h := newHarness(t)
	s := sigs("pn", 2)
	auditor := model.RoleIDOf("AUDITOR")

	require.NoError(t, h.reg.Register(initAddr, FacetFunc(func(ctx context.Context, inv Invocation) ([]byte, error) {
		if err := inv.Router.GrantRole(ctx, inv.Caller, auditor, stranger); err != nil {
			return nil, err
		}
		panic("initializer bug")
	})))

	before := h.view()
	err := h.r.Cut(context.Background(), owner, []model.FacetCut{add(test1Addr, s...)}, initAddr, model.CallData(model.SelectorOf("init()"), nil))
	require.True(t, model.IsCode(err, model.CodeInitializerFailed), "got %v", err)
	require.ErrorContains(t, err, "initializer bug")

	if diff := cmp.Diff(before, h.view()); diff != "" {
		t.Fatalf("panicking initializer left state behind:\n%s", diff)
	}
	assert.False(t, h.r.HasRole(auditor, stranger))
	assert.Len(t, h.rec.Batches(), 1)

	// Nothing buffered by the failed cut leaks into the next batch.
	require.NoError(t, h.r.GrantRole(context.Background(), owner, model.RoleManager, stranger))
	batches := h.rec.Batches()
	require.Len(t, batches, 2)
	require.Len(t, batches[1], 1)
	assert.Equal(t, model.RoleManager, batches[1][0].Role.Role)
}

// panicSink panics on Publish while armed.
type panicSink struct {
	events.Recorder
	armed bool
}

func (s *panicSink) Publish(ctx context.Context, batch []events.Event) error {
	if s.armed {
		panic("sink bug")
	}
	return s.Recorder.Publish(ctx, batch)
}

func TestMutate_PanicRestoresState(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(cutAddr, echoFacet("cut")))
	require.NoError(t, reg.Register(test1Addr, echoFacet("test1")))
	sink := &panicSink{}
	r, err := New(context.Background(), owner, cutAddr, reg, WithSink(sink), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	s := sigs("sp", 1)
	sink.armed = true
	require.Panics(t, func() {
		_ = r.Cut(context.Background(), owner, []model.FacetCut{add(test1Addr, s...)}, model.Address{}, nil)
	})
	sink.armed = false

	assert.Equal(t, model.Address{}, r.FacetAddress(s[0]))
	assert.Equal(t, []model.Address{cutAddr}, r.FacetAddresses())

	// The operation lock was released and nothing is left pending.
	require.NoError(t, r.GrantRole(context.Background(), owner, model.RoleManager, stranger))
	batches := sink.Batches()
	require.Len(t, batches, 2)
	require.Len(t, batches[1], 1)
	assert.Equal(t, events.KindRoleChanged, batches[1][0].Kind)
}

func TestCut_NestedOperationsShareOneBatch(t *testing.T) {
	h := newHarness(t)
	auditor := model.RoleIDOf("AUDITOR")
	nested := sigs("nested", 2)

	require.NoError(t, h.reg.Register(initAddr, FacetFunc(func(ctx context.Context, inv Invocation) ([]byte, error) {
		if err := inv.Router.GrantRole(ctx, inv.Caller, auditor, stranger); err != nil {
			return nil, err
		}
		return nil, inv.Router.Cut(ctx, inv.Caller, []model.FacetCut{add(test2Addr, nested...)}, model.Address{}, nil)
	})))

	err := h.r.Cut(context.Background(), owner, []model.FacetCut{add(test1Addr, sigs("outer", 1)...)}, initAddr, model.CallData(model.SelectorOf("init()"), nil))
	require.NoError(t, err)
	assert.True(t, h.r.HasRole(auditor, stranger))
	assert.Equal(t, test2Addr, h.r.FacetAddress(nested[0]))

	batches := h.rec.Batches()
	require.Len(t, batches, 2)
	kinds := make([]events.Kind, 0, len(batches[1]))
	for _, e := range batches[1] {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []events.Kind{events.KindRoleChanged, events.KindCutApplied, events.KindCutApplied}, kinds)
	assert.Equal(t, initAddr, batches[1][2].Cut.Init, "outer cut event comes last")
}

func TestCut_NestedCutIsStillAuthorized(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.reg.Register(initAddr, FacetFunc(func(ctx context.Context, inv Invocation) ([]byte, error) {
		return nil, inv.Router.Cut(ctx, stranger, []model.FacetCut{add(test2Addr, sigs("sneaky", 1)...)}, model.Address{}, nil)
	})))

	err := h.r.Cut(context.Background(), owner, []model.FacetCut{add(test1Addr, sigs("x", 1)...)}, initAddr, model.CallData(model.SelectorOf("init()"), nil))
	require.True(t, model.IsCode(err, model.CodeInitializerFailed), "got %v", err)

	var me *model.Error
	require.ErrorAs(t, errors.Unwrap(err), &me)
	assert.Equal(t, model.CodeUnauthorized, me.Code)
	assert.Equal(t, []model.Address{cutAddr}, h.r.FacetAddresses())
}

func TestCut_SwallowedNestedFailureKeepsOuterCut(t *testing.T) {
	h := newHarness(t)
	innerInit := model.AddressOf([]byte("test/inner-init"))
	require.NoError(t, h.reg.Register(innerInit, FacetFunc(func(context.Context, Invocation) ([]byte, error) {
		return nil, errors.New("inner fails")
	})))
	inner := sigs("inner", 1)
	require.NoError(t, h.reg.Register(initAddr, FacetFunc(func(ctx context.Context, inv Invocation) ([]byte, error) {
		err := inv.Router.Cut(ctx, inv.Caller, []model.FacetCut{add(test2Addr, inner...)}, innerInit, model.CallData(model.SelectorOf("init()"), nil))
		if !model.IsCode(err, model.CodeInitializerFailed) {
			return nil, fmt.Errorf("expected nested failure, got %v", err)
		}
		return nil, nil
	})))

	outer := sigs("outer", 1)
	err := h.r.Cut(context.Background(), owner, []model.FacetCut{add(test1Addr, outer...)}, initAddr, model.CallData(model.SelectorOf("init()"), nil))
	require.NoError(t, err)
	assert.Equal(t, test1Addr, h.r.FacetAddress(outer[0]))
	assert.Equal(t, model.Address{}, h.r.FacetAddress(inner[0]))
	require.Len(t, h.rec.Batches()[1], 1)
}

func TestSetSupportsInterface_OnlyFromInitializer(t *testing.T) {
	h := newHarness(t)
	id := model.Selector{0xde, 0xad, 0xbe, 0xef}
	err := h.r.SetSupportsInterface(context.Background(), id, true)
	require.True(t, model.IsCode(err, model.CodeUnauthorized), "got %v", err)

	var leaked context.Context
	require.NoError(t, h.reg.Register(initAddr, FacetFunc(func(ctx context.Context, inv Invocation) ([]byte, error) {
		leaked = ctx
		return nil, inv.Router.SetSupportsInterface(ctx, id, true)
	})))
	require.NoError(t, h.r.Cut(context.Background(), owner, []model.FacetCut{add(test1Addr, sigs("i", 1)...)}, initAddr, model.CallData(model.SelectorOf("init()"), nil)))
	assert.True(t, h.r.SupportsInterface(id))

	// A context kept past the operation no longer carries initializer rights.
	err = h.r.SetSupportsInterface(leaked, id, false)
	require.True(t, model.IsCode(err, model.CodeUnauthorized), "got %v", err)
}

func TestCall_Forwarding(t *testing.T) {
	h := newHarness(t)
	s := sigs("call", 1)[0]
	h.mustCut(add(test1Addr, s))

	out, err := h.r.Call(context.Background(), stranger, s, nil)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("test1:%s:%s", s, stranger), string(out))

	out, err = h.r.CallData(context.Background(), stranger, model.CallData(s, []byte("x")))
	require.NoError(t, err)
	assert.Contains(t, string(out), "test1:")

	_, err = h.r.Call(context.Background(), stranger, sigs("missing", 1)[0], nil)
	require.True(t, model.IsCode(err, model.CodeFunctionNotFound), "got %v", err)
	_, err = h.r.CallData(context.Background(), stranger, []byte{1})
	require.True(t, model.IsCode(err, model.CodeInvalidArgument), "got %v", err)
}

func TestRoles_ThroughRouter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	auditor := model.RoleIDOf("AUDITOR")

	require.NoError(t, h.r.GrantRole(ctx, owner, auditor, stranger))
	assert.True(t, h.r.HasRole(auditor, stranger))
	assert.Equal(t, []model.Address{stranger}, h.r.Members(auditor))

	err := h.r.RenounceRole(ctx, owner, auditor, stranger)
	require.True(t, model.IsCode(err, model.CodeSelfRenounceOnly), "got %v", err)

	require.NoError(t, h.r.RenounceRole(ctx, stranger, auditor, stranger))
	assert.False(t, h.r.HasRole(auditor, stranger))

	require.True(t, model.IsCode(h.r.RevokeRole(ctx, stranger, model.RoleOwner, owner), model.CodeUnauthorized))
	require.NoError(t, h.r.SetRoleAdmin(ctx, owner, auditor, model.RoleManager))
	assert.Equal(t, model.RoleManager, h.r.GetRoleAdmin(auditor))

	// genesis + grant + renounce + setRoleAdmin; rejected calls and no-ops add nothing.
	require.NoError(t, h.r.GrantRole(ctx, owner, model.RoleManager, owner))
	require.NoError(t, h.r.GrantRole(ctx, owner, model.RoleManager, owner))
	assert.Len(t, h.rec.Batches(), 5)
}

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, []events.Event) error { return f.err }

func TestSinkFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("journal offline")
	h.r.sink = failingSink{err: boom}
	before := h.view()

	err := h.cut(owner, add(test1Addr, sigs("lost", 2)...))
	require.ErrorIs(t, err, boom)
	require.True(t, model.IsCode(err, model.CodeInternal))
	if diff := cmp.Diff(before, h.view()); diff != "" {
		t.Fatalf("unrecorded cut left state behind:\n%s", diff)
	}

	err = h.r.GrantRole(context.Background(), owner, model.RoleManager, stranger)
	require.ErrorIs(t, err, boom)
	assert.False(t, h.r.HasRole(model.RoleManager, stranger))
}

func TestConcurrentMutationsAndReads(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const workers = 8

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			s := sigs(fmt.Sprintf("w%d_", w), 4)
			assert.NoError(t, h.r.Cut(ctx, owner, []model.FacetCut{add(test1Addr, s...)}, model.Address{}, nil))
			assert.NoError(t, h.r.GrantRole(ctx, owner, model.RoleIDOf(fmt.Sprintf("R%d", w)), stranger))
			assert.NoError(t, h.r.Cut(ctx, owner, []model.FacetCut{remove(s[1], s[3])}, model.Address{}, nil))
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = h.r.Facets()
				_ = h.r.FacetAddress(model.CutSelector)
				_ = h.r.HasRole(model.RoleOwner, owner)
			}
		}()
	}
	wg.Wait()

	require.NoError(t, h.r.CheckTable())
	assert.Len(t, h.r.FacetFunctionSelectors(test1Addr), workers*2)
	assert.Len(t, h.rec.Batches(), 1+workers*3)
}
