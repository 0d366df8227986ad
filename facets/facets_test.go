package facets

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"xdao.co/facetrouter/events"
	"xdao.co/facetrouter/model"
	"xdao.co/facetrouter/router"
)

var (
	deployer = model.AddressOf([]byte("wallet/deployer"))
	other    = model.AddressOf([]byte("wallet/other"))
	third    = model.AddressOf([]byte("wallet/third"))

	customRole = model.RoleIDOf("CUSTOM_ROLE")
)

type fixture struct {
	t   *testing.T
	d   *Deployment
	rec *events.Recorder
}

func deploy(t *testing.T) *fixture {
	t.Helper()
	rec := &events.Recorder{}
	d, err := Deploy(context.Background(), deployer, router.WithSink(rec), router.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return &fixture{t: t, d: d, rec: rec}
}

func (f *fixture) call(caller model.Address, signature string, args any) ([]byte, error) {
	f.t.Helper()
	data, err := EncodeCall(signature, args)
	require.NoError(f.t, err)
	return f.d.Router.CallData(context.Background(), caller, data)
}

func (f *fixture) mustCall(caller model.Address, signature string, args any) []byte {
	f.t.Helper()
	out, err := f.call(caller, signature, args)
	require.NoError(f.t, err)
	return out
}

func (f *fixture) hasRole(role model.RoleID, account model.Address) bool {
	f.t.Helper()
	ok, err := Decode[bool](f.mustCall(other, SigHasRole, RoleArgs{Role: role, Account: account}))
	require.NoError(f.t, err)
	return ok
}

func (f *fixture) cut(cuts ...model.FacetCut) {
	f.t.Helper()
	f.mustCall(deployer, model.CutSignature, CutArgs{Cuts: cuts})
	require.NoError(f.t, f.d.Router.CheckTable())
}

func (f *fixture) facets() []model.Facet {
	f.t.Helper()
	out, err := Decode[[]model.Facet](f.mustCall(other, SigFacets, nil))
	require.NoError(f.t, err)
	return out
}

func (f *fixture) selectorsOf(addr model.Address) []model.Selector {
	f.t.Helper()
	out, err := Decode[[]model.Selector](f.mustCall(other, SigFacetFunctionSelectors, addr))
	require.NoError(f.t, err)
	return out
}

// demo returns a facet with n numbered methods named <prefix>Func<i>() and,
// optionally, its own supportsInterface.
func demo(prefix string, n int, withSupports bool) *Module {
	m := NewModule(prefix)
	for i := 1; i <= n; i++ {
		m.Handle(fmt.Sprintf("%sFunc%d()", prefix, i), func(context.Context, router.Invocation) ([]byte, error) {
			if i == 1 {
				return encode(uint64(1_000_000_000_000_000_000))
			}
			return encode(uint64(i))
		})
	}
	if withSupports {
		m.Handle(SigSupportsInterface, func(context.Context, router.Invocation) ([]byte, error) {
			return encode(false)
		})
	}
	return m
}

func sigList(prefix string, nums ...int) []string {
	out := make([]string, len(nums))
	for i, n := range nums {
		out[i] = fmt.Sprintf("%sFunc%d()", prefix, n)
	}
	return out
}

func TestDeploy_InstallsBuiltinFacetsInOrder(t *testing.T) {
	f := deploy(t)
	d := f.d

	require.Equal(t, []model.Address{d.Cut, d.Loupe, d.Roles}, d.Router.FacetAddresses())
	assert.ElementsMatch(t, NewCut().Selectors(), f.selectorsOf(d.Cut))
	assert.ElementsMatch(t, NewLoupe().Selectors(), f.selectorsOf(d.Loupe))
	assert.ElementsMatch(t, NewRoles().Selectors(), f.selectorsOf(d.Roles))
	assert.Empty(t, f.selectorsOf(d.Init), "initializer selectors are never routed")

	for sel, want := range map[string]model.Address{
		"0x1f931c1c": d.Cut,
		"0xcdffacc6": d.Loupe,
		"0x01ffc9a7": d.Loupe,
		"0x91d14854": d.Roles,
		"0x2f2ff15d": d.Roles,
	} {
		s, err := model.ParseSelector(sel)
		require.NoError(t, err)
		got, err := Decode[model.Address](f.mustCall(other, SigFacetAddress, s))
		require.NoError(t, err)
		assert.Equal(t, want, got, sel)
	}
	require.NoError(t, d.Router.CheckTable())

	batches := f.rec.Batches()
	require.Len(t, batches, 2, "genesis batch and built-in cut batch")
	last := batches[1]
	require.Len(t, last, 1)
	require.Equal(t, events.KindCutApplied, last[0].Kind)
	assert.Equal(t, d.Init, last[0].Cut.Init)
}

func TestDeploy_DeclaresInterfaces(t *testing.T) {
	f := deploy(t)
	require.Equal(t, "0x01ffc9a7", IERC165.String())
	require.Equal(t, "0x1f931c1c", IDiamondCut.String())
	require.Equal(t, "0x48e2b093", IDiamondLoupe.String())
	require.Equal(t, "0x7965db0b", IAccessControl.String())

	for _, id := range BuiltinIDs {
		ok, err := Decode[bool](f.mustCall(other, SigSupportsInterface, id))
		require.NoError(t, err)
		assert.True(t, ok, id.String())
	}
	ok, err := Decode[bool](f.mustCall(other, SigSupportsInterface, model.Selector{0xff, 0xff, 0xff, 0xff}))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInit_RefusesDirectCall(t *testing.T) {
	f := deploy(t)
	_, err := NewInit().Invoke(context.Background(), router.Invocation{
		Router:   f.d.Router,
		Caller:   deployer,
		Selector: model.SelectorOf(SigInit),
	})
	require.True(t, model.IsCode(err, model.CodeUnauthorized), "got %v", err)
}

func TestRoles_GrantRevokeRenounce(t *testing.T) {
	f := deploy(t)

	require.True(t, f.hasRole(model.RoleOwner, deployer), "deployer holds the owner role")

	f.mustCall(deployer, SigGrantRole, RoleArgs{Role: model.RoleManager, Account: other})
	require.True(t, f.hasRole(model.RoleManager, other))

	admin, err := Decode[model.RoleID](f.mustCall(other, SigGetRoleAdmin, model.RoleManager))
	require.NoError(t, err)
	require.Equal(t, model.RoleOwner, admin)

	_, err = f.call(other, SigGrantRole, RoleArgs{Role: model.RoleManager, Account: third})
	require.True(t, model.IsCode(err, model.CodeUnauthorized), "got %v", err)

	f.mustCall(deployer, SigRevokeRole, RoleArgs{Role: model.RoleManager, Account: other})
	require.False(t, f.hasRole(model.RoleManager, other))

	f.mustCall(deployer, SigGrantRole, RoleArgs{Role: model.RoleManager, Account: other})
	f.mustCall(other, SigRenounceRole, RoleArgs{Role: model.RoleManager, Account: other})
	require.False(t, f.hasRole(model.RoleManager, other))

	f.mustCall(deployer, SigGrantRole, RoleArgs{Role: model.RoleManager, Account: other})
	_, err = f.call(deployer, SigRenounceRole, RoleArgs{Role: model.RoleManager, Account: other})
	require.True(t, model.IsCode(err, model.CodeSelfRenounceOnly), "got %v", err)
	require.Contains(t, err.Error(), "can only renounce roles for self")
	require.True(t, f.hasRole(model.RoleManager, other))
}

func TestRoles_CustomRoleAndAdmin(t *testing.T) {
	f := deploy(t)

	f.mustCall(deployer, SigGrantRole, RoleArgs{Role: customRole, Account: other})
	require.True(t, f.hasRole(customRole, other))

	f.mustCall(deployer, SigGrantRole, RoleArgs{Role: model.RoleManager, Account: third})
	f.mustCall(deployer, SigSetRoleAdmin, RoleAdminArgs{Role: customRole, Admin: model.RoleManager})

	admin, err := Decode[model.RoleID](f.mustCall(other, SigGetRoleAdmin, customRole))
	require.NoError(t, err)
	require.Equal(t, model.RoleManager, admin)

	f.mustCall(third, SigRevokeRole, RoleArgs{Role: customRole, Account: other})
	require.False(t, f.hasRole(customRole, other))
}

func TestCut_OnlyOwner(t *testing.T) {
	f := deploy(t)
	test1 := demo("test1", 3, false)
	addr := FacetAddress("test1")
	require.NoError(t, f.d.Registry.Register(addr, test1))

	_, err := f.call(other, model.CutSignature, CutArgs{Cuts: []model.FacetCut{
		{FacetAddress: addr, Action: model.Add, FunctionSelectors: test1.Selectors()},
	}})
	require.True(t, model.IsCode(err, model.CodeUnauthorized), "got %v", err)

	f.mustCall(deployer, SigGrantRole, RoleArgs{Role: model.RoleOwner, Account: other})
	_, err = f.call(other, model.CutSignature, CutArgs{Cuts: []model.FacetCut{
		{FacetAddress: addr, Action: model.Add, FunctionSelectors: test1.Selectors()},
	}})
	require.NoError(t, err)
	require.ElementsMatch(t, test1.Selectors(), f.selectorsOf(addr))
}

func TestCut_MalformedArguments(t *testing.T) {
	f := deploy(t)
	_, err := f.d.Router.CallData(context.Background(), deployer, model.CallData(model.CutSelector, []byte{0xff, 0x00}))
	require.True(t, model.IsCode(err, model.CodeInvalidArgument), "got %v", err)
}

func TestModule_UnknownSelector(t *testing.T) {
	_, err := NewLoupe().Invoke(context.Background(), router.Invocation{Selector: model.SelectorOf("nope()")})
	require.True(t, model.IsCode(err, model.CodeFunctionNotFound), "got %v", err)
}

func TestModule_OnlyAndWithout(t *testing.T) {
	m := NewLoupe()
	require.Equal(t, model.SelectorsOf(SigFacets), m.Only(SigFacets, "missing()"))
	without := m.Without(SigSupportsInterface)
	require.Len(t, without, 4)
	require.NotContains(t, without, IERC165)
	require.Panics(t, func() { m.Handle(SigFacets, nil) })
}

// TestLifecycle walks the full add, replace, remove and re-add sequence
// against a deployed router.
func TestLifecycle(t *testing.T) {
	f := deploy(t)
	d := f.d
	loupe, roles := NewLoupe(), NewRoles()

	test1, test2 := demo("test1", 12, true), demo("test2", 20, false)
	test1Addr, test2Addr := FacetAddress("test1"), FacetAddress("test2")
	require.NoError(t, d.Registry.Register(test1Addr, test1))
	require.NoError(t, d.Registry.Register(test2Addr, test2))

	// Add test1 without its supportsInterface.
	f.cut(model.FacetCut{FacetAddress: test1Addr, Action: model.Add, FunctionSelectors: test1.Without(SigSupportsInterface)})
	require.ElementsMatch(t, test1.Without(SigSupportsInterface), f.selectorsOf(test1Addr))

	v, err := Decode[uint64](f.mustCall(other, "test1Func1()", nil))
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000_000_000_000_000), v)

	// Move supportsInterface from the loupe to test1.
	f.cut(model.FacetCut{FacetAddress: test1Addr, Action: model.Replace, FunctionSelectors: test1.Only(SigSupportsInterface)})
	require.ElementsMatch(t, test1.Selectors(), f.selectorsOf(test1Addr))

	f.cut(model.FacetCut{FacetAddress: test2Addr, Action: model.Add, FunctionSelectors: test2.Selectors()})
	require.ElementsMatch(t, test2.Selectors(), f.selectorsOf(test2Addr))

	keep2 := sigList("test2", 1, 5, 6, 19, 20)
	f.cut(model.FacetCut{Action: model.Remove, FunctionSelectors: test2.Without(keep2...)})
	require.ElementsMatch(t, test2.Only(keep2...), f.selectorsOf(test2Addr))

	keep1 := sigList("test1", 2, 11, 12)
	f.cut(model.FacetCut{Action: model.Remove, FunctionSelectors: test1.Without(keep1...)})
	require.ElementsMatch(t, test1.Only(keep1...), f.selectorsOf(test1Addr))

	// Remove everything except the cut entry point and facets().
	var all []model.Selector
	for _, fc := range f.facets() {
		all = append(all, fc.FunctionSelectors...)
	}
	keepBoth := model.SelectorsOf(SigFacets, model.CutSignature)
	var drop []model.Selector
	for _, s := range all {
		if s != keepBoth[0] && s != keepBoth[1] {
			drop = append(drop, s)
		}
	}
	f.cut(model.FacetCut{Action: model.Remove, FunctionSelectors: drop})

	got := f.facets()
	require.Len(t, got, 2)
	require.Equal(t, d.Cut, got[0].FacetAddress)
	require.Equal(t, []model.Selector{model.CutSelector}, got[0].FunctionSelectors)
	require.Equal(t, d.Loupe, got[1].FacetAddress)
	require.Equal(t, "0x7a0ed627", got[1].FunctionSelectors[0].String())
	require.Len(t, got[1].FunctionSelectors, 1)

	// Re-add most of it in one batch.
	loupeSelectors := loupe.Without(SigSupportsInterface)
	f.cut(
		model.FacetCut{FacetAddress: d.Loupe, Action: model.Add, FunctionSelectors: loupe.Without(SigSupportsInterface, SigFacets)},
		model.FacetCut{FacetAddress: d.Roles, Action: model.Add, FunctionSelectors: roles.Selectors()},
		model.FacetCut{FacetAddress: test1Addr, Action: model.Add, FunctionSelectors: test1.Selectors()},
		model.FacetCut{FacetAddress: test2Addr, Action: model.Add, FunctionSelectors: test2.Selectors()},
	)

	got = f.facets()
	addrs, err := Decode[[]model.Address](f.mustCall(other, SigFacetAddresses, nil))
	require.NoError(t, err)
	require.Equal(t, []model.Address{d.Cut, d.Loupe, d.Roles, test1Addr, test2Addr}, addrs)
	require.Len(t, got, 5)
	for i := range got {
		require.Equal(t, addrs[i], got[i].FacetAddress, "facet %d", i)
	}
	assert.ElementsMatch(t, NewCut().Selectors(), got[0].FunctionSelectors)
	assert.ElementsMatch(t, loupeSelectors, got[1].FunctionSelectors)
	assert.ElementsMatch(t, roles.Selectors(), got[2].FunctionSelectors)
	assert.ElementsMatch(t, test1.Selectors(), got[3].FunctionSelectors)
	assert.ElementsMatch(t, test2.Selectors(), got[4].FunctionSelectors)
}

func TestLifecycle_CutSelectorCannotBeRemoved(t *testing.T) {
	f := deploy(t)
	_, err := f.call(deployer, model.CutSignature, CutArgs{Cuts: []model.FacetCut{
		{Action: model.Remove, FunctionSelectors: []model.Selector{model.CutSelector}},
	}})
	require.True(t, model.IsCode(err, model.CodeImmutableSelector), "got %v", err)
	require.Equal(t, f.d.Cut, f.d.Router.FacetAddress(model.CutSelector))
}
