package facets

import (
	"context"

	"xdao.co/facetrouter/model"
	"xdao.co/facetrouter/router"
)

// Method signatures of the built-in facets.
const (
	SigFacets                 = "facets()"
	SigFacetFunctionSelectors = "facetFunctionSelectors(address)"
	SigFacetAddresses         = "facetAddresses()"
	SigFacetAddress           = "facetAddress(bytes4)"
	SigSupportsInterface      = "supportsInterface(bytes4)"

	SigHasRole      = "hasRole(bytes32,address)"
	SigGetRoleAdmin = "getRoleAdmin(bytes32)"
	SigGrantRole    = "grantRole(bytes32,address)"
	SigRevokeRole   = "revokeRole(bytes32,address)"
	SigRenounceRole = "renounceRole(bytes32,address)"
	SigSetRoleAdmin = "setRoleAdmin(bytes32,bytes32)"

	SigInit = "init()"
)

// ERC-165 interface ids declared by Init.
var (
	IERC165        = model.SelectorOf(SigSupportsInterface)
	IDiamondCut    = model.CutSelector
	IDiamondLoupe  = model.InterfaceID(model.SelectorsOf(SigFacets, SigFacetFunctionSelectors, SigFacetAddresses, SigFacetAddress)...)
	IAccessControl = model.InterfaceID(model.SelectorsOf(SigHasRole, SigGetRoleAdmin, SigGrantRole, SigRevokeRole, SigRenounceRole)...)
	BuiltinIDs     = []model.Selector{IERC165, IDiamondCut, IDiamondLoupe, IAccessControl}
)

// CutArgs is the argument array of the cut entry point.
type CutArgs struct {
	_       struct{} `cbor:",toarray"`
	Cuts    []model.FacetCut
	Init    model.Address
	Payload []byte
}

// RoleArgs is the argument array of the role methods taking (role, account).
type RoleArgs struct {
	_       struct{} `cbor:",toarray"`
	Role    model.RoleID
	Account model.Address
}

// RoleAdminArgs is the argument array of setRoleAdmin.
type RoleAdminArgs struct {
	_     struct{} `cbor:",toarray"`
	Role  model.RoleID
	Admin model.RoleID
}

// NewCut returns the facet serving the cut entry point. It forwards to the
// router's cut engine with the original caller.
func NewCut() *Module {
	return NewModule("cut").Handle(model.CutSignature, func(ctx context.Context, inv router.Invocation) ([]byte, error) {
		args, err := Decode[CutArgs](inv.Args)
		if err != nil {
			return nil, err
		}
		return nil, inv.Router.Cut(ctx, inv.Caller, args.Cuts, args.Init, args.Payload)
	})
}

// NewLoupe returns the inspection facet.
func NewLoupe() *Module {
	return NewModule("loupe").
		Handle(SigFacets, func(_ context.Context, inv router.Invocation) ([]byte, error) {
			return encode(inv.Router.Facets())
		}).
		Handle(SigFacetFunctionSelectors, func(_ context.Context, inv router.Invocation) ([]byte, error) {
			facet, err := Decode[model.Address](inv.Args)
			if err != nil {
				return nil, err
			}
			return encode(inv.Router.FacetFunctionSelectors(facet))
		}).
		Handle(SigFacetAddresses, func(_ context.Context, inv router.Invocation) ([]byte, error) {
			return encode(inv.Router.FacetAddresses())
		}).
		Handle(SigFacetAddress, func(_ context.Context, inv router.Invocation) ([]byte, error) {
			sel, err := Decode[model.Selector](inv.Args)
			if err != nil {
				return nil, err
			}
			return encode(inv.Router.FacetAddress(sel))
		}).
		Handle(SigSupportsInterface, func(_ context.Context, inv router.Invocation) ([]byte, error) {
			id, err := Decode[model.Selector](inv.Args)
			if err != nil {
				return nil, err
			}
			return encode(inv.Router.SupportsInterface(id))
		})
}

// NewRoles returns the access control facet.
func NewRoles() *Module {
	change := func(op func(r *router.Router, ctx context.Context, caller model.Address, role model.RoleID, account model.Address) error) Method {
		return func(ctx context.Context, inv router.Invocation) ([]byte, error) {
			args, err := Decode[RoleArgs](inv.Args)
			if err != nil {
				return nil, err
			}
			return nil, op(inv.Router, ctx, inv.Caller, args.Role, args.Account)
		}
	}
	return NewModule("roles").
		Handle(SigHasRole, func(_ context.Context, inv router.Invocation) ([]byte, error) {
			args, err := Decode[RoleArgs](inv.Args)
			if err != nil {
				return nil, err
			}
			return encode(inv.Router.HasRole(args.Role, args.Account))
		}).
		Handle(SigGetRoleAdmin, func(_ context.Context, inv router.Invocation) ([]byte, error) {
			role, err := Decode[model.RoleID](inv.Args)
			if err != nil {
				return nil, err
			}
			return encode(inv.Router.GetRoleAdmin(role))
		}).
		Handle(SigGrantRole, change((*router.Router).GrantRole)).
		Handle(SigRevokeRole, change((*router.Router).RevokeRole)).
		Handle(SigRenounceRole, change((*router.Router).RenounceRole)).
		Handle(SigSetRoleAdmin, func(ctx context.Context, inv router.Invocation) ([]byte, error) {
			args, err := Decode[RoleAdminArgs](inv.Args)
			if err != nil {
				return nil, err
			}
			return nil, inv.Router.SetRoleAdmin(ctx, inv.Caller, args.Role, args.Admin)
		})
}

// NewInit returns the deployment initializer. init() declares BuiltinIDs and
// only runs as a cut initializer.
func NewInit() *Module {
	return NewModule("init").Handle(SigInit, func(ctx context.Context, inv router.Invocation) ([]byte, error) {
		if !inv.Initializer {
			return nil, model.NewError(model.CodeUnauthorized, "init() only runs as a cut initializer")
		}
		for _, id := range BuiltinIDs {
			if err := inv.Router.SetSupportsInterface(ctx, id, true); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}
