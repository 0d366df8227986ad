package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "xdao.facetrouter.rpc.v1.Router"

// Method names of the Router service.
const (
	MethodCut                    = "Cut"
	MethodCall                   = "Call"
	MethodFacets                 = "Facets"
	MethodFacetFunctionSelectors = "FacetFunctionSelectors"
	MethodFacetAddresses         = "FacetAddresses"
	MethodFacetAddress           = "FacetAddress"
	MethodHasRole                = "HasRole"
	MethodGetRoleAdmin           = "GetRoleAdmin"
	MethodMembers                = "Members"
	MethodGrantRole              = "GrantRole"
	MethodRevokeRole             = "RevokeRole"
	MethodRenounceRole           = "RenounceRole"
	MethodSetRoleAdmin           = "SetRoleAdmin"
	MethodJournalHead            = "JournalHead"
	MethodJournalEntry           = "JournalEntry"
	MethodSession                = "Session"
)

// RouterServer is the server API for the Router gRPC service.
//
// Every method takes and returns a protobuf BytesValue holding CBOR, so the
// service needs no protoc/codegen toolchain. Mutating methods and Call take a
// signed Envelope.
type RouterServer interface {
	Cut(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Call(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Facets(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	FacetFunctionSelectors(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	FacetAddresses(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	FacetAddress(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	HasRole(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	GetRoleAdmin(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Members(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	GrantRole(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	RevokeRole(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	RenounceRole(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	SetRoleAdmin(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	JournalHead(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	JournalEntry(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	GetSession(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// UnimplementedRouterServer can be embedded to have forward compatible implementations.
type UnimplementedRouterServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedRouterServer) Cut(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodCut)
}
func (UnimplementedRouterServer) Call(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodCall)
}
func (UnimplementedRouterServer) Facets(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodFacets)
}
func (UnimplementedRouterServer) FacetFunctionSelectors(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodFacetFunctionSelectors)
}
func (UnimplementedRouterServer) FacetAddresses(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodFacetAddresses)
}
func (UnimplementedRouterServer) FacetAddress(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodFacetAddress)
}
func (UnimplementedRouterServer) HasRole(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodHasRole)
}
func (UnimplementedRouterServer) GetRoleAdmin(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodGetRoleAdmin)
}
func (UnimplementedRouterServer) Members(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodMembers)
}
func (UnimplementedRouterServer) GrantRole(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodGrantRole)
}
func (UnimplementedRouterServer) RevokeRole(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodRevokeRole)
}
func (UnimplementedRouterServer) RenounceRole(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodRenounceRole)
}
func (UnimplementedRouterServer) SetRoleAdmin(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodSetRoleAdmin)
}
func (UnimplementedRouterServer) JournalHead(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodJournalHead)
}
func (UnimplementedRouterServer) JournalEntry(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodJournalEntry)
}
func (UnimplementedRouterServer) GetSession(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented(MethodSession)
}

// RegisterRouterServer registers the Router service on a gRPC server.
func RegisterRouterServer(s grpc.ServiceRegistrar, srv RouterServer) {
	s.RegisterService(&Router_ServiceDesc, srv)
}

// RouterClient is the client API for the Router gRPC service. All methods
// share one request/response shape, so the client exposes a single Invoke.
type RouterClient interface {
	Invoke(ctx context.Context, method string, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type routerClient struct{ cc grpc.ClientConnInterface }

func NewRouterClient(cc grpc.ClientConnInterface) RouterClient { return &routerClient{cc: cc} }

func (c *routerClient) Invoke(ctx context.Context, method string, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type unaryCall func(RouterServer, context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(wrapperspb.BytesValue)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RouterServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(RouterServer), ctx, req.(*wrapperspb.BytesValue))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Router_ServiceDesc is the grpc.ServiceDesc for the Router service.
var Router_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RouterServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodCut, RouterServer.Cut),
		unaryMethod(MethodCall, RouterServer.Call),
		unaryMethod(MethodFacets, RouterServer.Facets),
		unaryMethod(MethodFacetFunctionSelectors, RouterServer.FacetFunctionSelectors),
		unaryMethod(MethodFacetAddresses, RouterServer.FacetAddresses),
		unaryMethod(MethodFacetAddress, RouterServer.FacetAddress),
		unaryMethod(MethodHasRole, RouterServer.HasRole),
		unaryMethod(MethodGetRoleAdmin, RouterServer.GetRoleAdmin),
		unaryMethod(MethodMembers, RouterServer.Members),
		unaryMethod(MethodGrantRole, RouterServer.GrantRole),
		unaryMethod(MethodRevokeRole, RouterServer.RevokeRole),
		unaryMethod(MethodRenounceRole, RouterServer.RenounceRole),
		unaryMethod(MethodSetRoleAdmin, RouterServer.SetRoleAdmin),
		unaryMethod(MethodJournalHead, RouterServer.JournalHead),
		unaryMethod(MethodJournalEntry, RouterServer.JournalEntry),
		unaryMethod(MethodSession, RouterServer.GetSession),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "router.proto",
}
