// Package rpc exposes a router over gRPC.
//
// Requests and responses are CBOR inside protobuf BytesValue wrappers.
// Mutations and Call are signed: the request body travels in an Envelope and
// the caller is the address of the signing key.
package rpc

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/facetrouter/cidutil"
	"xdao.co/facetrouter/codec"
	"xdao.co/facetrouter/events"
	"xdao.co/facetrouter/facets"
	"xdao.co/facetrouter/model"
	"xdao.co/facetrouter/router"
)

// JournalHeadReply is the JournalHead response body. CID is empty for an
// empty journal.
type JournalHeadReply struct {
	CID string `cbor:"1,keyasint"`
	Seq uint64 `cbor:"2,keyasint"`
}

// Server exposes a router (and optionally its journal) over the Router gRPC
// service.
type Server struct {
	UnimplementedRouterServer
	Router  *router.Router
	Journal *events.Journal
	Log     *zap.Logger

	nonces      nonceBook
	sessionOnce sync.Once
	session     []byte
}

// NewServer returns a server for r. j may be nil, in which case the journal
// methods fail with FailedPrecondition.
func NewServer(r *router.Router, j *events.Journal, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{Router: r, Journal: j, Log: log}
}

// Session returns the id envelopes must be sealed for. It is random per
// Server, so envelopes captured from an earlier instance do not verify.
func (s *Server) Session() []byte {
	s.sessionOnce.Do(func() {
		id := uuid.New()
		s.session = id[:]
	})
	return s.session
}

// GetSession answers the Session method.
func (s *Server) GetSession(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return reply(s.Session())
}

func (s *Server) ready() error {
	if s == nil || s.Router == nil {
		return status.Error(codes.FailedPrecondition, "missing router")
	}
	return nil
}

// open verifies a signed request for method and returns the caller and the
// request body.
func (s *Server) open(method string, in *wrapperspb.BytesValue) (model.Address, []byte, error) {
	if err := s.ready(); err != nil {
		return model.Address{}, nil, err
	}
	var env Envelope
	if err := codec.Unmarshal(in.GetValue(), &env); err != nil {
		return model.Address{}, nil, status.Error(codes.Unauthenticated, ErrBadEnvelope.Error())
	}
	caller, err := env.Open(s.Session(), method)
	if err != nil {
		return model.Address{}, nil, status.Error(codes.Unauthenticated, err.Error())
	}
	if err := s.nonces.accept(caller, env.Nonce); err != nil {
		return model.Address{}, nil, status.Error(codes.Unauthenticated, err.Error())
	}
	return caller, env.Body, nil
}

// openInto is open followed by decoding the body into v.
func (s *Server) openInto(method string, in *wrapperspb.BytesValue, v any) (model.Address, error) {
	caller, body, err := s.open(method, in)
	if err != nil {
		return model.Address{}, err
	}
	if err := codec.Unmarshal(body, v); err != nil {
		return model.Address{}, status.Errorf(codes.InvalidArgument, "malformed %s body: %v", method, err)
	}
	return caller, nil
}

func decodeArg(method string, in *wrapperspb.BytesValue, v any) error {
	if err := codec.Unmarshal(in.GetValue(), v); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed %s request: %v", method, err)
	}
	return nil
}

func reply(v any) (*wrapperspb.BytesValue, error) {
	b, err := codec.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response: "+err.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) logCaller(ctx context.Context, method string, caller model.Address) {
	if s.Log == nil {
		return
	}
	s.Log.Debug("signed request",
		zap.String("request_id", RequestID(ctx)),
		zap.String("method", method),
		zap.Stringer("account", caller),
	)
}

func (s *Server) Cut(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var args facets.CutArgs
	caller, err := s.openInto(MethodCut, in, &args)
	if err != nil {
		return nil, err
	}
	s.logCaller(ctx, MethodCut, caller)
	if err := s.Router.Cut(ctx, caller, args.Cuts, args.Init, args.Payload); err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(nil), nil
}

// Call forwards signed call data (selector followed by CBOR arguments) and
// returns the facet's raw result.
func (s *Server) Call(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	caller, data, err := s.open(MethodCall, in)
	if err != nil {
		return nil, err
	}
	s.logCaller(ctx, MethodCall, caller)
	out, err := s.Router.CallData(ctx, caller, data)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(out), nil
}

func (s *Server) Facets(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return reply(s.Router.Facets())
}

func (s *Server) FacetFunctionSelectors(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var facet model.Address
	if err := decodeArg(MethodFacetFunctionSelectors, in, &facet); err != nil {
		return nil, err
	}
	return reply(s.Router.FacetFunctionSelectors(facet))
}

func (s *Server) FacetAddresses(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return reply(s.Router.FacetAddresses())
}

func (s *Server) FacetAddress(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var sel model.Selector
	if err := decodeArg(MethodFacetAddress, in, &sel); err != nil {
		return nil, err
	}
	return reply(s.Router.FacetAddress(sel))
}

func (s *Server) HasRole(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var args facets.RoleArgs
	if err := decodeArg(MethodHasRole, in, &args); err != nil {
		return nil, err
	}
	return reply(s.Router.HasRole(args.Role, args.Account))
}

func (s *Server) GetRoleAdmin(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var role model.RoleID
	if err := decodeArg(MethodGetRoleAdmin, in, &role); err != nil {
		return nil, err
	}
	return reply(s.Router.GetRoleAdmin(role))
}

// Members lists the accounts holding a role, sorted.
func (s *Server) Members(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var role model.RoleID
	if err := decodeArg(MethodMembers, in, &role); err != nil {
		return nil, err
	}
	return reply(s.Router.Members(role))
}

type roleChange func(r *router.Router, ctx context.Context, caller model.Address, role model.RoleID, account model.Address) error

func (s *Server) changeRole(ctx context.Context, method string, in *wrapperspb.BytesValue, fn roleChange) (*wrapperspb.BytesValue, error) {
	var args facets.RoleArgs
	caller, err := s.openInto(method, in, &args)
	if err != nil {
		return nil, err
	}
	s.logCaller(ctx, method, caller)
	if err := fn(s.Router, ctx, caller, args.Role, args.Account); err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(nil), nil
}

func (s *Server) GrantRole(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return s.changeRole(ctx, MethodGrantRole, in, (*router.Router).GrantRole)
}

func (s *Server) RevokeRole(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return s.changeRole(ctx, MethodRevokeRole, in, (*router.Router).RevokeRole)
}

func (s *Server) RenounceRole(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return s.changeRole(ctx, MethodRenounceRole, in, (*router.Router).RenounceRole)
}

func (s *Server) SetRoleAdmin(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var args facets.RoleAdminArgs
	caller, err := s.openInto(MethodSetRoleAdmin, in, &args)
	if err != nil {
		return nil, err
	}
	s.logCaller(ctx, MethodSetRoleAdmin, caller)
	if err := s.Router.SetRoleAdmin(ctx, caller, args.Role, args.Admin); err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(nil), nil
}

func (s *Server) JournalHead(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Journal == nil {
		return nil, status.Error(codes.FailedPrecondition, "no journal")
	}
	head, seq := s.Journal.Head()
	out := JournalHeadReply{Seq: seq}
	if head.Defined() {
		out.CID = head.String()
	}
	return reply(out)
}

func (s *Server) JournalEntry(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Journal == nil {
		return nil, status.Error(codes.FailedPrecondition, "no journal")
	}
	var ref string
	if err := decodeArg(MethodJournalEntry, in, &ref); err != nil {
		return nil, err
	}
	id, err := cidutil.Parse(ref)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	e, err := s.Journal.Get(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(e)
}
