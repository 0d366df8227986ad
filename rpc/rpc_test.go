package rpc

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/facetrouter/cidutil"
	"xdao.co/facetrouter/codec"
	"xdao.co/facetrouter/events"
	"xdao.co/facetrouter/facets"
	"xdao.co/facetrouter/keys"
	"xdao.co/facetrouter/model"
	"xdao.co/facetrouter/router"
	"xdao.co/facetrouter/storage"
)

func signer(t *testing.T, fill byte) keys.Signer {
	t.Helper()
	s, err := keys.NewEd25519Signer(bytes.Repeat([]byte{fill}, 32))
	require.NoError(t, err)
	return s
}

type env struct {
	d       *facets.Deployment
	journal *events.Journal
	cc      *grpc.ClientConn
	srv     *Server
	owner   *Client
	other   *Client
	raw     RouterClient
}

func start(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	journal, err := events.Open(ctx, storage.NewMemory(), events.WithLogger(log))
	require.NoError(t, err)

	ownerKey := signer(t, 1)
	d, err := facets.Deploy(ctx, keys.AddressOf(ownerKey), router.WithSink(journal), router.WithLogger(log))
	require.NoError(t, err)

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(log)))
	rs := NewServer(d.Router, journal, log)
	RegisterRouterServer(srv, rs)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.DialContext(ctx, "bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })

	owner := NewClient(cc, ownerKey)
	owner.Timeout = 2 * time.Second
	return &env{
		d:       d,
		journal: journal,
		cc:      cc,
		srv:     rs,
		owner:   owner,
		other:   NewClient(cc, signer(t, 2)),
		raw:     NewRouterClient(cc),
	}
}

func TestLoupeOverRPC(t *testing.T) {
	e := start(t)
	ctx := context.Background()

	got, err := e.owner.Facets(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, e.d.Cut, got[0].FacetAddress)

	addrs, err := e.other.FacetAddresses(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.Address{e.d.Cut, e.d.Loupe, e.d.Roles}, addrs)

	sels, err := e.other.FacetFunctionSelectors(ctx, e.d.Roles)
	require.NoError(t, err)
	require.ElementsMatch(t, facets.NewRoles().Selectors(), sels)

	a, err := e.other.FacetAddress(ctx, model.CutSelector)
	require.NoError(t, err)
	require.Equal(t, e.d.Cut, a)

	a, err = e.other.FacetAddress(ctx, model.SelectorOf("missing()"))
	require.NoError(t, err)
	require.True(t, a.IsZero())
}

func TestSignedRoleChanges(t *testing.T) {
	e := start(t)
	ctx := context.Background()
	other, err := e.other.Caller()
	require.NoError(t, err)

	require.NoError(t, e.owner.GrantRole(ctx, model.RoleManager, other))
	ok, err := e.other.HasRole(ctx, model.RoleManager, other)
	require.NoError(t, err)
	require.True(t, ok)

	admin, err := e.other.GetRoleAdmin(ctx, model.RoleManager)
	require.NoError(t, err)
	require.Equal(t, model.RoleOwner, admin)

	members, err := e.other.Members(ctx, model.RoleManager)
	require.NoError(t, err)
	require.Equal(t, []model.Address{other}, members)

	err = e.other.GrantRole(ctx, model.RoleOwner, other)
	require.True(t, model.IsCode(err, model.CodeUnauthorized), "got %v", err)

	require.NoError(t, e.other.RenounceRole(ctx, model.RoleManager, other))
	ok, err = e.owner.HasRole(ctx, model.RoleManager, other)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestErrorsKeepTheirCode(t *testing.T) {
	e := start(t)
	ctx := context.Background()
	other, _ := e.other.Caller()

	err := e.other.Cut(ctx, []model.FacetCut{{Action: model.Remove, FunctionSelectors: []model.Selector{model.SelectorOf("facets()")}}}, model.Address{}, nil)
	require.True(t, model.IsCode(err, model.CodeUnauthorized), "got %v", err)

	var me *model.Error
	require.ErrorAs(t, err, &me)
	require.NotNil(t, me.Account)
	require.Equal(t, other, *me.Account)
	require.NotNil(t, me.Role)
	require.Equal(t, model.RoleOwner, *me.Role)

	err = e.owner.Cut(ctx, []model.FacetCut{{Action: model.Remove, FunctionSelectors: []model.Selector{model.CutSelector}}}, model.Address{}, nil)
	require.True(t, model.IsCode(err, model.CodeImmutableSelector), "got %v", err)
	require.NotNil(t, err.(*model.Error).Selector)

	_, err = e.owner.Call(ctx, model.CallData(model.SelectorOf("missing()"), nil))
	require.True(t, model.IsCode(err, model.CodeFunctionNotFound), "got %v", err)
}

func TestCutAndCallOverRPC(t *testing.T) {
	e := start(t)
	ctx := context.Background()

	err := e.owner.Cut(ctx, []model.FacetCut{
		{Action: model.Remove, FunctionSelectors: []model.Selector{model.SelectorOf(facets.SigFacetAddresses)}},
	}, model.Address{}, nil)
	require.NoError(t, err)

	_, err = e.other.Call(ctx, model.CallData(model.SelectorOf(facets.SigFacetAddresses), nil))
	require.True(t, model.IsCode(err, model.CodeFunctionNotFound), "got %v", err)

	data, err := facets.EncodeCall(facets.SigFacetFunctionSelectors, e.d.Loupe)
	require.NoError(t, err)
	out, err := e.other.Call(ctx, data)
	require.NoError(t, err)
	sels, err := facets.Decode[[]model.Selector](out)
	require.NoError(t, err)
	require.Len(t, sels, 4)
}

func TestReplayedNonceIsRejected(t *testing.T) {
	e := start(t)
	s := signer(t, 9)

	data := model.CallData(model.SelectorOf(facets.SigFacets), nil)
	session := e.srv.Session()
	sealed, err := Seal(s, session, MethodCall, 42, data)
	require.NoError(t, err)
	b, err := codec.Marshal(sealed)
	require.NoError(t, err)

	_, err = e.raw.Invoke(context.Background(), MethodCall, wrapperspb.Bytes(b))
	require.NoError(t, err)
	_, err = e.raw.Invoke(context.Background(), MethodCall, wrapperspb.Bytes(b))
	require.Equal(t, codes.Unauthenticated, status.Code(err), "got %v", err)

	older, err := Seal(s, session, MethodCall, 41, data)
	require.NoError(t, err)
	b, err = codec.Marshal(older)
	require.NoError(t, err)
	_, err = e.raw.Invoke(context.Background(), MethodCall, wrapperspb.Bytes(b))
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestEnvelopeFromEarlierServerIsRejected(t *testing.T) {
	e := start(t)
	ctx := context.Background()
	account := model.Address{19: 0x42}

	args, err := codec.Marshal(facets.RoleArgs{Role: model.RoleManager, Account: account})
	require.NoError(t, err)
	sealed, err := Seal(signer(t, 1), e.srv.Session(), MethodGrantRole, 5, args)
	require.NoError(t, err)
	b, err := codec.Marshal(sealed)
	require.NoError(t, err)

	_, err = e.srv.GrantRole(ctx, wrapperspb.Bytes(b))
	require.NoError(t, err)
	require.NoError(t, e.owner.RevokeRole(ctx, model.RoleManager, account))

	// A restarted server has a new session and an empty nonce book.
	fresh := NewServer(e.d.Router, e.journal, zaptest.NewLogger(t))
	require.NotEqual(t, e.srv.Session(), fresh.Session())
	_, err = fresh.GrantRole(ctx, wrapperspb.Bytes(b))
	require.Equal(t, codes.Unauthenticated, status.Code(err), "got %v", err)
	require.ErrorIs(t, mapRPC(err), ErrUnknownSession)
	require.False(t, e.d.Router.HasRole(model.RoleManager, account))
}

func TestClientResealsForNewSession(t *testing.T) {
	e := start(t)
	ctx := context.Background()

	e.owner.session = []byte("earlier-boot")
	require.NoError(t, e.owner.GrantRole(ctx, model.RoleManager, model.Address{19: 0x43}))
	require.Equal(t, e.srv.Session(), e.owner.session)
}

func TestTamperedEnvelopeIsRejected(t *testing.T) {
	e := start(t)
	s := signer(t, 9)

	session, err := e.other.Session(context.Background())
	require.NoError(t, err)
	require.Equal(t, e.srv.Session(), session)

	sealed, err := Seal(s, session, MethodCall, 7, model.CallData(model.SelectorOf(facets.SigFacets), nil))
	require.NoError(t, err)
	sealed.Body = model.CallData(model.SelectorOf(facets.SigFacetAddresses), nil)
	b, err := codec.Marshal(sealed)
	require.NoError(t, err)
	_, err = e.raw.Invoke(context.Background(), MethodCall, wrapperspb.Bytes(b))
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	// A signature for one method is not valid for another.
	sealed, err = Seal(s, session, MethodCall, 8, nil)
	require.NoError(t, err)
	b, err = codec.Marshal(sealed)
	require.NoError(t, err)
	_, err = e.raw.Invoke(context.Background(), MethodGrantRole, wrapperspb.Bytes(b))
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = e.raw.Invoke(context.Background(), MethodCut, wrapperspb.Bytes([]byte{0xff}))
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestUnsignedClientCannotMutate(t *testing.T) {
	e := start(t)
	c := NewClient(e.cc, nil)
	require.ErrorIs(t, c.GrantRole(context.Background(), model.RoleManager, model.Address{19: 1}), ErrNoSigner)
	_, err := c.Facets(context.Background())
	require.NoError(t, err)
}

func TestJournalOverRPC(t *testing.T) {
	e := start(t)
	ctx := context.Background()

	head, err := e.other.JournalHead(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), head.Seq, "genesis and built-in cut")

	other, _ := e.other.Caller()
	require.NoError(t, e.owner.GrantRole(ctx, model.RoleManager, other))

	head, err = e.other.JournalHead(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), head.Seq)

	entry, err := e.other.JournalEntry(ctx, head.CID)
	require.NoError(t, err)
	require.Equal(t, uint64(3), entry.Seq)
	require.Len(t, entry.Events, 1)
	require.Equal(t, events.KindRoleChanged, entry.Events[0].Kind)
	require.Equal(t, other, entry.Events[0].Role.Account)

	missing, err := cidutil.Of([]byte("not a journal entry"))
	require.NoError(t, err)
	_, err = e.other.JournalEntry(ctx, missing.String())
	require.True(t, storage.IsNotFound(err), "got %v", err)
}

func TestRequestIDHeader(t *testing.T) {
	e := start(t)

	var header metadata.MD
	_, err := e.raw.Invoke(context.Background(), MethodFacets, wrapperspb.Bytes(nil), grpc.Header(&header))
	require.NoError(t, err)
	require.Len(t, header.Get(RequestIDHeader), 1)
	require.NotEmpty(t, header.Get(RequestIDHeader)[0])

	ctx := metadata.AppendToOutgoingContext(context.Background(), RequestIDHeader, "req-123")
	_, err = e.raw.Invoke(ctx, MethodFacets, wrapperspb.Bytes(nil), grpc.Header(&header))
	require.NoError(t, err)
	require.Equal(t, []string{"req-123"}, header.Get(RequestIDHeader))
}

func TestMapRPCWithoutDetails(t *testing.T) {
	require.Nil(t, mapRPC(nil))
	err := mapRPC(status.Error(codes.NotFound, "gone"))
	require.True(t, storage.IsNotFound(err))
	err = mapRPC(status.Error(codes.DataLoss, "bad"))
	require.ErrorIs(t, err, storage.ErrCIDMismatch)
	plain := status.Error(codes.Unavailable, "down")
	require.Equal(t, plain, mapRPC(plain))
}

func TestToStatusRoundTrip(t *testing.T) {
	sel := model.SelectorOf("x()")
	in := model.NewError(model.CodeNoOpReplace, "already there").WithSelector(sel).WithFacet(model.Address{19: 5})
	st := toStatus(in)
	require.Equal(t, codes.FailedPrecondition, status.Code(st))

	out := mapRPC(st)
	var me *model.Error
	require.ErrorAs(t, out, &me)
	require.Equal(t, model.CodeNoOpReplace, me.Code)
	require.Equal(t, "already there", me.Message)
	require.Equal(t, sel, *me.Selector)
	require.Equal(t, model.Address{19: 5}, *me.Facet)
	require.Equal(t, in.Error(), me.Error())
}
