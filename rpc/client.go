package rpc

import (
	"context"
	"errors"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/facetrouter/codec"
	"xdao.co/facetrouter/events"
	"xdao.co/facetrouter/facets"
	"xdao.co/facetrouter/keys"
	"xdao.co/facetrouter/model"
)

// ErrNoSigner is returned by signed methods on a client without a signer.
var ErrNoSigner = errors.New("rpc: client has no signer")

// Client talks to a Router service. Signed methods need a Signer; read-only
// methods work without one.
type Client struct {
	cc     *grpc.ClientConn
	client RouterClient
	signer keys.Signer

	mu        sync.Mutex
	lastNonce uint64
	session   []byte

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
	// RequestID, when set, is sent as the request id of every call.
	RequestID string
}

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int

	// Signer signs mutating requests.
	Signer keys.Signer
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	c := NewClient(cc, opts.Signer)
	c.cc = cc
	return c, nil
}

// NewClient wraps an existing connection. signer may be nil.
func NewClient(cc grpc.ClientConnInterface, signer keys.Signer) *Client {
	return &Client{client: NewRouterClient(cc), signer: signer}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// Caller returns the address the server will see for signed requests.
func (c *Client) Caller() (model.Address, error) {
	if c.signer == nil {
		return model.Address{}, ErrNoSigner
	}
	return keys.AddressOf(c.signer), nil
}

// nextNonce returns a strictly increasing nonce seeded from the clock, so a
// restarted client does not reuse nonces the server has seen.
func (c *Client) nextNonce() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := uint64(time.Now().UnixNano())
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return n
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.RequestID != "" {
		parent = metadata.AppendToOutgoingContext(parent, RequestIDHeader, c.RequestID)
	}
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}

func (c *Client) invoke(ctx context.Context, method string, body []byte) ([]byte, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	out, err := c.client.Invoke(ctx, method, wrapperspb.Bytes(body))
	if err != nil {
		return nil, mapRPC(err)
	}
	return out.GetValue(), nil
}

// query sends an unsigned request with arg CBOR-encoded (nil for none) and
// decodes the response into out.
func (c *Client) query(ctx context.Context, method string, arg, out any) error {
	var body []byte
	if arg != nil {
		b, err := codec.Marshal(arg)
		if err != nil {
			return err
		}
		body = b
	}
	resp, err := c.invoke(ctx, method, body)
	if err != nil {
		return err
	}
	return codec.Unmarshal(resp, out)
}

// Session returns the server session id, fetching it on first use.
func (c *Client) Session(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	cached := c.session
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	var session []byte
	if err := c.query(ctx, MethodSession, nil, &session); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return session, nil
}

func (c *Client) forgetSession() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

// signed seals body in an envelope and sends it. When the server has
// restarted since the session was fetched, the request is sealed again for
// the new session once.
func (c *Client) signed(ctx context.Context, method string, body []byte) ([]byte, error) {
	if c.signer == nil {
		return nil, ErrNoSigner
	}
	out, err := c.sealAndSend(ctx, method, body)
	if errors.Is(err, ErrUnknownSession) {
		c.forgetSession()
		out, err = c.sealAndSend(ctx, method, body)
	}
	return out, err
}

func (c *Client) sealAndSend(ctx context.Context, method string, body []byte) ([]byte, error) {
	session, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	env, err := Seal(c.signer, session, method, c.nextNonce(), body)
	if err != nil {
		return nil, err
	}
	b, err := codec.Marshal(env)
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, method, b)
}

func (c *Client) signedArgs(ctx context.Context, method string, args any) error {
	body, err := codec.Marshal(args)
	if err != nil {
		return err
	}
	_, err = c.signed(ctx, method, body)
	return err
}

// Cut applies a batch of directives as the signer.
func (c *Client) Cut(ctx context.Context, cuts []model.FacetCut, init model.Address, payload []byte) error {
	return c.signedArgs(ctx, MethodCut, facets.CutArgs{Cuts: cuts, Init: init, Payload: payload})
}

// Call forwards call data as the signer and returns the raw result.
func (c *Client) Call(ctx context.Context, data []byte) ([]byte, error) {
	return c.signed(ctx, MethodCall, data)
}

func (c *Client) Facets(ctx context.Context) ([]model.Facet, error) {
	var out []model.Facet
	err := c.query(ctx, MethodFacets, nil, &out)
	return out, err
}

func (c *Client) FacetFunctionSelectors(ctx context.Context, facet model.Address) ([]model.Selector, error) {
	var out []model.Selector
	err := c.query(ctx, MethodFacetFunctionSelectors, facet, &out)
	return out, err
}

func (c *Client) FacetAddresses(ctx context.Context) ([]model.Address, error) {
	var out []model.Address
	err := c.query(ctx, MethodFacetAddresses, nil, &out)
	return out, err
}

func (c *Client) FacetAddress(ctx context.Context, sel model.Selector) (model.Address, error) {
	var out model.Address
	err := c.query(ctx, MethodFacetAddress, sel, &out)
	return out, err
}

func (c *Client) HasRole(ctx context.Context, role model.RoleID, account model.Address) (bool, error) {
	var out bool
	err := c.query(ctx, MethodHasRole, facets.RoleArgs{Role: role, Account: account}, &out)
	return out, err
}

func (c *Client) GetRoleAdmin(ctx context.Context, role model.RoleID) (model.RoleID, error) {
	var out model.RoleID
	err := c.query(ctx, MethodGetRoleAdmin, role, &out)
	return out, err
}

func (c *Client) Members(ctx context.Context, role model.RoleID) ([]model.Address, error) {
	var out []model.Address
	err := c.query(ctx, MethodMembers, role, &out)
	return out, err
}

func (c *Client) GrantRole(ctx context.Context, role model.RoleID, account model.Address) error {
	return c.signedArgs(ctx, MethodGrantRole, facets.RoleArgs{Role: role, Account: account})
}

func (c *Client) RevokeRole(ctx context.Context, role model.RoleID, account model.Address) error {
	return c.signedArgs(ctx, MethodRevokeRole, facets.RoleArgs{Role: role, Account: account})
}

func (c *Client) RenounceRole(ctx context.Context, role model.RoleID, account model.Address) error {
	return c.signedArgs(ctx, MethodRenounceRole, facets.RoleArgs{Role: role, Account: account})
}

func (c *Client) SetRoleAdmin(ctx context.Context, role, admin model.RoleID) error {
	return c.signedArgs(ctx, MethodSetRoleAdmin, facets.RoleAdminArgs{Role: role, Admin: admin})
}

// JournalHead returns the newest journal entry's CID (empty when the journal
// is empty) and sequence number.
func (c *Client) JournalHead(ctx context.Context) (JournalHeadReply, error) {
	var out JournalHeadReply
	err := c.query(ctx, MethodJournalHead, nil, &out)
	return out, err
}

func (c *Client) JournalEntry(ctx context.Context, id string) (events.Entry, error) {
	var out events.Entry
	err := c.query(ctx, MethodJournalEntry, id, &out)
	return out, err
}
