package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"xdao.co/facetrouter/keys"
	"xdao.co/facetrouter/model"
	"xdao.co/facetrouter/rpc"
)

// dial is replaced in tests.
var dial = rpc.Dial

// remote holds the connection and signer flags shared by commands that talk
// to xdao-routerd.
type remote struct {
	addr      string
	timeout   time.Duration
	requestID string

	keyDir     string
	seedHex    string
	signer     string
	signerRole string
	keyFile    string
}

func (r *remote) bind(fs *pflag.FlagSet, signed bool) {
	fs.StringVar(&r.addr, "addr", "127.0.0.1:7778", "xdao-routerd address")
	fs.DurationVar(&r.timeout, "timeout", 10*time.Second, "per-call timeout")
	fs.StringVar(&r.requestID, "request-id", "", "request id sent with every call")
	if !signed {
		return
	}
	fs.StringVar(&r.keyDir, "key-dir", "", "Key store directory")
	fs.StringVar(&r.seedHex, "seed-hex", "", "ed25519 seed as 64 hex chars")
	fs.StringVar(&r.signer, "signer", "", "Stored key name")
	fs.StringVar(&r.signerRole, "signer-role", "", "Derived role key of --signer")
	fs.StringVar(&r.keyFile, "key-file", "", "Seed file")
}

// connect dials the daemon. With signed set it also resolves the signer; a
// missing signer is a usage error.
func (r *remote) connect(signed bool, errOut io.Writer) (*rpc.Client, int) {
	var signer keys.Signer
	if signed {
		ks, ok := keyStore(r.keyDir, errOut)
		if !ok {
			return nil, 1
		}
		seed, err := ks.LoadSeed(r.seedHex, r.signer, r.signerRole, r.keyFile)
		if err != nil {
			fmt.Fprintf(errOut, "signer: %v\n", err)
			return nil, 2
		}
		s, err := keys.NewEd25519Signer(seed)
		if err != nil {
			fmt.Fprintf(errOut, "signer: %v\n", err)
			return nil, 2
		}
		signer = s
	}
	c, err := dial(r.addr, rpc.DialOptions{Timeout: r.timeout, Signer: signer})
	if err != nil {
		fmt.Fprintf(errOut, "dial %s: %v\n", r.addr, err)
		return nil, 1
	}
	c.Timeout = r.timeout
	c.RequestID = r.requestID
	return c, 0
}

// fail prints err and returns its exit code.
func fail(errOut io.Writer, what string, err error) int {
	if code := model.CodeOf(err); code != "" {
		fmt.Fprintf(errOut, "%s: [%s] %v\n", what, code, err)
		return 1
	}
	fmt.Fprintf(errOut, "%s: %v\n", what, err)
	return 1
}

func cmdLoupe(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: xdao-router loupe facets|addresses|selectors <facet>|facet <selector>")
		return 2
	}
	sub := args[0]
	fs := pflag.NewFlagSet("loupe "+sub, pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var r remote
	r.bind(fs, false)
	if code, ok := parseFlags(fs, args[1:]); !ok {
		return code
	}

	want := map[string]int{"facets": 0, "addresses": 0, "selectors": 1, "facet": 1}
	n, known := want[sub]
	if !known {
		fmt.Fprintf(errOut, "unknown loupe subcommand: %s\n", sub)
		return 2
	}
	if fs.NArg() != n {
		fmt.Fprintf(errOut, "loupe %s: expected %d argument(s)\n", sub, n)
		return 2
	}

	c, code := r.connect(false, errOut)
	if c == nil {
		return code
	}
	defer c.Close()
	ctx := context.Background()

	switch sub {
	case "facets":
		list, err := c.Facets(ctx)
		if err != nil {
			return fail(errOut, "facets", err)
		}
		for _, f := range list {
			fmt.Fprintf(out, "%s\n", f.FacetAddress)
			for _, s := range f.FunctionSelectors {
				fmt.Fprintf(out, "  %s\n", s)
			}
		}
	case "addresses":
		addrs, err := c.FacetAddresses(ctx)
		if err != nil {
			return fail(errOut, "facet addresses", err)
		}
		for _, a := range addrs {
			fmt.Fprintln(out, a)
		}
	case "selectors":
		facet, err := parseAddress(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(errOut, "invalid facet: %v\n", err)
			return 2
		}
		sels, err := c.FacetFunctionSelectors(ctx, facet)
		if err != nil {
			return fail(errOut, "facet selectors", err)
		}
		for _, s := range sels {
			fmt.Fprintln(out, s)
		}
	case "facet":
		sel, err := parseSelector(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(errOut, "invalid selector: %v\n", err)
			return 2
		}
		facet, err := c.FacetAddress(ctx, sel)
		if err != nil {
			return fail(errOut, "facet address", err)
		}
		fmt.Fprintln(out, facet)
	}
	return 0
}

func cmdCut(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("cut", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var r remote
	r.bind(fs, true)
	adds := fs.StringArray("add", nil, "FACET=SIG to add (repeatable)")
	replaces := fs.StringArray("replace", nil, "FACET=SIG to replace (repeatable)")
	removes := fs.StringArray("remove", nil, "SIG to remove (repeatable)")
	initFacet := fs.String("init", "", "initializer facet")
	initCall := fs.String("init-call", "", "initializer function signature")
	payloadHex := fs.String("init-payload-hex", "", "raw initializer payload (hex), instead of --init-call")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cuts, err := buildCuts(*adds, *replaces, *removes)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	var initAddr model.Address
	var payload []byte
	if *initFacet != "" {
		if initAddr, err = parseAddress(*initFacet); err != nil {
			fmt.Fprintf(errOut, "invalid --init: %v\n", err)
			return 2
		}
	}
	switch {
	case *initCall != "" && *payloadHex != "":
		fmt.Fprintln(errOut, "--init-call and --init-payload-hex are exclusive")
		return 2
	case *initCall != "":
		sel, err := parseSelector(*initCall)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --init-call: %v\n", err)
			return 2
		}
		payload = model.CallData(sel, nil)
	case *payloadHex != "":
		if payload, err = hex.DecodeString(*payloadHex); err != nil {
			fmt.Fprintf(errOut, "invalid --init-payload-hex: %v\n", err)
			return 2
		}
	}
	if len(cuts) == 0 && initAddr.IsZero() {
		fmt.Fprintln(errOut, "nothing to cut: give --add, --replace, --remove or --init")
		return 2
	}

	c, code := r.connect(true, errOut)
	if c == nil {
		return code
	}
	defer c.Close()
	if err := c.Cut(context.Background(), cuts, initAddr, payload); err != nil {
		return fail(errOut, "cut", err)
	}
	fmt.Fprintf(out, "Applied %d directive(s)\n", len(cuts))
	return 0
}

func cmdCall(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("call", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var r remote
	r.bind(fs, true)
	argHex := fs.String("arg-hex", "", "CBOR-encoded arguments (hex)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-router call <signature> [--arg-hex <cbor>]")
		return 2
	}
	sel, err := parseSelector(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "invalid signature: %v\n", err)
		return 2
	}
	argBytes, err := hex.DecodeString(*argHex)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --arg-hex: %v\n", err)
		return 2
	}

	c, code := r.connect(true, errOut)
	if c == nil {
		return code
	}
	defer c.Close()
	res, err := c.Call(context.Background(), model.CallData(sel, argBytes))
	if err != nil {
		return fail(errOut, "call", err)
	}
	_, _ = fmt.Fprintln(out, hex.EncodeToString(res))
	return 0
}

func cmdRole(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: xdao-router role has|admin|members|grant|revoke|renounce|set-admin ...")
		return 2
	}
	sub := args[0]
	want := map[string]struct {
		n      int
		signed bool
	}{
		"has":       {2, false},
		"admin":     {1, false},
		"members":   {1, false},
		"grant":     {2, true},
		"revoke":    {2, true},
		"renounce":  {2, true},
		"set-admin": {2, true},
	}
	shape, known := want[sub]
	if !known {
		fmt.Fprintf(errOut, "unknown role subcommand: %s\n", sub)
		return 2
	}

	fs := pflag.NewFlagSet("role "+sub, pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var r remote
	r.bind(fs, shape.signed)
	if code, ok := parseFlags(fs, args[1:]); !ok {
		return code
	}
	if fs.NArg() != shape.n {
		fmt.Fprintf(errOut, "role %s: expected %d argument(s)\n", sub, shape.n)
		return 2
	}
	role, err := parseRole(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "invalid role: %v\n", err)
		return 2
	}
	var account model.Address
	var admin model.RoleID
	if sub == "set-admin" {
		if admin, err = parseRole(fs.Arg(1)); err != nil {
			fmt.Fprintf(errOut, "invalid admin role: %v\n", err)
			return 2
		}
	} else if shape.n == 2 {
		if account, err = model.ParseAddress(fs.Arg(1)); err != nil {
			fmt.Fprintf(errOut, "invalid account: %v\n", err)
			return 2
		}
	}

	c, code := r.connect(shape.signed, errOut)
	if c == nil {
		return code
	}
	defer c.Close()
	ctx := context.Background()

	switch sub {
	case "has":
		ok, err := c.HasRole(ctx, role, account)
		if err != nil {
			return fail(errOut, "has role", err)
		}
		fmt.Fprintln(out, ok)
	case "admin":
		a, err := c.GetRoleAdmin(ctx, role)
		if err != nil {
			return fail(errOut, "role admin", err)
		}
		fmt.Fprintln(out, a)
	case "members":
		list, err := c.Members(ctx, role)
		if err != nil {
			return fail(errOut, "role members", err)
		}
		for _, m := range list {
			fmt.Fprintln(out, m)
		}
	case "grant":
		if err := c.GrantRole(ctx, role, account); err != nil {
			return fail(errOut, "grant", err)
		}
	case "revoke":
		if err := c.RevokeRole(ctx, role, account); err != nil {
			return fail(errOut, "revoke", err)
		}
	case "renounce":
		if err := c.RenounceRole(ctx, role, account); err != nil {
			return fail(errOut, "renounce", err)
		}
	case "set-admin":
		if err := c.SetRoleAdmin(ctx, role, admin); err != nil {
			return fail(errOut, "set admin", err)
		}
	}
	return 0
}
