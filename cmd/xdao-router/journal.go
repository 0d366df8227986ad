package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/spf13/pflag"

	"xdao.co/facetrouter/events"
	"xdao.co/facetrouter/storage"
	"xdao.co/facetrouter/storage/bundle"
	"xdao.co/facetrouter/storage/registry"

	_ "xdao.co/facetrouter/storage/grpcstore"
	_ "xdao.co/facetrouter/storage/localfs"
)

func cmdJournal(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: xdao-router journal head|show <cid>|log|export|import <bundle>")
		return 2
	}
	switch args[0] {
	case "head":
		return cmdJournalHead(args[1:], out, errOut)
	case "show":
		return cmdJournalShow(args[1:], out, errOut)
	case "log":
		return cmdJournalLog(args[1:], out, errOut)
	case "export":
		return cmdJournalExport(args[1:], out, errOut)
	case "import":
		return cmdJournalImport(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown journal subcommand: %s\n", args[0])
		return 2
	}
}

func cmdJournalHead(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("journal head", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var r remote
	r.bind(fs, false)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	c, code := r.connect(false, errOut)
	if c == nil {
		return code
	}
	defer c.Close()
	head, err := c.JournalHead(context.Background())
	if err != nil {
		return fail(errOut, "journal head", err)
	}
	fmt.Fprintf(out, "%s\t%d\n", head.CID, head.Seq)
	return 0
}

func cmdJournalShow(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("journal show", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var r remote
	r.bind(fs, false)
	asJSON := fs.Bool("json", false, "print the entry as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-router journal show <cid>")
		return 2
	}
	c, code := r.connect(false, errOut)
	if c == nil {
		return code
	}
	defer c.Close()
	e, err := c.JournalEntry(context.Background(), fs.Arg(0))
	if err != nil {
		return fail(errOut, "journal entry", err)
	}
	if *asJSON {
		return printJSON(out, errOut, e)
	}
	printEntry(out, fs.Arg(0), e)
	return 0
}

// storeFlags selects a journal store for the offline subcommands.
type storeFlags struct {
	backend string
	opts    []string
	dir     string
}

func (f *storeFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.backend, "backend", "localfs", "journal backend")
	fs.StringArrayVar(&f.opts, "opt", nil, "backend option key=value (repeatable)")
	fs.StringVar(&f.dir, "dir", "", "shorthand for --opt dir=<dir>")
}

// open returns the store and a close func, or a nil store and an exit code.
func (f *storeFlags) open(errOut io.Writer) (storage.RefStore, func(), int) {
	o := registry.Options{}
	for _, kv := range f.opts {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			fmt.Fprintf(errOut, "invalid --opt %q: want key=value\n", kv)
			return nil, nil, 2
		}
		o[strings.TrimSpace(k)] = v
	}
	if f.dir != "" {
		o["dir"] = f.dir
	}

	store, closeStore, err := registry.Open(f.backend, registry.UsageCLI, o)
	if err != nil {
		fmt.Fprintf(errOut, "open journal store: %v\n", err)
		return nil, nil, 1
	}
	return store, func() {
		if closeStore != nil {
			_ = closeStore()
		}
	}, 0
}

// cmdJournalLog reads a journal straight from its store, newest first.
func cmdJournalLog(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("journal log", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	sf.bind(fs)
	limit := fs.Int("limit", 0, "stop after this many entries (0 = all)")
	asJSON := fs.Bool("json", false, "print entries as JSON lines")
	listBackends := fs.Bool("list-backends", false, "list backends usable here and exit")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	if *listBackends {
		for _, name := range registry.Names(registry.UsageCLI) {
			fmt.Fprintln(out, name)
		}
		return 0
	}

	store, closeStore, code := sf.open(errOut)
	if store == nil {
		return code
	}
	defer closeStore()

	ctx := context.Background()
	j, err := events.Open(ctx, store)
	if err != nil {
		fmt.Fprintf(errOut, "open journal: %v\n", err)
		return 1
	}

	n := 0
	err = j.Walk(ctx, func(id cid.Cid, e events.Entry) error {
		if *asJSON {
			b, err := json.Marshal(struct {
				CID string `json:"cid"`
				events.Entry
			}{id.String(), e})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n", b)
		} else {
			printEntry(out, id.String(), e)
		}
		n++
		if *limit > 0 && n >= *limit {
			return events.ErrStop
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(errOut, "walk journal: %v\n", err)
		return 1
	}
	return 0
}

// cmdJournalExport writes every entry block and the head ref as a bundle.
func cmdJournalExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("journal export", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	sf.bind(fs)
	output := fs.StringP("output", "o", "", "bundle file (default stdout)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	store, closeStore, code := sf.open(errOut)
	if store == nil {
		return code
	}
	defer closeStore()

	ctx := context.Background()
	j, err := events.Open(ctx, store)
	if err != nil {
		fmt.Fprintf(errOut, "open journal: %v\n", err)
		return 1
	}
	var ids []cid.Cid
	if err := j.Walk(ctx, func(id cid.Cid, _ events.Entry) error {
		ids = append(ids, id)
		return nil
	}); err != nil {
		fmt.Fprintf(errOut, "walk journal: %v\n", err)
		return 1
	}
	opts := bundle.ExportOptions{}
	if head, _ := j.Head(); head.Defined() {
		opts.Refs = map[string]cid.Cid{events.HeadRef: head}
	}

	w := out
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(errOut, "create bundle: %v\n", err)
			return 1
		}
		defer f.Close()
		w = f
	}
	if err := bundle.Export(ctx, w, store, ids, opts); err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	if *output != "" {
		fmt.Fprintf(errOut, "exported %d entries to %s\n", len(ids), *output)
	}
	return 0
}

// cmdJournalImport loads a bundle into a store and moves its head ref. The
// imported chain is verified before the command reports success.
func cmdJournalImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("journal import", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	sf.bind(fs)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-router journal import <bundle.tar> --dir <dir>")
		return 2
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "open bundle: %v\n", err)
		return 1
	}
	defer f.Close()

	store, closeStore, code := sf.open(errOut)
	if store == nil {
		return code
	}
	defer closeStore()

	ctx := context.Background()
	idx, err := bundle.Import(ctx, f, store, bundle.ImportOptions{ApplyRefs: true})
	if err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	j, err := events.Open(ctx, store)
	if err != nil {
		fmt.Fprintf(errOut, "open journal: %v\n", err)
		return 1
	}
	entries, err := j.Entries(ctx)
	if err != nil {
		fmt.Fprintf(errOut, "verify journal: %v\n", err)
		return 1
	}
	head, seq := j.Head()
	fmt.Fprintf(out, "imported %d blocks, %d entries, head %s (seq %d)\n", len(idx.Blocks), len(entries), head, seq)
	return 0
}

func printJSON(out io.Writer, errOut io.Writer, v any) int {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(errOut, "json: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "%s\n", b)
	return 0
}

func printEntry(w io.Writer, id string, e events.Entry) {
	fmt.Fprintf(w, "#%d %s\n", e.Seq, id)
	for _, ev := range e.Events {
		fmt.Fprintf(w, "  %s\n", describeEvent(ev))
	}
}

func describeEvent(e events.Event) string {
	switch e.Kind {
	case events.KindCutApplied:
		if e.Cut == nil {
			break
		}
		parts := make([]string, 0, len(e.Cut.Cuts))
		for _, c := range e.Cut.Cuts {
			parts = append(parts, fmt.Sprintf("%s %s (%d)", c.Action, c.FacetAddress, len(c.FunctionSelectors)))
		}
		s := "cut " + strings.Join(parts, ", ")
		if !e.Cut.Init.IsZero() {
			s += " init " + e.Cut.Init.String()
		}
		return s
	case events.KindRoleChanged:
		if e.Role == nil {
			break
		}
		return fmt.Sprintf("role %s %s %s by %s", e.Role.Role, e.Role.Change, e.Role.Account, e.Role.Sender)
	case events.KindRoleAdminChanged:
		if e.RoleAdmin == nil {
			break
		}
		return fmt.Sprintf("role %s admin %s -> %s", e.RoleAdmin.Role, e.RoleAdmin.Previous, e.RoleAdmin.New)
	}
	return string(e.Kind)
}
