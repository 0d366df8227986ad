// xdao-router is the command line client for xdao-routerd.
//
// It manages local signing keys, computes selectors and role ids, and drives a
// running router over gRPC: loupe queries, cuts, role changes and journal
// inspection. "journal log" also reads a journal store directly.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "selector":
		return cmdSelector(args[1:], out, errOut)
	case "interface-id":
		return cmdInterfaceID(args[1:], out, errOut)
	case "role-id":
		return cmdRoleID(args[1:], out, errOut)
	case "loupe":
		return cmdLoupe(args[1:], out, errOut)
	case "cut":
		return cmdCut(args[1:], out, errOut)
	case "call":
		return cmdCall(args[1:], out, errOut)
	case "role":
		return cmdRole(args[1:], out, errOut)
	case "journal":
		return cmdJournal(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "xdao-router: facet router client")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdao-router key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  xdao-router key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  xdao-router key list")
	fmt.Fprintln(w, "  xdao-router key export --name <name> [--role <role>]")
	fmt.Fprintln(w, "  xdao-router selector <signature> [<signature> ...]")
	fmt.Fprintln(w, "  xdao-router interface-id <signature> [<signature> ...]")
	fmt.Fprintln(w, "  xdao-router role-id <name|owner|manager|0x..>")
	fmt.Fprintln(w, "  xdao-router loupe facets|addresses|selectors <facet>|facet <selector> [--addr host:port]")
	fmt.Fprintln(w, "  xdao-router cut [--add FACET=SIG ...] [--replace FACET=SIG ...] [--remove SIG ...] [--init FACET --init-call SIG] <signer>")
	fmt.Fprintln(w, "  xdao-router call <signature> [--arg-hex <cbor>] <signer>")
	fmt.Fprintln(w, "  xdao-router role has|admin|members <role> [<account>]")
	fmt.Fprintln(w, "  xdao-router role grant|revoke|renounce <role> <account> <signer>")
	fmt.Fprintln(w, "  xdao-router role set-admin <role> <admin> <signer>")
	fmt.Fprintln(w, "  xdao-router journal head|show <cid> [--addr host:port]")
	fmt.Fprintln(w, "  xdao-router journal log [--dir <dir> | --backend <name> --opt key=value ...] [--limit n] [--json]")
	fmt.Fprintln(w, "  xdao-router journal export [--dir <dir> | --backend <name> --opt key=value ...] [-o bundle.tar]")
	fmt.Fprintln(w, "  xdao-router journal import <bundle.tar> [--dir <dir> | --backend <name> --opt key=value ...]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Signer (any one of):")
	fmt.Fprintln(w, "  --seed-hex <64hex> | --signer <name> [--signer-role <role>] | --key-file <path>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - keys are stored under ~/.xdao/router-keys/<name> unless --key-dir is set")
	fmt.Fprintln(w, "  - SIG is a function signature like \"facets()\" or a 0x-prefixed 4-byte selector")
	fmt.Fprintln(w, "  - roles are given by name (hashed), as owner or manager, or as 0x-prefixed 32-byte hex")
}

// parseFlags parses args into fs, reporting usage errors to errOut. ok is
// false when the caller should return code.
func parseFlags(fs *pflag.FlagSet, args []string) (code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}
