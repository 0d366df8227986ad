package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"xdao.co/facetrouter/keys"
)

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "xdao-router key: local signing keys")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdao-router key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  xdao-router key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  xdao-router key list")
	fmt.Fprintln(w, "  xdao-router key export --name <name> [--role <role>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "All key subcommands accept --key-dir <dir>.")
}

func keyStore(dir string, errOut io.Writer) (*keys.KeyStore, bool) {
	ks, err := keys.CreateKeyStore(dir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return nil, false
	}
	return ks, true
}

func printAccount(w io.Writer, label string, a keys.Account) {
	fmt.Fprintf(w, "%s: %s\n", label, a.Address)
	fmt.Fprintf(w, "Public key: %s\n", a.PublicKey)
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("key init", pflag.ContinueOnError)
	fs.SetOutput(errOut)

	var name, seedHex, dir string
	var force bool
	fs.StringVar(&name, "name", "", "Key name (directory under the key store)")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed as 64 hex chars (for reproducible setups)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")
	fs.StringVar(&dir, "key-dir", "", "Key store directory")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckKeyName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}

	var seed []byte
	if seedHex != "" {
		var err error
		seed, err = keys.ParseSeedHex(seedHex)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", err)
			return 2
		}
	} else {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "rand: %v\n", err)
			return 1
		}
	}

	ks, ok := keyStore(dir, errOut)
	if !ok {
		return 1
	}
	acct, rootPath, err := ks.InitializeRootKey(name, seed, force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	printAccount(out, "Created root key", acct)
	fmt.Fprintf(out, "Stored at: %s\n", rootPath)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("key derive", pflag.ContinueOnError)
	fs.SetOutput(errOut)

	var from, role, dir string
	var force bool
	fs.StringVar(&from, "from", "", "Root key name")
	fs.StringVar(&role, "role", "", "Role label (e.g. operator, auditor)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")
	fs.StringVar(&dir, "key-dir", "", "Key store directory")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if from == "" {
		fmt.Fprintln(errOut, "missing --from")
		return 2
	}
	if role == "" {
		fmt.Fprintln(errOut, "missing --role")
		return 2
	}
	if err := keys.CheckKeyName(from); err != nil {
		fmt.Fprintf(errOut, "invalid --from: %v\n", err)
		return 2
	}
	if err := keys.CheckRole(role); err != nil {
		fmt.Fprintf(errOut, "invalid --role: %v\n", err)
		return 2
	}
	ks, ok := keyStore(dir, errOut)
	if !ok {
		return 1
	}
	acct, rolePath, err := ks.DeriveKeyFromRole(from, role, force)
	if err != nil {
		fmt.Fprintf(errOut, "derive role key: %v\n", err)
		return 1
	}
	printAccount(out, "Created role key", acct)
	fmt.Fprintf(out, "Stored at: %s\n", rolePath)
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("key export", pflag.ContinueOnError)
	fs.SetOutput(errOut)

	var name, role, dir string
	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&role, "role", "", "Optional role (if set, exports the derived role key)")
	fs.StringVar(&dir, "key-dir", "", "Key store directory")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckKeyName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	if role != "" {
		if err := keys.CheckRole(role); err != nil {
			fmt.Fprintf(errOut, "invalid --role: %v\n", err)
			return 2
		}
	}
	ks, ok := keyStore(dir, errOut)
	if !ok {
		return 1
	}
	acct, err := ks.ExportKey(name, role)
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "%s %s\n", acct.Address, acct.PublicKey)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("key list", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var dir string
	fs.StringVar(&dir, "key-dir", "", "Key store directory")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	ks, ok := keyStore(dir, errOut)
	if !ok {
		return 1
	}
	entries, err := ks.ListKeys()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\n", e.Identifier)
		for _, r := range e.Roles {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
	return 0
}
