package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"xdao.co/facetrouter/model"
)

func cmdSelector(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("selector", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: xdao-router selector <signature> [<signature> ...]")
		return 2
	}
	for _, sig := range fs.Args() {
		sel, err := parseSelector(sig)
		if err != nil {
			fmt.Fprintf(errOut, "invalid signature: %v\n", err)
			return 2
		}
		fmt.Fprintf(out, "%s\t%s\n", sel, sig)
	}
	return 0
}

func cmdInterfaceID(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("interface-id", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: xdao-router interface-id <signature> [<signature> ...]")
		return 2
	}
	sels := make([]model.Selector, 0, fs.NArg())
	for _, sig := range fs.Args() {
		sel, err := parseSelector(sig)
		if err != nil {
			fmt.Fprintf(errOut, "invalid signature: %v\n", err)
			return 2
		}
		sels = append(sels, sel)
	}
	_, _ = fmt.Fprintln(out, model.InterfaceID(sels...))
	return 0
}

func cmdRoleID(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("role-id", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-router role-id <name|owner|manager|0x..>")
		return 2
	}
	role, err := parseRole(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "invalid role: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintln(out, role)
	return 0
}
