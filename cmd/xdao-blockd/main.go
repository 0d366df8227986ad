// xdao-blockd serves a block store over gRPC, so that xdao-routerd can keep
// its journal on another host (journal backend "grpc").
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"xdao.co/facetrouter/internal/logging"
	"xdao.co/facetrouter/rpc"
	"xdao.co/facetrouter/storage/grpcstore"
	"xdao.co/facetrouter/storage/registry"

	_ "xdao.co/facetrouter/storage/localfs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := pflag.NewFlagSet("xdao-blockd", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "store backend name")
	opts := fs.StringArray("opt", nil, "backend option key=value (repeatable)")
	logLevel := fs.String("log-level", "info", "log level")
	logFormat := fs.String("log-format", "console", "log format (json or console)")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *listBackends {
		for _, b := range registry.List(registry.UsageDaemon) {
			line := b.Name
			if b.Description != "" {
				line += "\t" + b.Description
			}
			if len(b.Keys) > 0 {
				line += "\t(" + strings.Join(b.Keys, ", ") + ")"
			}
			_, _ = fmt.Fprintln(out, line)
		}
		return 0
	}
	if *backend == "grpc" {
		fmt.Fprintln(errOut, "backend grpc would serve a remote store; pick a local backend")
		return 2
	}

	o := registry.Options{}
	for _, kv := range *opts {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			fmt.Fprintf(errOut, "invalid --opt %q: want key=value\n", kv)
			return 2
		}
		o[strings.TrimSpace(k)] = v
	}

	log, err := logging.New(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	store, closeFn, err := registry.Open(*backend, registry.UsageDaemon, o)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if closeFn != nil {
		defer func() {
			if err := closeFn(); err != nil {
				log.Warn("closing store", zap.Error(err))
			}
		}()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Error("listen", zap.Error(err))
		return 1
	}
	defer lis.Close()

	s := grpc.NewServer(grpc.UnaryInterceptor(rpc.LoggingInterceptor(log.Named("rpc"))))
	grpcstore.RegisterBlockStoreServer(s, &grpcstore.Server{Store: store})

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	log.Info("xdao-blockd listening", zap.String("listen", lis.Addr().String()), zap.String("backend", *backend))
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		log.Error("serve", zap.Error(err))
		return 1
	}
	return 0
}
