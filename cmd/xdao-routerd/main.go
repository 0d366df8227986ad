// xdao-routerd serves a facet router over gRPC.
//
// On start it deploys a fresh router owned by the configured owner key and
// appends every committed change to the event journal. The journal is opened
// at its existing head, so a restarted daemon continues the same chain.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"xdao.co/facetrouter/config"
	"xdao.co/facetrouter/events"
	"xdao.co/facetrouter/facets"
	"xdao.co/facetrouter/internal/logging"
	"xdao.co/facetrouter/keys"
	"xdao.co/facetrouter/router"
	"xdao.co/facetrouter/rpc"
	"xdao.co/facetrouter/storage/registry"

	_ "xdao.co/facetrouter/storage/grpcstore"
	_ "xdao.co/facetrouter/storage/localfs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := pflag.NewFlagSet("xdao-routerd", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "YAML config file")
	listen := fs.String("listen", "", "listen address (overrides config)")
	ownerKey := fs.String("owner-key", "", "owner seed file (overrides config)")
	logLevel := fs.String("log-level", "", "log level (overrides config)")
	listBackends := fs.Bool("list-backends", false, "list journal backends and exit")
	printConfig := fs.Bool("print-config", false, "print the effective config as YAML and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *listBackends {
		for _, b := range registry.List(registry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *ownerKey != "" {
		cfg.OwnerKey = *ownerKey
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *printConfig {
		b, err := config.Marshal(cfg)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		_, _ = out.Write(b)
		return 0
	}
	if cfg.OwnerKey == "" {
		fmt.Fprintln(errOut, "owner_key is required (config or --owner-key)")
		return 2
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	if err := serve(ctx, cfg, log); err != nil {
		log.Error("routerd stopped", zap.Error(err))
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	seed, err := keys.LoadSeedFile(cfg.OwnerKey)
	if err != nil {
		return fmt.Errorf("owner key: %w", err)
	}
	owner, err := keys.AccountFromSeed(seed)
	if err != nil {
		return fmt.Errorf("owner key: %w", err)
	}

	store, closeStore, err := registry.OpenSet(cfg.Journal.Backends, cfg.Journal.WritePolicy, registry.UsageDaemon)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("closing journal store", zap.Error(err))
		}
	}()

	journal, err := events.Open(ctx, store, events.WithLogger(log.Named("journal")))
	if err != nil {
		return err
	}
	d, err := facets.Deploy(ctx, owner.Address, router.WithSink(journal), router.WithLogger(log.Named("router")))
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	defer lis.Close()

	s := grpc.NewServer(grpc.UnaryInterceptor(rpc.LoggingInterceptor(log.Named("rpc"))))
	rpc.RegisterRouterServer(s, rpc.NewServer(d.Router, journal, log.Named("rpc")))

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	head, seq := journal.Head()
	log.Info("xdao-routerd listening",
		zap.String("listen", lis.Addr().String()),
		zap.Stringer("router", d.Router.Address()),
		zap.Stringer("account", owner.Address),
		zap.String("cid", head.String()),
		zap.Uint64("seq", seq),
	)
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
