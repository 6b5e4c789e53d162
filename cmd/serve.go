package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/FridgeSeal/swarm/internal/api"
	"github.com/FridgeSeal/swarm/internal/kv"
	"github.com/FridgeSeal/swarm/internal/rpc"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the store over gRPC and HTTP until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := kv.NewService(a.Store, a.Logger)
	grpcServer := rpc.NewGRPCServer(svc, a.Logger)
	var apiOpts []api.Option
	if a.Archive != nil {
		apiOpts = append(apiOpts, api.WithArchive(a.Archive, a.Config.Archive.Prefix))
	}
	httpHandler := api.NewServer(svc, a.Store, a.Logger, apiOpts...).Handler()
	srvCfg := a.Config.Server

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rpc.Serve(gctx, grpcServer, srvCfg.GRPCAddr, a.Logger)
	})
	g.Go(func() error {
		return api.Serve(gctx, srvCfg.HTTPAddr(), httpHandler, srvCfg.ShutdownTimeout, a.Logger)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve data service: %w", err)
	}
	a.Logger.Info("data service stopped")
	return nil
}
