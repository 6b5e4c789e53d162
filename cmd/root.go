// Package cmd defines the swarm command line.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FridgeSeal/swarm/internal/app"
	"github.com/FridgeSeal/swarm/internal/config"
)

type appKeyType string

const appKey appKeyType = "app"

// newApp is swapped in tests.
var newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
	return app.New(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "swarm",
		Short: "Crawls a news site into a key-value store and serves the results.",
		Long: `swarm discovers article pages under a root URL, extracts structured records
from them and writes the records to a key-value store. The serve command exposes
that store over gRPC and HTTP.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			zap.ReplaceGlobals(a.Logger)
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app.App); ok && a != nil {
				a.Close(context.WithoutCancel(cmd.Context()))
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newCrawlCmd(), newServeCmd(), newRunsCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, app.ErrNotInitialized
	}
	return a, nil
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		zap.L().Fatal("command execution failed", zap.Error(err))
	}
}
