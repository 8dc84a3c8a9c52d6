package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/de-tools/recon-atlas/pkg/config"
	"github.com/de-tools/recon-atlas/pkg/runtime/app"
	"github.com/de-tools/recon-atlas/pkg/server"
)

var (
	cfgPath string
	addr    string
)

func main() {
	var rootCmd = &cobra.Command{
		Use:          "recon-web",
		Short:        "Serve the reconciliation review API",
		SilenceUsage: true,
		RunE:         runServer,
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to a YAML configuration file")
	rootCmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger := app.NewLogger(cfg.Log, os.Stdout)
	ctx := logger.WithContext(cmd.Context())

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close storage")
		}
	}()

	api := server.NewWebAPI(server.Config{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Dependencies: server.Dependencies{
			Sessions: a.Sessions,
			Resolver: a.Resolver,
			Registry: a.Registry,
			Features: cfg.Features,
			Logger:   logger,
		},
	})
	return api.Start(ctx)
}
