package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/manthysbr/aule-weather/internal/config"
	"github.com/manthysbr/aule-weather/pkg/mcp"
)

// mcpCMD speaks JSON-RPC on stdin/stdout, so all logging goes to stderr.
func mcpCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the weather tools over stdio JSON-RPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, cfg.Log.Level)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, logger, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			a.scheduler.Start(ctx)
			logger.Info("mcp server ready", "tools", len(a.tools.ListTools()))
			return mcp.NewServer(logger, a.tools, version).Serve(ctx, os.Stdin, os.Stdout)
		},
	}
}
