package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/manthysbr/aule-weather/internal/config"
	"github.com/manthysbr/aule-weather/pkg/kernel"
	"github.com/manthysbr/aule-weather/pkg/mcp"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background asset pollers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return serve
}

func runServe(parent context.Context, cfg *config.Config) error {
	logger := newLogger(os.Stdout, cfg.Log.Level)
	logger.Info("starting aule-weather", "version", version, "config", cfg.Redacted())

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// render containers left by a previous process are never polled again
	if a.providers.Docker != nil {
		removed, err := a.providers.Docker.Sweep(ctx)
		if err != nil {
			return fmt.Errorf("sweep render containers: %w", err)
		}
		logger.Info("render containers swept", "removed", removed)
	}

	spec, err := kernel.LoadSpec(ctx)
	if err != nil {
		return err
	}
	deps := kernel.Deps{
		Agent:   a.agent,
		Convs:   a.convs,
		Videos:  a.videos,
		Tools:   a.tools,
		Bus:     a.bus,
		MCP:     mcp.NewServer(logger, a.tools, version),
		Metrics: a.recorder.Handler(),
	}
	if a.providers.Docker != nil {
		deps.MediaDir = a.providers.Docker.MediaDir()
	}
	apiServer := kernel.NewServer(logger, spec, deps)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           c.Handler(apiServer.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.scheduler.Run(gCtx)
	})

	g.Go(func() error {
		logger.Info("starting api server", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
