// README: Entry point; loads config, wires services, starts HTTP server and the prebooking sweep.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"yatri/internal/config"
	httptransport "yatri/internal/http"
	"yatri/internal/infra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "yatri-api",
		Short:        "Ride-hailing dispatch core",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("YATRI_CONFIG"), "path to a YAML or JSON config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the prebooking sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "routes",
		Short: "Print the current rebalancing plan as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return printRoutes(cmd.Context(), cfg)
		},
	})
	return root
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := infra.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	gin.SetMode(gin.ReleaseMode)
	handler := httptransport.NewServer(httptransport.ServerDeps{
		Demand:         a.demand,
		Planner:        a.planner,
		Pricing:        a.pricing,
		Drivers:        a.drivers,
		Rides:          a.rides,
		Prebooking:     a.prebooking,
		Leaderboard:    a.leaderboard,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Log:            log,
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go a.prebooking.RunSweepTicker(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func printRoutes(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	log := infra.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	a, err := build(parent, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	plan, err := a.planner.Current(parent)
	if err != nil {
		return fmt.Errorf("plan routes: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}
