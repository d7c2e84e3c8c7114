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

	"github.com/spf13/cobra"
	"github.com/vinculobrasil/flowbot"
	flowhttp "github.com/vinculobrasil/flowbot/pkg/adapters/http"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the flow engine behind a JSON API. Each POST to
/v1/flows/{flowID}/sessions/{sessionID}/messages runs one turn of that session.
With flows.watch enabled, edits to the flow directory are picked up without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger, cfg.Integrations.Simulated)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := []flowhttp.Option{
			flowhttp.WithLogger(logger),
			flowhttp.WithVersion(flowbot.Version),
		}
		if cfg.HTTP.Metrics {
			opts = append(opts, flowhttp.WithMetrics(a.metrics))
		}
		handler, err := flowhttp.NewHandler(a.engine, opts...)
		if err != nil {
			return err
		}
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("http server listening", "addr", srv.Addr, "flows", cfg.Flows.Dir, "store", cfg.Store.Driver)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			logger.Info("shutting down http server")
			if err := srv.Shutdown(shutdownCtx); err != nil {
				_ = srv.Close()
				return fmt.Errorf("graceful shutdown did not complete in %s: %w", cfg.HTTP.ShutdownTimeout, err)
			}
			return nil
		})
		if cfg.Flows.Watch {
			g.Go(func() error {
				return watchFlows(gctx, a)
			})
		}
		return g.Wait()
	},
}

// watchFlows keeps the engine's flow cache in step with the flow directory.
func watchFlows(ctx context.Context, a *app) error {
	changes, err := a.engine.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch flows: %w", err)
	}
	for range changes {
		a.metrics.RecordReload()
		flows, err := a.engine.Flows(ctx)
		if err != nil {
			logger.Warn("flows changed but listing failed", "err", err)
			continue
		}
		logger.Info("flows reloaded", "flows", flows)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides http.addr)")
}
