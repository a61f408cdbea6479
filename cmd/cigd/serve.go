package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/agrilink/cig-engine/api"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var port int

	c := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the rollover scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()
			if port > 0 {
				a.cfg.Server.Port = port
			}
			return serve(ctx, a)
		},
	}

	c.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	return c
}

// serve runs the server until ctx is cancelled, then drains it.
func serve(ctx context.Context, a *app) error {
	cfg := a.cfg

	handler := api.NewHandler(a.store, a.assigner, a.roller, a.logger)
	handler.ConflictRetries = cfg.Assignment.ConflictRetries

	scheduler := api.NewRolloverScheduler(a.roller, a.logger)
	scheduler.CheckInterval = cfg.Cycle.CheckInterval.Std()
	scheduler.Enabled = cfg.Cycle.SchedulerEnabled
	handler.Scheduler = scheduler

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handler, api.RouterOptions{
			CORSOrigins: cfg.Server.CORSOrigins,
			Gatherer:    a.registry,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("driver", cfg.Database.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	scheduler.Start()
	defer scheduler.Stop()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}
