package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/taskpay/internal/settlement"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and background jobs",
	Long:  "Starts the HTTP API, the task feed, the scheduled rate refresh and the settlement reconciler",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Finish anything a previous process left half done before serving.
		reconciler := settlement.NewReconciler(a.server.Engine(), a.logger)
		reconciler.RunOnce()

		if err := a.rates.Refresh(ctx); err != nil {
			a.logger.Warn("initial rate fetch failed, using fallback", "error", err)
		}
		if _, err := a.rates.Schedule(reconciler.Cron(), a.cfg.RateSchedule); err != nil {
			return err
		}
		if _, err := reconciler.Cron().AddFunc("@every 10m", func() {
			a.server.RateLimiter().Cleanup(30 * time.Minute)
		}); err != nil {
			return err
		}
		if err := reconciler.Start(a.cfg.ReconcileSchedule); err != nil {
			return err
		}
		defer reconciler.Stop()

		httpServer := &http.Server{
			Addr:         ":" + a.cfg.Port,
			Handler:      a.server.Router(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: a.cfg.PaymentTimeout + 10*time.Second,
			IdleTimeout:  120 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("taskpay listening", "addr", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-ctx.Done():
		}

		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		a.logger.Info("server stopped")
		return nil
	},
}
