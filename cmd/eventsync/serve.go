package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/guilherme-santos/eventsync/internal/httpapi"
	"github.com/guilherme-santos/eventsync/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive webhook pings, push change notifications and run scheduled syncs",
	Long: `Start the HTTP server and the scheduler.

Routes:
  POST /api/google/webhook   push notifications from Google
  GET  /api/events/ws        websocket "events-updated" notifications
  GET  /healthz              health check

Without --http-callback-base-url no watch channels are registered and linked
accounts are only refreshed by the periodic sync sweep.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.shutdown()

		go a.hub.Run(ctx)

		sched := scheduler.New(a.logger.Named("scheduler"), a.location, a.watcher, a.syncer)
		sched.RenewSpec = cfg.Schedule.Renew
		sched.SyncSpec = cfg.Schedule.Sync
		if cfg.HTTP.CallbackBaseURL == "" {
			a.logger.Warn("no callback base url configured, watch channels disabled")
			sched.RenewSpec = ""
		} else {
			go func() {
				if err := a.watcher.RenewAll(ctx); err != nil {
					a.logger.Warn("initial channel renewal failed", zap.Error(err))
				}
			}()
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()

		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           httpapi.NewServer(a.logger.Named("http"), a.watcher, a.hub),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe()
		}()
		fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", cfg.HTTP.Addr)

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		a.logger.Info("shutting down")
		// Hijacked websocket connections are not tracked by Shutdown.
		a.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.String("http-addr", "", "address to listen on (default :8080)")
	flags.String("http-callback-base-url", "", "public base URL Google sends webhook pings to")
	flags.String("schedule-renew", "", "cron spec for watch channel renewal")
	flags.String("schedule-sync", "", "cron spec for the sync sweep")
	flags.Int("workers", 0, "background workers")
	flags.Int("queue-size", 0, "background queue size")

	rootCmd.AddCommand(serveCmd)
}
