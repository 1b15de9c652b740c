package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/albapepper/achievement-watch/internal/api"
	"github.com/albapepper/achievement-watch/internal/api/handler"
	"github.com/albapepper/achievement-watch/internal/listener"
	"github.com/albapepper/achievement-watch/internal/maintenance"
)

// --------------------------------------------------------------------------
// serve command
// --------------------------------------------------------------------------

func serveCmd() *cobra.Command {
	var ephemeral bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll on a schedule and serve the status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ephemeral, nil, serve)
		},
	}
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "Keep the ledger in memory (disables LISTEN/NOTIFY)")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	p := a.pipeline()

	// Poll scheduler and event-log retention
	mcfg := maintenance.DefaultConfig()
	mcfg.PollInterval = cfg.PollInterval
	mcfg.EventRetention = time.Duration(cfg.EventRetentionWeeks) * 7 * 24 * time.Hour
	sched := maintenance.NewScheduler(p, cfg.UserIDs, a.events, mcfg, logger)
	go sched.Start(ctx)

	deps := handler.Deps{
		Ledger: a.ledger,
		Events: a.events,
		Runs:   p,
	}

	// LISTEN/NOTIFY on-demand polls need a real database
	if a.pool != nil {
		deps.DB = a.pool
		go listener.Start(ctx, cfg.DatabaseURL, sched, logger)
	} else {
		logger.Info("Poll listener disabled (ephemeral)")
	}

	router := api.NewRouter(deps, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting status API",
			"addr", addr,
			"users", len(cfg.UserIDs),
			"poll_interval", cfg.PollInterval,
			"docs", fmt.Sprintf("http://localhost:%d/docs/index.html", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
	return nil
}
