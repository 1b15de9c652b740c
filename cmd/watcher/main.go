// Command watcher polls Steam achievement snapshots and announces new unlocks
// to a Discord webhook.
//
// Usage:
//
//	achievement-watch run
//	achievement-watch run --ephemeral --user 76561197960287930
//	achievement-watch serve
//	achievement-watch ledger show --user 76561197960287930 --game 620
//	achievement-watch migrate
//
// Exit status is 2 for configuration errors and 1 for any other failure.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/achievement-watch/internal/config"
	"github.com/albapepper/achievement-watch/internal/db"
	"github.com/albapepper/achievement-watch/internal/eventlog"
	"github.com/albapepper/achievement-watch/internal/ledger"
	"github.com/albapepper/achievement-watch/internal/notifications"
	"github.com/albapepper/achievement-watch/internal/pipeline"
	"github.com/albapepper/achievement-watch/internal/provider/steam"
)

var logger = newLogger(slog.LevelInfo)

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           "achievement-watch",
		Short:         "Steam achievement announcer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(runCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(ledgerCmd())
	root.AddCommand(migrateCmd())

	if err := root.Execute(); err != nil {
		logger.Error("Command failed", "error", err)
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// run command
// --------------------------------------------------------------------------

func runCmd() *cobra.Command {
	var (
		ephemeral   bool
		users       []string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll every configured user once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ephemeral, users, func(ctx context.Context, a *app) error {
				if concurrency > 0 {
					a.cfg.WorkerConcurrency = concurrency
				}
				p := a.pipeline()

				report := p.RunBatch(ctx, a.cfg.UserIDs)
				for _, line := range report.Failures() {
					logger.Error("User failed", "detail", line)
				}
				logger.Info("Run finished", "summary", report.Summary())

				if report.Counts.Failed > 0 {
					return fmt.Errorf("%d of %d users failed", report.Counts.Failed, report.Counts.Total)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "Keep the ledger in memory (no DATABASE_URL needed)")
	cmd.Flags().StringSliceVar(&users, "user", nil, "Steam user id to poll (repeatable, overrides STEAM_USER_IDS)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Worker pool size (overrides WORKER_CONCURRENCY)")
	return cmd
}

// --------------------------------------------------------------------------
// ledger command
// --------------------------------------------------------------------------

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect reconciliation records",
	}
	cmd.AddCommand(ledgerShowCmd())
	return cmd
}

func ledgerShowCmd() *cobra.Command {
	var userID, gameID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored record for a user and game",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				l := ledger.New(ledger.NewPostgresStore(pool.Pool, cfg.MaxRecordBytes), cfg.MaxRecordBytes, logger)
				rec, err := l.Get(ctx, ledger.Key{UserID: userID, GameID: gameID})
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("no record for user %s game %s", userID, gameID)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Steam user id")
	cmd.Flags().StringVar(&gameID, "game", "", "Steam app id")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("game")
	return cmd
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := config.LoadDatabase()
			if err != nil {
				return err
			}
			logger = newLogger(cfg.LogLevel)

			start := time.Now()
			if err := db.Migrate(ctx, cfg.DatabaseURL); err != nil {
				return err
			}
			logger.Info("Migrations applied", "duration", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// Wiring
// --------------------------------------------------------------------------

// app holds the collaborators shared by run and serve.
type app struct {
	cfg    *config.Config
	pool   *db.Pool // nil when ephemeral
	ledger *ledger.Ledger
	events eventlog.Log // nil when disabled
	steam  *steam.Client
	sink   *notifications.WebhookSender
}

func (a *app) pipeline() *pipeline.Pipeline {
	deps := pipeline.Deps{
		Provider: a.steam,
		Sink:     a.sink,
		Ledger:   a.ledger,
		Events:   a.events,
		Logger:   logger,
	}
	return pipeline.New(deps, pipeline.Options{
		WindowSec:   a.cfg.RecentWindowSeconds(),
		Concurrency: a.cfg.WorkerConcurrency,
	})
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// withApp loads configuration, connects every backend and runs fn. Non-empty
// users replace STEAM_USER_IDS.
func withApp(ephemeral bool, users []string, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.LoadWithUsers(!ephemeral, users)
	if err != nil {
		return err
	}
	logger = newLogger(cfg.LogLevel)

	sink, err := notifications.NewWebhookSender(cfg.DiscordWebhookURL, cfg.DiscordRequestsPerMinute, logger)
	if err != nil {
		return &config.Error{Key: "DISCORD_WEBHOOK_URL", Reason: err.Error()}
	}

	a := &app{
		cfg:   cfg,
		steam: steam.NewClient(cfg.SteamBaseURL, cfg.SteamAPIKey, cfg.SteamRequestsPerMinute, logger),
		sink:  sink,
	}

	if ephemeral {
		a.ledger = ledger.New(ledger.NewMemoryStore(cfg.MaxRecordBytes), cfg.MaxRecordBytes, logger)
		if cfg.EventLogEnabled {
			a.events = eventlog.NewMemoryLog()
		}
		logger.Info("Running ephemeral; ledger is discarded on exit")
		return fn(ctx, a)
	}

	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	a.pool = pool
	a.ledger = ledger.New(ledger.NewPostgresStore(pool.Pool, cfg.MaxRecordBytes), cfg.MaxRecordBytes, logger)
	if cfg.EventLogEnabled {
		a.events = eventlog.NewPostgresLog(pool.Pool)
	}
	return fn(ctx, a)
}

// withDB connects to the database only.
func withDB(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.LoadDatabase()
	if err != nil {
		return err
	}
	logger = newLogger(cfg.LogLevel)

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}
