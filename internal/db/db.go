// Package db provides a pgxpool-based connection pool with embedded schema
// migrations, prepared statement registration and health checking.
package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/albapepper/achievement-watch/internal/config"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool. When cfg.DBAutoMigrate is
// set the schema is migrated first, because AfterConnect prepares statements
// against the tables.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	if cfg.DBAutoMigrate {
		if err := Migrate(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Migrate applies every pending up migration. An already current schema is
// not an error.
func Migrate(ctx context.Context, databaseURL string) error {
	connCfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database URL: %w", err)
	}

	sqlDB := stdlib.OpenDB(*connCfg)
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	driver, err := migratepgx.WithInstance(sqlDB, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// registerPreparedStatements registers all statements the ledger, event log
// and API layers use.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Ledger
		"ledger_get": "SELECT body FROM " + config.LedgerTable + " WHERE user_id = $1 AND game_id = $2",
		"ledger_put": "INSERT INTO " + config.LedgerTable + " (user_id, game_id, body, body_bytes, updated_at) " +
			"VALUES ($1, $2, $3::jsonb, $4, NOW()) " +
			"ON CONFLICT (user_id, game_id) DO UPDATE SET body = EXCLUDED.body, body_bytes = EXCLUDED.body_bytes, updated_at = EXCLUDED.updated_at",

		// Event log
		"event_append": "INSERT INTO " + config.EventsTable + " (week_bucket, user_id, unlocked_at, game_id, api_id, game_title, display_name, rarity_percent) " +
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT DO NOTHING",
		"event_leaderboard": "SELECT user_id, COUNT(*)::int, COUNT(DISTINCT game_id)::int, MIN(rarity_percent) " +
			"FROM " + config.EventsTable + " WHERE week_bucket = $1 " +
			"GROUP BY user_id ORDER BY 2 DESC, user_id LIMIT $2",
		"event_purge": "DELETE FROM " + config.EventsTable + " WHERE unlocked_at < $1",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
