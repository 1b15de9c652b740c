package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLog stores events in achievement_events.
type PostgresLog struct {
	pool *pgxpool.Pool
}

// NewPostgresLog wraps a pool.
func NewPostgresLog(pool *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{pool: pool}
}

var _ Log = (*PostgresLog)(nil)

// Append inserts the event unless its key already exists.
func (l *PostgresLog) Append(ctx context.Context, e Event) (bool, error) {
	tag, err := l.pool.Exec(ctx, "event_append",
		WeekBucket(e.UnlockedAt), e.UserID, e.UnlockedAt.UTC(), e.GameID, e.APIID,
		e.GameTitle, e.DisplayName, e.RarityPercent,
	)
	if err != nil {
		return false, fmt.Errorf("append event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Leaderboard ranks users by unlocks in the given week bucket.
func (l *PostgresLog) Leaderboard(ctx context.Context, week string, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := l.pool.Query(ctx, "event_leaderboard", week, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var out []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Unlocks, &e.Games, &e.RarestPct); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes events unlocked before cutoff.
func (l *PostgresLog) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := l.pool.Exec(ctx, "event_purge", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	return tag.RowsAffected(), nil
}
