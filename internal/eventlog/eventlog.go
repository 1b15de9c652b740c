// Package eventlog keeps an append-once record of announced unlocks, used to
// build weekly leaderboards. Appends are conditioned on the row not existing,
// so a re-delivered notification never produces a second row.
package eventlog

import (
	"context"
	"fmt"
	"time"
)

// Event is one announced unlock.
type Event struct {
	UserID        string
	GameID        string
	GameTitle     string
	APIID         string
	DisplayName   string
	RarityPercent *float64
	UnlockedAt    time.Time
}

// WeekBucket returns the ISO-8601 week of t in UTC, e.g. "2026-W42".
func WeekBucket(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// LeaderboardEntry is one user's score for a week.
type LeaderboardEntry struct {
	UserID    string   `json:"user_id"`
	Unlocks   int      `json:"unlocks"`
	Games     int      `json:"games"`
	RarestPct *float64 `json:"rarest_percent"` // nil when no unlock had rarity data
}

// Log is the secondary event store.
//
// Append reports inserted=false without error when the row already exists.
type Log interface {
	Append(ctx context.Context, e Event) (inserted bool, err error)
	Leaderboard(ctx context.Context, week string, limit int) ([]LeaderboardEntry, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
