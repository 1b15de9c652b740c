package eventlog

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memKey struct {
	week   string
	userID string
	at     int64
	gameID string
	apiID  string
}

// MemoryLog is an in-process Log for tests and ephemeral runs.
type MemoryLog struct {
	mu     sync.Mutex
	events map[memKey]Event
}

// NewMemoryLog creates an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{events: make(map[memKey]Event)}
}

var _ Log = (*MemoryLog)(nil)

// Append implements Log.
func (m *MemoryLog) Append(_ context.Context, e Event) (bool, error) {
	k := memKey{WeekBucket(e.UnlockedAt), e.UserID, e.UnlockedAt.Unix(), e.GameID, e.APIID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.events[k]; exists {
		return false, nil
	}
	m.events[k] = e
	return true, nil
}

// Leaderboard implements Log.
func (m *MemoryLog) Leaderboard(_ context.Context, week string, limit int) ([]LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byUser := map[string]*LeaderboardEntry{}
	games := map[string]map[string]struct{}{}
	for k, e := range m.events {
		if k.week != week {
			continue
		}
		entry, ok := byUser[k.userID]
		if !ok {
			entry = &LeaderboardEntry{UserID: k.userID}
			byUser[k.userID] = entry
			games[k.userID] = map[string]struct{}{}
		}
		entry.Unlocks++
		games[k.userID][k.gameID] = struct{}{}
		if e.RarityPercent != nil && (entry.RarestPct == nil || *e.RarityPercent < *entry.RarestPct) {
			pct := *e.RarityPercent
			entry.RarestPct = &pct
		}
	}

	out := make([]LeaderboardEntry, 0, len(byUser))
	for id, e := range byUser {
		e.Games = len(games[id])
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Unlocks != out[j].Unlocks {
			return out[i].Unlocks > out[j].Unlocks
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PurgeOlderThan implements Log.
func (m *MemoryLog) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.events {
		if e.UnlockedAt.Before(cutoff) {
			delete(m.events, k)
			n++
		}
	}
	return n, nil
}
