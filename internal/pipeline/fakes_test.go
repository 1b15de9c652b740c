package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/albapepper/achievement-watch/internal/achievements"
	"github.com/albapepper/achievement-watch/internal/eventlog"
	"github.com/albapepper/achievement-watch/internal/ledger"
	"github.com/albapepper/achievement-watch/internal/notifications"
	"github.com/albapepper/achievement-watch/internal/provider"
)

const testNow = int64(1_700_000_000)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedNow() time.Time { return time.Unix(testNow, 0) }

// fakeProvider serves one game per user from in-memory snapshots.
type fakeProvider struct {
	mu        sync.Mutex
	games     map[string]*provider.Game
	snaps     map[string]achievements.Snapshot
	gameErr   map[string]error
	schema    *provider.Schema
	schemaErr error
	rarity    provider.Rarity
	rarityErr error
	panicFor  string

	schemaCalls int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		games:   make(map[string]*provider.Game),
		snaps:   make(map[string]achievements.Snapshot),
		gameErr: make(map[string]error),
	}
}

func (f *fakeProvider) setSnapshot(userID, gameID string, total int, items ...achievements.Achievement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games[userID] = &provider.Game{ID: gameID, Title: "Game " + gameID, Recency: provider.RecencyCurrent}
	f.snaps[userID] = achievements.Snapshot{
		GameID:       gameID,
		Achievements: items,
		TotalCount:   total,
		TotalKnown:   total > 0,
	}
}

func (f *fakeProvider) CurrentOrRecentGame(_ context.Context, userID string) (*provider.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if userID == f.panicFor {
		panic("provider exploded")
	}
	if err := f.gameErr[userID]; err != nil {
		return nil, err
	}
	return f.games[userID], nil
}

func (f *fakeProvider) AchievementSnapshot(_ context.Context, userID, _ string) (achievements.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snaps[userID], nil
}

func (f *fakeProvider) GameSchema(_ context.Context, _ string) (*provider.Schema, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemaCalls++
	return f.schema, f.schemaErr
}

func (f *fakeProvider) RarityPercentiles(_ context.Context, _ string) (provider.Rarity, error) {
	return f.rarity, f.rarityErr
}

// fakeSink records payloads and can be told to fail.
type fakeSink struct {
	mu      sync.Mutex
	sent    []notifications.Payload
	failErr error
}

func (s *fakeSink) Send(_ context.Context, p notifications.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.sent = append(s.sent, p)
	return nil
}

func (s *fakeSink) titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, p := range s.sent {
		out = append(out, p.Embeds[0].Title)
	}
	return out
}

func (s *fakeSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}

type failingLog struct{}

func (failingLog) Append(context.Context, eventlog.Event) (bool, error) {
	return false, errors.New("events down")
}
func (failingLog) Leaderboard(context.Context, string, int) ([]eventlog.LeaderboardEntry, error) {
	return nil, nil
}
func (failingLog) PurgeOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

type harness struct {
	prov   *fakeProvider
	sink   *fakeSink
	store  *ledger.MemoryStore
	ledger *ledger.Ledger
	events *eventlog.MemoryLog
	pipe   *Pipeline
}

func newHarness() *harness {
	h := &harness{
		prov:   newFakeProvider(),
		sink:   &fakeSink{},
		store:  ledger.NewMemoryStore(0),
		events: eventlog.NewMemoryLog(),
	}
	h.ledger = ledger.New(h.store, 0, discardLogger())
	h.pipe = New(Deps{
		Provider: h.prov,
		Sink:     h.sink,
		Ledger:   h.ledger,
		Events:   h.events,
		Logger:   discardLogger(),
		Now:      fixedNow,
	}, Options{WindowSec: 3600, Concurrency: 4})
	return h
}

func unlocked(id string, ago int64) achievements.Achievement {
	return achievements.Achievement{APIID: id, Unlocked: true, UnlockedAtSec: testNow - ago}
}

func locked(id string) achievements.Achievement {
	return achievements.Achievement{APIID: id}
}

func unlockedNoTime(id string) achievements.Achievement {
	return achievements.Achievement{APIID: id, Unlocked: true}
}
