// Package pipeline reconciles one user's achievement snapshot against the
// ledger and announces what is new.
//
// Flow per user: resolve game → fetch snapshot → load prior → diff → send
// notifications (with schema/rarity enrichment) → completion gate → save.
// Any failure before the save leaves the ledger untouched, so the next run
// re-detects the same unlocks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/albapepper/achievement-watch/internal/achievements"
	"github.com/albapepper/achievement-watch/internal/batch"
	"github.com/albapepper/achievement-watch/internal/cache"
	"github.com/albapepper/achievement-watch/internal/eventlog"
	"github.com/albapepper/achievement-watch/internal/ledger"
	"github.com/albapepper/achievement-watch/internal/notifications"
	"github.com/albapepper/achievement-watch/internal/provider"
)

// ErrEmptySnapshot is returned when the provider reports a game with no
// achievements. It is treated as a fetch failure, never as a zero state.
var ErrEmptySnapshot = errors.New("empty achievement snapshot")

// Deps are the injected collaborators. Events may be nil.
type Deps struct {
	Provider provider.Provider
	Sink     notifications.Sink
	Ledger   *ledger.Ledger
	Events   eventlog.Log
	Logger   *slog.Logger
	Now      func() time.Time
}

// Options tune a pipeline.
type Options struct {
	WindowSec   int64
	Concurrency int
}

// Pipeline runs reconciliation for single users and for batches.
type Pipeline struct {
	deps Deps
	opts Options
	last atomic.Pointer[BatchReport]
}

// New creates a pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Pipeline{deps: deps, opts: opts}
}

// lookups are the per-batch enrichment caches.
type lookups struct {
	schemas *cache.Cache[*provider.Schema]
	rarity  *cache.Cache[provider.Rarity]
}

func (p *Pipeline) newLookups() *lookups {
	return &lookups{
		schemas: cache.New[*provider.Schema](func(ctx context.Context, gameID string) (*provider.Schema, error) {
			return p.deps.Provider.GameSchema(ctx, gameID)
		}),
		rarity: cache.New[provider.Rarity](func(ctx context.Context, gameID string) (provider.Rarity, error) {
			return p.deps.Provider.RarityPercentiles(ctx, gameID)
		}),
	}
}

// RunUser reconciles one user with fresh lookup caches.
func (p *Pipeline) RunUser(ctx context.Context, userID string) (UserResult, error) {
	return p.runUser(ctx, userID, p.newLookups(), p.deps.Logger)
}

func (p *Pipeline) runUser(ctx context.Context, userID string, lk *lookups, logger *slog.Logger) (UserResult, error) {
	res := UserResult{UserID: userID}

	// ------------------------------------------------------------------
	// 1. Resolve game
	// ------------------------------------------------------------------
	game, err := p.deps.Provider.CurrentOrRecentGame(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("resolve game for %s: %w", userID, err)
	}
	if game == nil {
		res.Status = StatusNoGame
		logger.Debug("No current or recent game", "user_id", userID)
		return res, nil
	}
	res.GameID = game.ID
	res.GameTitle = game.Title

	// ------------------------------------------------------------------
	// 2. Snapshot
	// ------------------------------------------------------------------
	snap, err := p.deps.Provider.AchievementSnapshot(ctx, userID, game.ID)
	if err != nil {
		return res, fmt.Errorf("snapshot %s/%s: %w", userID, game.ID, err)
	}
	if len(snap.Achievements) == 0 {
		return res, fmt.Errorf("snapshot %s/%s: %w", userID, game.ID, ErrEmptySnapshot)
	}
	if snap.GameTitle != "" {
		res.GameTitle = snap.GameTitle
	}

	// ------------------------------------------------------------------
	// 3-4. Prior state and diff
	// ------------------------------------------------------------------
	key := ledger.Key{UserID: userID, GameID: game.ID}
	loaded, err := p.deps.Ledger.Load(ctx, key)
	if err != nil {
		return res, err
	}

	now := p.deps.Now()
	diff := achievements.Diff(snap, loaded.Prior, p.opts.WindowSec, now.Unix())
	res.Bootstrap = diff.Bootstrap

	// ------------------------------------------------------------------
	// 5-6. Announce
	// ------------------------------------------------------------------
	var schema *provider.Schema
	var rarity provider.Rarity
	if len(diff.ToAnnounce) > 0 {
		schema, rarity = p.enrich(ctx, lk, game.ID, logger)
		if res.GameTitle == "" && schema != nil {
			res.GameTitle = schema.CanonicalTitle
		}
	}

	total, totalKnown := snap.TotalCount, snap.TotalKnown
	if !totalKnown && schema != nil && schema.TotalCount > 0 {
		total, totalKnown = schema.TotalCount, true
	}

	// A sparse upstream response must not erase what an earlier poll learned.
	if prev := loaded.Record; prev != nil {
		if res.GameTitle == "" {
			res.GameTitle = prev.GameTitle
		}
		if !totalKnown && prev.TotalCount > 0 {
			total, totalKnown = prev.TotalCount, true
		}
	}

	for _, a := range diff.ToAnnounce {
		msg := notifications.AchievementMessage{
			UserID:        userID,
			GameID:        game.ID,
			GameTitle:     res.GameTitle,
			APIID:         a.APIID,
			DisplayName:   schema.DisplayName(a.APIID),
			UnlockedAt:    time.Unix(a.UnlockedAtSec, 0),
			UnlockedCount: diff.UnlockedCount,
			TotalCount:    total,
			TotalKnown:    totalKnown,
		}
		if schema != nil {
			msg.Description = schema.Descriptions[a.APIID]
			msg.IconURL = schema.IconURLs[a.APIID]
		}
		if pct, ok := rarity[a.APIID]; ok {
			msg.RarityPercent = &pct
		}

		if err := p.deps.Sink.Send(ctx, notifications.BuildAchievementPayload(msg)); err != nil {
			return res, fmt.Errorf("announce %s on %s: %w", a.APIID, key, err)
		}
		res.Announced++
		logger.Info("Announced achievement", "user_id", userID, "game_id", game.ID, "api_id", a.APIID)

		p.appendEvent(ctx, eventlog.Event{
			UserID:        userID,
			GameID:        game.ID,
			GameTitle:     res.GameTitle,
			APIID:         a.APIID,
			DisplayName:   msg.DisplayName,
			RarityPercent: msg.RarityPercent,
			UnlockedAt:    msg.UnlockedAt,
		}, logger)
	}

	// ------------------------------------------------------------------
	// 7. Completion gate
	// ------------------------------------------------------------------
	decision := achievements.EvaluateCompletion(diff.IsComplete, loaded.Prior.CompletionLatched, len(diff.ToAnnounce))
	if decision.ShouldCelebrate {
		last := diff.ToAnnounce[0]
		pm := notifications.PlatinumMessage{
			UserID:     userID,
			GameID:     game.ID,
			GameTitle:  res.GameTitle,
			TotalCount: total,
			LastAPIID:  last.APIID,
			LastName:   schema.DisplayName(last.APIID),
			At:         now,
		}
		if err := p.deps.Sink.Send(ctx, notifications.BuildPlatinumPayload(pm)); err != nil {
			return res, fmt.Errorf("announce platinum on %s: %w", key, err)
		}
		res.Platinum = true
		logger.Info("Announced platinum", "user_id", userID, "game_id", game.ID)
	}

	// ------------------------------------------------------------------
	// 8. Persist
	// ------------------------------------------------------------------
	rec := &ledger.Record{
		UserID:                    userID,
		GameID:                    game.ID,
		GameTitle:                 res.GameTitle,
		AnnouncedAPIIDs:           diff.Announced.Sorted(),
		PlatinumAnnounced:         decision.Latched,
		UnlockedCount:             diff.UnlockedCount,
		TotalCount:                total,
		ProgressText:              notifications.ProgressText(diff.UnlockedCount, total, totalKnown),
		UnlockedAPIIDs:            diff.UnlockedIDs,
		LockedAPIIDs:              diff.LockedIDs,
		UnannouncedUnlockedAPIIDs: diff.UnannouncedIDs,
		UpdatedAtSec:              now.Unix(),
	}
	saved, err := p.deps.Ledger.Save(ctx, rec)
	if err != nil {
		return res, err
	}
	res.Degraded = saved.Degraded
	res.AnnouncedDropped = saved.AnnouncedDropped
	res.Progress = rec.ProgressText

	switch {
	case diff.Bootstrap:
		res.Status = StatusBootstrap
	case res.Announced > 0:
		res.Status = StatusAnnounced
	default:
		res.Status = StatusUnchanged
	}
	return res, nil
}

// enrich fetches schema and rarity through the batch caches. Both are
// optional; failures are logged and the message falls back to raw ids.
func (p *Pipeline) enrich(ctx context.Context, lk *lookups, gameID string, logger *slog.Logger) (*provider.Schema, provider.Rarity) {
	schema, err := lk.schemas.Get(ctx, gameID)
	if err != nil {
		logger.Warn("Schema lookup failed, using raw ids", "game_id", gameID, "error", err)
		schema = nil
	}
	rarity, err := lk.rarity.Get(ctx, gameID)
	if err != nil {
		logger.Warn("Rarity lookup failed", "game_id", gameID, "error", err)
		rarity = nil
	}
	return schema, rarity
}

func (p *Pipeline) appendEvent(ctx context.Context, e eventlog.Event, logger *slog.Logger) {
	if p.deps.Events == nil {
		return
	}
	inserted, err := p.deps.Events.Append(ctx, e)
	if err != nil {
		logger.Warn("Event log append failed", "user_id", e.UserID, "game_id", e.GameID, "api_id", e.APIID, "error", err)
		return
	}
	if !inserted {
		logger.Debug("Event already logged", "user_id", e.UserID, "game_id", e.GameID, "api_id", e.APIID)
	}
}

// RunBatch reconciles every distinct user on the worker pool and records the
// report as the last run.
func (p *Pipeline) RunBatch(ctx context.Context, userIDs []string) *BatchReport {
	report := &BatchReport{
		RunID:     uuid.NewString(),
		StartedAt: p.deps.Now(),
	}
	logger := p.deps.Logger.With("run_id", report.RunID)
	lk := p.newLookups()

	users := distinct(userIDs)
	logger.Info("Batch started", "users", len(users), "concurrency", p.opts.Concurrency)

	start := time.Now()
	report.Results = batch.Run(ctx, users, func(ctx context.Context, userID string) (UserResult, error) {
		return p.runUser(ctx, userID, lk, logger)
	}, p.opts.Concurrency)
	report.Elapsed = time.Since(start)
	report.Counts = batch.Summarize(report.Results)

	for _, r := range report.Results {
		if !r.OK {
			logger.Error("User failed", "user_id", r.Unit, "error", r.Err)
		}
	}
	logger.Info("Batch finished", "summary", report.Summary())
	logger.Debug("Lookup caches", "schemas", lk.schemas.Stats(), "rarity", lk.rarity.Stats())

	p.last.Store(report)
	return report
}

// LastReport returns the most recent batch report, or nil before the first.
func (p *Pipeline) LastReport() *BatchReport {
	return p.last.Load()
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
