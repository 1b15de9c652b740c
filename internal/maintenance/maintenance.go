// Package maintenance runs the serve-mode background tasks as Go tickers:
// the periodic poll batch and event-log retention.
//
// Every poll, whether ticker-driven or requested on demand, runs under one
// lock, so a user is never reconciled by two batches at once.
package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/albapepper/achievement-watch/internal/eventlog"
	"github.com/albapepper/achievement-watch/internal/pipeline"
)

// Config controls task intervals. Zero duration disables a task.
type Config struct {
	PollInterval   time.Duration // Full batch over every configured user
	PurgeInterval  time.Duration // Event-log retention sweep
	EventRetention time.Duration // Events unlocked before now-EventRetention are purged
	PollOnStart    bool
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:   5 * time.Minute,
		PurgeInterval:  6 * time.Hour,
		EventRetention: 12 * 7 * 24 * time.Hour,
		PollOnStart:    true,
	}
}

// BatchRunner is the part of the pipeline the scheduler drives.
type BatchRunner interface {
	RunBatch(ctx context.Context, userIDs []string) *pipeline.BatchReport
}

// Scheduler owns the run lock and the tickers.
type Scheduler struct {
	runner BatchRunner
	users  []string
	events eventlog.Log // nil disables retention
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewScheduler creates a scheduler polling users through runner.
func NewScheduler(runner BatchRunner, users []string, events eventlog.Log, cfg Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		users:  users,
		events: events,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// PollAll runs one batch over every configured user.
func (s *Scheduler) PollAll(ctx context.Context) *pipeline.BatchReport {
	return s.poll(ctx, s.users)
}

// PollUser runs a single-user batch, waiting for any batch in flight.
func (s *Scheduler) PollUser(ctx context.Context, userID string) *pipeline.BatchReport {
	return s.poll(ctx, []string{userID})
}

func (s *Scheduler) poll(ctx context.Context, users []string) *pipeline.BatchReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return nil
	}
	return s.runner.RunBatch(ctx, users)
}

// Start launches all configured tickers. Blocks until ctx is cancelled.
// Intended to be called with `go`.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Maintenance tickers started",
		"poll", s.cfg.PollInterval,
		"purge", s.cfg.PurgeInterval,
		"users", len(s.users))

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if s.cfg.PollInterval > 0 {
		if s.cfg.PollOnStart {
			go s.PollAll(ctx)
		}
		t := time.NewTicker(s.cfg.PollInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { s.PollAll(ctx) })
	}

	if s.cfg.PurgeInterval > 0 && s.events != nil && s.cfg.EventRetention > 0 {
		t := time.NewTicker(s.cfg.PurgeInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { s.Purge(ctx) })
	}

	<-ctx.Done()
	s.logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// Purge removes events older than the retention window.
func (s *Scheduler) Purge(ctx context.Context) {
	if s.events == nil {
		return
	}
	cutoff := s.now().Add(-s.cfg.EventRetention)
	n, err := s.events.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Warn("Purge: failed to delete old events", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("Purge: deleted old events", "count", n, "cutoff", cutoff)
	}
}
