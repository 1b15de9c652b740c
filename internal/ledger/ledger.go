package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/albapepper/achievement-watch/internal/achievements"
)

// Store is a byte-limited key-value backend. Get reports found=false for a
// missing key. Put is an unconditional upsert.
type Store interface {
	Get(ctx context.Context, key Key) (body []byte, found bool, err error)
	Put(ctx context.Context, key Key, body []byte) error
}

// Ledger loads and saves reconciliation records through a Store.
type Ledger struct {
	store    Store
	maxBytes int
	logger   *slog.Logger
}

// New creates a Ledger. maxBytes bounds every saved record; zero disables
// the guardrail.
func New(store Store, maxBytes int, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, maxBytes: maxBytes, logger: logger}
}

// Loaded is the prior state of a pair.
type Loaded struct {
	Prior  achievements.Prior
	Record *Record // nil when the pair has never been saved
}

// Load returns the prior state for key. A missing record is not an error.
func (l *Ledger) Load(ctx context.Context, key Key) (Loaded, error) {
	rec, err := l.Get(ctx, key)
	if err != nil {
		return Loaded{}, err
	}
	if rec == nil {
		return Loaded{Prior: achievements.Prior{Announced: achievements.NewSet()}}, nil
	}
	return Loaded{
		Prior: achievements.Prior{
			Exists:            true,
			Announced:         achievements.NewSet(rec.AnnouncedAPIIDs...),
			CompletionLatched: rec.PlatinumAnnounced,
		},
		Record: rec,
	}, nil
}

// Get returns the stored record, or nil when absent.
func (l *Ledger) Get(ctx context.Context, key Key) (*Record, error) {
	body, found, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load ledger %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	rec, err := decodeRecord(body)
	if err != nil {
		return nil, fmt.Errorf("load ledger %s: %w", key, err)
	}
	return rec, nil
}

// Save applies the size guardrail to rec and upserts the result.
func (l *Ledger) Save(ctx context.Context, rec *Record) (GuardrailResult, error) {
	key := rec.Key()
	res, err := ApplyGuardrail(rec, l.maxBytes)
	if err != nil {
		return GuardrailResult{}, fmt.Errorf("save ledger %s: %w", key, err)
	}

	switch {
	case res.AnnouncedDropped:
		l.logger.Error("Ledger record over budget, announced set dropped; next run may re-announce",
			"key", key.String(), "bytes_before", res.BytesBefore,
			"bytes_after", res.ApproxBytes, "max_bytes", l.maxBytes, "dropped", res.Dropped)
	case res.Degraded:
		l.logger.Warn("Ledger record over budget, diagnostic fields dropped",
			"key", key.String(), "bytes_before", res.BytesBefore,
			"bytes_after", res.ApproxBytes, "max_bytes", l.maxBytes, "dropped", res.Dropped)
	}

	body, err := res.Record.Encode()
	if err != nil {
		return GuardrailResult{}, fmt.Errorf("save ledger %s: %w", key, err)
	}
	if err := l.store.Put(ctx, key, body); err != nil {
		return res, fmt.Errorf("save ledger %s: %w", key, err)
	}
	return res, nil
}
