package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps ledger records in the ledger_records table. The
// body-size cap is enforced here, before the write, so the table behaves like
// a byte-limited key-value store.
type PostgresStore struct {
	pool     *pgxpool.Pool
	maxBytes int
}

// NewPostgresStore wraps a pool. maxBytes <= 0 means unlimited.
func NewPostgresStore(pool *pgxpool.Pool, maxBytes int) *PostgresStore {
	return &PostgresStore{pool: pool, maxBytes: maxBytes}
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, "ledger_get", key.UserID, key.GameID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select ledger record: %w", err)
	}
	return body, true, nil
}

// Put implements Store as an unconditional upsert.
func (s *PostgresStore) Put(ctx context.Context, key Key, body []byte) error {
	if s.maxBytes > 0 && len(body) > s.maxBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrRecordTooLarge, len(body), s.maxBytes)
	}
	if _, err := s.pool.Exec(ctx, "ledger_put", key.UserID, key.GameID, string(body), len(body)); err != nil {
		return fmt.Errorf("upsert ledger record: %w", err)
	}
	return nil
}
