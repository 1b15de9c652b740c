package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store. It is used by tests and by ephemeral
// runs that must not touch a database.
type MemoryStore struct {
	mu       sync.RWMutex
	rows     map[Key][]byte
	maxBytes int
}

// NewMemoryStore creates an empty store. maxBytes <= 0 means unlimited.
func NewMemoryStore(maxBytes int) *MemoryStore {
	return &MemoryStore{rows: make(map[Key][]byte), maxBytes: maxBytes}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key Key) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.rows[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, key Key, body []byte) error {
	if m.maxBytes > 0 && len(body) > m.maxBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrRecordTooLarge, len(body), m.maxBytes)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[key] = append([]byte(nil), body...)
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}
