// Package ledger persists per-(user, game) reconciliation state: the set of
// achievements already delivered, the platinum latch and snapshot-derived
// progress. Saves pass through a size guardrail so that a record never
// exceeds the backing store's byte limit.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrRecordTooLarge is returned by a store when a serialized record exceeds
// its byte limit.
var ErrRecordTooLarge = errors.New("ledger record exceeds size limit")

// Key identifies one ledger row.
type Key struct {
	UserID string
	GameID string
}

// String renders the key the way logs and the memory store address it.
func (k Key) String() string {
	return fmt.Sprintf("USER#%s#GAME#%s", k.UserID, k.GameID)
}

// Record is the durable ledger row. Field order and JSON names are part of
// the persisted format.
type Record struct {
	UserID    string `json:"userId"`
	GameID    string `json:"gameId"`
	GameTitle string `json:"gameTitle"`

	AnnouncedAPIIDs   []string `json:"announcedApiIds,omitempty"`
	PlatinumAnnounced bool     `json:"platinumAnnounced"`

	UnlockedCount int    `json:"unlockedCount"`
	TotalCount    int    `json:"totalCount"`
	ProgressText  string `json:"progressText,omitempty"`

	UnlockedAPIIDs            []string `json:"unlockedApiIds,omitempty"`
	LockedAPIIDs              []string `json:"lockedApiIds,omitempty"`
	UnannouncedUnlockedAPIIDs []string `json:"unannouncedUnlockedApiIds,omitempty"`

	UpdatedAtSec int64 `json:"updatedAtSec"`

	Truncated                 bool `json:"truncated,omitempty"`
	AnnouncedDropped          bool `json:"announcedDropped,omitempty"`
	ApproxBytesBeforeTruncate int  `json:"approxBytesBeforeTruncate,omitempty"`
}

// Key returns the record's identity.
func (r *Record) Key() Key {
	return Key{UserID: r.UserID, GameID: r.GameID}
}

// Encode serializes the record in its persisted form.
func (r *Record) Encode() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode ledger record: %w", err)
	}
	return b, nil
}

// Size returns the UTF-8 byte length of the encoded record, the same rule
// stores enforce.
func (r *Record) Size() (int, error) {
	b, err := r.Encode()
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

func decodeRecord(b []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode ledger record: %w", err)
	}
	return &r, nil
}
