// Package achievements holds the pure reconciliation logic: it turns a full
// provider snapshot plus the persisted history for a (user, game) pair into
// the set of achievements worth announcing.
//
// Nothing in this package performs I/O. The pipeline package owns fetching,
// notifying and persisting.
package achievements

import "sort"

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Achievement is one entry of a provider snapshot.
type Achievement struct {
	APIID         string
	Unlocked      bool
	UnlockedAtSec int64 // 0 when the provider reports no timestamp
}

// Snapshot is the full achievement state of a game for one user at poll time.
type Snapshot struct {
	GameID       string
	GameTitle    string
	Achievements []Achievement
	TotalCount   int
	TotalKnown   bool
}

// Prior is the part of the persisted ledger the differ needs.
type Prior struct {
	Exists            bool
	Announced         Set
	CompletionLatched bool
}

// --------------------------------------------------------------------------
// Set
// --------------------------------------------------------------------------

// Set is an unordered collection of achievement API ids.
type Set map[string]struct{}

// NewSet builds a set from ids.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set. Safe on a nil set.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id.
func (s Set) Add(id string) {
	s[id] = struct{}{}
}

// Clone returns an independent copy. A nil set clones to an empty set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Sorted returns the ids in ascending order, for stable persistence.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
