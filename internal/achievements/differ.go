package achievements

import "sort"

// DiffResult is the outcome of reconciling one snapshot against history.
type DiffResult struct {
	// ToAnnounce holds newly observed recent unlocks, newest first.
	ToAnnounce []Achievement
	// Announced is the updated announced set to persist.
	Announced Set
	// Bootstrap is true when the pair had no prior ledger record.
	Bootstrap  bool
	IsComplete bool

	UnlockedCount int
	UnlockedIDs   []string
	LockedIDs     []string
	// UnannouncedIDs lists unlocked ids that are still absent from Announced
	// (old or timestamp-less unlocks seen after bootstrap).
	UnannouncedIDs []string
}

// Diff reconciles snap against prior. windowSec and nowSec are unix seconds.
// An unlock is recent when its timestamp is at or after nowSec-windowSec;
// unlocks without a timestamp are never recent.
//
// On bootstrap every currently unlocked id is recorded as announced and
// nothing is returned for announcement, so tracking a new pair never floods
// the sink with history.
func Diff(snap Snapshot, prior Prior, windowSec, nowSec int64) DiffResult {
	unlocked, locked := partition(snap.Achievements)
	cutoff := nowSec - windowSec

	res := DiffResult{
		Bootstrap:     !prior.Exists,
		UnlockedCount: len(unlocked),
		UnlockedIDs:   make([]string, 0, len(unlocked)),
		LockedIDs:     make([]string, 0, len(locked)),
	}
	for _, a := range unlocked {
		res.UnlockedIDs = append(res.UnlockedIDs, a.APIID)
	}
	for _, a := range locked {
		res.LockedIDs = append(res.LockedIDs, a.APIID)
	}

	if res.Bootstrap {
		res.Announced = NewSet(res.UnlockedIDs...)
	} else {
		res.Announced = prior.Announced.Clone()
		for _, a := range unlocked {
			if a.UnlockedAtSec <= 0 || a.UnlockedAtSec < cutoff {
				continue
			}
			if prior.Announced.Has(a.APIID) {
				continue
			}
			res.ToAnnounce = append(res.ToAnnounce, a)
			res.Announced.Add(a.APIID)
		}
	}

	for _, id := range res.UnlockedIDs {
		if !res.Announced.Has(id) {
			res.UnannouncedIDs = append(res.UnannouncedIDs, id)
		}
	}

	res.IsComplete = snap.TotalKnown && snap.TotalCount > 0 && res.UnlockedCount == snap.TotalCount
	return res
}

// partition splits achievements into unlocked (newest first, ties by id) and
// locked (input order). Repeated ids keep their first occurrence.
func partition(all []Achievement) (unlocked, locked []Achievement) {
	seen := make(map[string]struct{}, len(all))
	for _, a := range all {
		if _, dup := seen[a.APIID]; dup {
			continue
		}
		seen[a.APIID] = struct{}{}
		if a.Unlocked {
			unlocked = append(unlocked, a)
		} else {
			locked = append(locked, a)
		}
	}
	sort.SliceStable(unlocked, func(i, j int) bool {
		if unlocked[i].UnlockedAtSec != unlocked[j].UnlockedAtSec {
			return unlocked[i].UnlockedAtSec > unlocked[j].UnlockedAtSec
		}
		return unlocked[i].APIID < unlocked[j].APIID
	})
	return unlocked, locked
}
