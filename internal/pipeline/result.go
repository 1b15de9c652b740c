package pipeline

import (
	"fmt"
	"time"

	"github.com/albapepper/achievement-watch/internal/batch"
)

// Status values for UserResult.
const (
	StatusNoGame    = "no_game"
	StatusBootstrap = "bootstrap"
	StatusAnnounced = "announced"
	StatusUnchanged = "unchanged"
)

// UserResult is the outcome of one successful unit.
type UserResult struct {
	UserID           string `json:"user_id"`
	GameID           string `json:"game_id,omitempty"`
	GameTitle        string `json:"game_title,omitempty"`
	Status           string `json:"status"`
	Bootstrap        bool   `json:"bootstrap,omitempty"`
	Announced        int    `json:"announced"`
	Platinum         bool   `json:"platinum,omitempty"`
	Progress         string `json:"progress,omitempty"`
	Degraded         bool   `json:"degraded,omitempty"`
	AnnouncedDropped bool   `json:"announced_dropped,omitempty"`
}

// BatchReport tracks a whole batch run.
type BatchReport struct {
	RunID     string
	StartedAt time.Time
	Elapsed   time.Duration
	Results   []batch.Result[string, UserResult]
	Counts    batch.Summary
}

// Announced returns the number of notifications sent across the batch,
// excluding platinum messages.
func (r *BatchReport) Announced() int {
	n := 0
	for _, res := range r.Results {
		n += res.Value.Announced
	}
	return n
}

// Failures returns "user: error" lines for every failed unit.
func (r *BatchReport) Failures() []string {
	var out []string
	for _, res := range r.Results {
		if !res.OK {
			out = append(out, fmt.Sprintf("%s: %v", res.Unit, res.Err))
		}
	}
	return out
}

// Summary returns a human-readable summary of the batch.
func (r *BatchReport) Summary() string {
	platinum, degraded := 0, 0
	for _, res := range r.Results {
		if res.Value.Platinum {
			platinum++
		}
		if res.Value.Degraded {
			degraded++
		}
	}
	return fmt.Sprintf(
		"run=%s users=%d ok=%d failed=%d announced=%d platinum=%d degraded=%d elapsed=%s",
		r.RunID, r.Counts.Total, r.Counts.Ok, r.Counts.Failed,
		r.Announced(), platinum, degraded, r.Elapsed.Round(time.Millisecond),
	)
}
