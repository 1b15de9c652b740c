// Package provider defines the achievement-provider contract the pipeline
// consumes, plus the error types shared by provider implementations.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/albapepper/achievement-watch/internal/achievements"
)

// ErrMalformed marks a response body that could not be decoded or that is
// missing required fields.
var ErrMalformed = errors.New("malformed provider response")

// StatusError is a non-success HTTP status from the provider.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Recency tells whether a game is being played now or was played recently.
type Recency string

const (
	RecencyCurrent Recency = "current"
	RecencyRecent  Recency = "recent"
)

// Game is the game a user is currently or recently playing.
type Game struct {
	ID      string
	Title   string
	Recency Recency
}

// Schema is the optional per-game enrichment used for message text.
type Schema struct {
	CanonicalTitle string
	TotalCount     int
	DisplayNames   map[string]string
	Descriptions   map[string]string
	IconURLs       map[string]string
}

// DisplayName returns the human-readable name for apiID, falling back to the
// id itself.
func (s *Schema) DisplayName(apiID string) string {
	if s != nil {
		if n := s.DisplayNames[apiID]; n != "" {
			return n
		}
	}
	return apiID
}

// Rarity maps apiId to the global unlock percentage.
type Rarity map[string]float64

// Provider is the external achievement source.
//
// CurrentOrRecentGame returns nil, nil when the user has no current or recent
// game. AchievementSnapshot returns an error for any non-success response; an
// empty achievement list is passed through and rejected by the caller.
// RarityPercentiles returns nil, nil when the game has no rarity data.
type Provider interface {
	CurrentOrRecentGame(ctx context.Context, userID string) (*Game, error)
	AchievementSnapshot(ctx context.Context, userID, gameID string) (achievements.Snapshot, error)
	GameSchema(ctx context.Context, gameID string) (*Schema, error)
	RarityPercentiles(ctx context.Context, gameID string) (Rarity, error)
}
