package steam

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/albapepper/achievement-watch/internal/achievements"
	"github.com/albapepper/achievement-watch/internal/provider"
)

var _ provider.Provider = (*Client)(nil)

// --------------------------------------------------------------------------
// Response shapes
// --------------------------------------------------------------------------

type playerSummariesResponse struct {
	Response struct {
		Players []struct {
			SteamID       string `json:"steamid"`
			GameID        string `json:"gameid"`
			GameExtraInfo string `json:"gameextrainfo"`
		} `json:"players"`
	} `json:"response"`
}

type recentGamesResponse struct {
	Response struct {
		TotalCount int `json:"total_count"`
		Games      []struct {
			AppID int64  `json:"appid"`
			Name  string `json:"name"`
		} `json:"games"`
	} `json:"response"`
}

type playerAchievementsResponse struct {
	PlayerStats struct {
		SteamID      string `json:"steamID"`
		GameName     string `json:"gameName"`
		Success      bool   `json:"success"`
		Error        string `json:"error"`
		Achievements []struct {
			APIName    string `json:"apiname"`
			Achieved   int    `json:"achieved"`
			UnlockTime int64  `json:"unlocktime"`
		} `json:"achievements"`
	} `json:"playerstats"`
}

type schemaResponse struct {
	Game struct {
		GameName           string `json:"gameName"`
		AvailableGameStats struct {
			Achievements []struct {
				Name        string `json:"name"`
				DisplayName string `json:"displayName"`
				Description string `json:"description"`
				Icon        string `json:"icon"`
			} `json:"achievements"`
		} `json:"availableGameStats"`
	} `json:"game"`
}

type globalPercentagesResponse struct {
	AchievementPercentages struct {
		Achievements []struct {
			Name    string      `json:"name"`
			Percent interface{} `json:"percent"`
		} `json:"achievements"`
	} `json:"achievementpercentages"`
}

// --------------------------------------------------------------------------
// provider.Provider
// --------------------------------------------------------------------------

// CurrentOrRecentGame prefers the game shown in the player's profile status,
// then the most recent entry of the two-week play history.
func (c *Client) CurrentOrRecentGame(ctx context.Context, userID string) (*provider.Game, error) {
	var summaries playerSummariesResponse
	err := c.getJSON(ctx, "/ISteamUser/GetPlayerSummaries/v2/", url.Values{"steamids": {userID}}, &summaries)
	if err != nil {
		return nil, fmt.Errorf("player summary %s: %w", userID, err)
	}
	for _, p := range summaries.Response.Players {
		if p.SteamID == userID && p.GameID != "" {
			return &provider.Game{ID: p.GameID, Title: p.GameExtraInfo, Recency: provider.RecencyCurrent}, nil
		}
	}

	var recent recentGamesResponse
	params := url.Values{"steamid": {userID}, "count": {"1"}}
	if err := c.getJSON(ctx, "/IPlayerService/GetRecentlyPlayedGames/v1/", params, &recent); err != nil {
		return nil, fmt.Errorf("recent games %s: %w", userID, err)
	}
	if len(recent.Response.Games) == 0 {
		return nil, nil
	}
	g := recent.Response.Games[0]
	if g.AppID == 0 {
		return nil, fmt.Errorf("recent games %s: %w: missing appid", userID, provider.ErrMalformed)
	}
	return &provider.Game{
		ID:      strconv.FormatInt(g.AppID, 10),
		Title:   g.Name,
		Recency: provider.RecencyRecent,
	}, nil
}

// AchievementSnapshot fetches the player's full unlocked/locked state for a
// game. Steam reports failures inside the body with success=false.
func (c *Client) AchievementSnapshot(ctx context.Context, userID, gameID string) (achievements.Snapshot, error) {
	var resp playerAchievementsResponse
	params := url.Values{"steamid": {userID}, "appid": {gameID}, "l": {c.language}}
	if err := c.getJSON(ctx, "/ISteamUserStats/GetPlayerAchievements/v1/", params, &resp); err != nil {
		return achievements.Snapshot{}, fmt.Errorf("player achievements %s/%s: %w", userID, gameID, err)
	}
	ps := resp.PlayerStats
	if !ps.Success {
		return achievements.Snapshot{}, fmt.Errorf("player achievements %s/%s: %w: %s",
			userID, gameID, provider.ErrMalformed, ps.Error)
	}

	snap := achievements.Snapshot{
		GameID:       gameID,
		GameTitle:    ps.GameName,
		Achievements: make([]achievements.Achievement, 0, len(ps.Achievements)),
	}
	for _, a := range ps.Achievements {
		if a.APIName == "" {
			continue
		}
		snap.Achievements = append(snap.Achievements, achievements.Achievement{
			APIID:         a.APIName,
			Unlocked:      a.Achieved == 1,
			UnlockedAtSec: a.UnlockTime,
		})
	}
	// The endpoint lists every achievement of the game, locked ones included.
	if len(snap.Achievements) > 0 {
		snap.TotalCount = len(snap.Achievements)
		snap.TotalKnown = true
	}
	return snap, nil
}

// GameSchema returns display names and descriptions for a game.
func (c *Client) GameSchema(ctx context.Context, gameID string) (*provider.Schema, error) {
	var resp schemaResponse
	params := url.Values{"appid": {gameID}, "l": {c.language}}
	if err := c.getJSON(ctx, "/ISteamUserStats/GetSchemaForGame/v2/", params, &resp); err != nil {
		return nil, fmt.Errorf("game schema %s: %w", gameID, err)
	}

	list := resp.Game.AvailableGameStats.Achievements
	s := &provider.Schema{
		CanonicalTitle: resp.Game.GameName,
		TotalCount:     len(list),
		DisplayNames:   make(map[string]string, len(list)),
		Descriptions:   make(map[string]string, len(list)),
		IconURLs:       make(map[string]string, len(list)),
	}
	for _, a := range list {
		s.DisplayNames[a.Name] = a.DisplayName
		s.Descriptions[a.Name] = a.Description
		s.IconURLs[a.Name] = a.Icon
	}
	return s, nil
}

// RarityPercentiles returns global unlock percentages. Games without stats
// yield nil.
func (c *Client) RarityPercentiles(ctx context.Context, gameID string) (provider.Rarity, error) {
	var resp globalPercentagesResponse
	params := url.Values{"gameid": {gameID}}
	if err := c.getJSON(ctx, "/ISteamUserStats/GetGlobalAchievementPercentagesForApp/v2/", params, &resp); err != nil {
		return nil, fmt.Errorf("global percentages %s: %w", gameID, err)
	}

	list := resp.AchievementPercentages.Achievements
	if len(list) == 0 {
		return nil, nil
	}
	out := make(provider.Rarity, len(list))
	for _, a := range list {
		if pct, ok := provider.ExtractFloat(a.Percent); ok {
			out[a.Name] = pct
		}
	}
	return out, nil
}
