package notifications

import (
	"fmt"
	"time"
)

const (
	botName = "Achievement Watch"

	colorCommon    = 0x5865F2
	colorUncommon  = 0x57F287
	colorRare      = 0xFEE75C
	colorUltraRare = 0xEB459E
	colorPlatinum  = 0xE5E4E2
)

// AchievementMessage is everything needed to render one unlock.
type AchievementMessage struct {
	UserID        string
	GameID        string
	GameTitle     string
	APIID         string
	DisplayName   string
	Description   string
	IconURL       string
	RarityPercent *float64
	UnlockedAt    time.Time
	UnlockedCount int
	TotalCount    int
	TotalKnown    bool
}

// PlatinumMessage renders the one-shot completion celebration.
type PlatinumMessage struct {
	UserID     string
	GameID     string
	GameTitle  string
	TotalCount int
	LastAPIID  string
	LastName   string
	At         time.Time
}

// BuildAchievementPayload renders an unlock as a single-embed payload.
func BuildAchievementPayload(m AchievementMessage) Payload {
	name := m.DisplayName
	if name == "" {
		name = m.APIID
	}

	e := Embed{
		Title:       fmt.Sprintf("🏆 %s", name),
		Description: m.Description,
		URL:         storeURL(m.GameID),
		Color:       colorCommon,
		Footer:      &EmbedFooter{Text: fmt.Sprintf("%s • %s", gameLabel(m.GameTitle, m.GameID), profileLabel(m.UserID))},
		Fields: []EmbedField{
			{Name: "Progress", Value: ProgressText(m.UnlockedCount, m.TotalCount, m.TotalKnown), Inline: true},
		},
	}
	if !m.UnlockedAt.IsZero() {
		e.Timestamp = m.UnlockedAt.UTC().Format(time.RFC3339)
	}
	if m.IconURL != "" {
		e.Thumbnail = &EmbedImage{URL: m.IconURL}
	}
	if m.RarityPercent != nil {
		tier, color := rarityTier(*m.RarityPercent)
		e.Color = color
		e.Fields = append(e.Fields, EmbedField{
			Name:   "Rarity",
			Value:  fmt.Sprintf("%s (%.1f%% of players)", tier, *m.RarityPercent),
			Inline: true,
		})
	}

	return Payload{Username: botName, Embeds: []Embed{e}}
}

// BuildPlatinumPayload renders the completion celebration.
func BuildPlatinumPayload(m PlatinumMessage) Payload {
	desc := fmt.Sprintf("All %d achievements unlocked in **%s**.", m.TotalCount, gameLabel(m.GameTitle, m.GameID))
	if m.LastName != "" {
		desc += fmt.Sprintf("\nFinal unlock: %s", m.LastName)
	} else if m.LastAPIID != "" {
		desc += fmt.Sprintf("\nFinal unlock: %s", m.LastAPIID)
	}

	e := Embed{
		Title:       "💎 Platinum!",
		Description: desc,
		URL:         storeURL(m.GameID),
		Color:       colorPlatinum,
		Footer:      &EmbedFooter{Text: profileLabel(m.UserID)},
	}
	if !m.At.IsZero() {
		e.Timestamp = m.At.UTC().Format(time.RFC3339)
	}
	return Payload{Username: botName, Embeds: []Embed{e}}
}

// ProgressText renders "unlocked/total (pct%)", or "unlocked/?" when the total
// is unknown.
func ProgressText(unlocked, total int, known bool) string {
	if !known || total <= 0 {
		return fmt.Sprintf("%d/?", unlocked)
	}
	pct := unlocked * 100 / total
	return fmt.Sprintf("%d/%d (%d%%)", unlocked, total, pct)
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func rarityTier(pct float64) (string, int) {
	switch {
	case pct < 5:
		return "Ultra Rare", colorUltraRare
	case pct < 15:
		return "Rare", colorRare
	case pct < 40:
		return "Uncommon", colorUncommon
	default:
		return "Common", colorCommon
	}
}

func gameLabel(title, id string) string {
	if title != "" {
		return title
	}
	return "App " + id
}

func profileLabel(userID string) string {
	return "steamcommunity.com/profiles/" + userID
}

func storeURL(gameID string) string {
	if gameID == "" {
		return ""
	}
	return "https://store.steampowered.com/app/" + gameID
}
