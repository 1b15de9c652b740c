package notifications

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressText(t *testing.T) {
	assert.Equal(t, "3/?", ProgressText(3, 0, false))
	assert.Equal(t, "3/?", ProgressText(3, 10, false))
	assert.Equal(t, "5/10 (50%)", ProgressText(5, 10, true))
	assert.Equal(t, "2/3 (66%)", ProgressText(2, 3, true))
	assert.Equal(t, "10/10 (100%)", ProgressText(10, 10, true))
}

func TestBuildAchievementPayload(t *testing.T) {
	pct := 3.2
	p := BuildAchievementPayload(AchievementMessage{
		UserID:        "42",
		GameID:        "620",
		GameTitle:     "Portal 2",
		APIID:         "ACH_A",
		DisplayName:   "Wake Up Call",
		IconURL:       "https://cdn/a.jpg",
		RarityPercent: &pct,
		UnlockedAt:    time.Unix(1700000000, 0),
		UnlockedCount: 5,
		TotalCount:    10,
		TotalKnown:    true,
	})

	require.Len(t, p.Embeds, 1)
	e := p.Embeds[0]
	assert.Equal(t, "🏆 Wake Up Call", e.Title)
	assert.Equal(t, colorUltraRare, e.Color)
	assert.Equal(t, "2023-11-14T22:13:20Z", e.Timestamp)
	require.NotNil(t, e.Thumbnail)
	assert.Equal(t, "https://cdn/a.jpg", e.Thumbnail.URL)
	require.Len(t, e.Fields, 2)
	assert.Equal(t, "5/10 (50%)", e.Fields[0].Value)
	assert.Contains(t, e.Fields[1].Value, "Ultra Rare")
	assert.Contains(t, e.Footer.Text, "Portal 2")
}

func TestBuildAchievementPayload_Fallbacks(t *testing.T) {
	p := BuildAchievementPayload(AchievementMessage{UserID: "42", GameID: "620", APIID: "ACH_A"})

	e := p.Embeds[0]
	assert.Equal(t, "🏆 ACH_A", e.Title)
	assert.Empty(t, e.Timestamp)
	assert.Nil(t, e.Thumbnail)
	assert.Len(t, e.Fields, 1)
	assert.Contains(t, e.Footer.Text, "App 620")
}

func TestBuildPlatinumPayload(t *testing.T) {
	p := BuildPlatinumPayload(PlatinumMessage{
		UserID: "42", GameID: "620", GameTitle: "Portal 2", TotalCount: 51, LastName: "Wake Up Call",
	})

	e := p.Embeds[0]
	assert.Equal(t, colorPlatinum, e.Color)
	assert.Contains(t, e.Description, "All 51 achievements")
	assert.Contains(t, e.Description, "Wake Up Call")
}

func TestRarityTier(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{0.5, "Ultra Rare"},
		{5, "Rare"},
		{14.9, "Rare"},
		{15, "Uncommon"},
		{40, "Common"},
	}
	for _, tt := range tests {
		got, _ := rarityTier(tt.pct)
		assert.Equal(t, tt.want, got, "pct=%v", tt.pct)
	}
}
