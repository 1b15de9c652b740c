package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/achievement-watch/internal/eventlog"
	"github.com/albapepper/achievement-watch/internal/ledger"
	"github.com/albapepper/achievement-watch/internal/provider"
)

func TestRunUser_BootstrapSendsNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.prov.setSnapshot("u1", "g1", 3, unlocked("A", 10), unlocked("B", 20), locked("C"))

	res, err := h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, StatusBootstrap, res.Status)
	assert.True(t, res.Bootstrap)
	assert.Zero(t, res.Announced)
	assert.Empty(t, h.sink.titles())

	rec, err := h.ledger.Get(ctx, ledger.Key{UserID: "u1", GameID: "g1"})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"A", "B"}, rec.AnnouncedAPIIDs)
	assert.Equal(t, 2, rec.UnlockedCount)
	assert.Equal(t, "2/3 (66%)", rec.ProgressText)
	assert.Equal(t, []string{"C"}, rec.LockedAPIIDs)
	assert.Equal(t, testNow, rec.UpdatedAtSec)
}

func TestRunUser_SteadyStateAnnouncesOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.prov.setSnapshot("u1", "g1", 4, unlocked("A", 7200), locked("B"), locked("C"), locked("D"))
	_, err := h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)

	h.prov.setSnapshot("u1", "g1", 4, unlocked("A", 7200), unlocked("B", 60), unlocked("C", 30), locked("D"))
	res, err := h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, StatusAnnounced, res.Status)
	assert.Equal(t, 2, res.Announced)
	assert.Equal(t, []string{"🏆 C", "🏆 B"}, h.sink.titles())

	h.sink.reset()
	res, err = h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, res.Status)
	assert.Empty(t, h.sink.titles())
}

func TestRunUser_OldUnlockNotAnnouncedButRecorded(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.prov.setSnapshot("u1", "g1", 2, locked("A"), locked("B"))
	_, err := h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)

	h.prov.setSnapshot("u1", "g1", 2, unlocked("A", 3601), unlockedNoTime("B"))
	res, err := h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, res.Announced)
	assert.Empty(t, h.sink.titles())

	rec, err := h.ledger.Get(ctx, ledger.Key{UserID: "u1", GameID: "g1"})
	require.NoError(t, err)
	assert.Empty(t, rec.AnnouncedAPIIDs)
	assert.ElementsMatch(t, []string{"A", "B"}, rec.UnannouncedUnlockedAPIIDs)
}

func TestRunUser_KeepsPriorTitleAndTotal(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.prov.setSnapshot("u1", "g1", 3, unlocked("A", 4000), locked("B"), locked("C"))
	_, err := h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)

	// Second poll reports no total and no title.
	h.prov.setSnapshot("u1", "g1", 0, unlocked("A", 4000), unlocked("B", 5000), locked("C"))
	h.prov.games["u1"].Title = ""
	res, err := h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Game g1", res.GameTitle)
	assert.Equal(t, "2/3 (66%)", res.Progress)

	rec, err := h.ledger.Get(ctx, ledger.Key{UserID: "u1", GameID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, 3, rec.TotalCount)
	assert.Equal(t, "Game g1", rec.GameTitle)
	assert.Equal(t, "2/3 (66%)", rec.ProgressText)
}

func TestRunUser_SinkFailureSkipsSave(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.prov.setSnapshot("u1", "g1", 2, locked("A"), locked("B"))
	_, err := h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)

	h.prov.setSnapshot("u1", "g1", 2, unlocked("A", 5), locked("B"))
	h.sink.failErr = errors.New("webhook down")
	_, err = h.pipe.RunUser(ctx, "u1")
	require.Error(t, err)

	rec, err := h.ledger.Get(ctx, ledger.Key{UserID: "u1", GameID: "g1"})
	require.NoError(t, err)
	assert.Empty(t, rec.AnnouncedAPIIDs)
	assert.Zero(t, rec.UnlockedCount)

	// The next healthy run delivers what the failed one could not.
	h.sink.failErr = nil
	res, err := h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Announced)
	assert.Equal(t, []string{"🏆 A"}, h.sink.titles())
}

func TestRunUser_EmptySnapshotFails(t *testing.T) {
	h := newHarness()
	h.prov.setSnapshot("u1", "g1", 0)

	_, err := h.pipe.RunUser(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrEmptySnapshot)
	assert.Zero(t, h.store.Len())
}

func TestRunUser_NoGame(t *testing.T) {
	h := newHarness()

	res, err := h.pipe.RunUser(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, StatusNoGame, res.Status)
	assert.Zero(t, h.store.Len())
}

func TestRunUser_PlatinumOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.prov.setSnapshot("u1", "g1", 2, unlocked("A", 7200), locked("B"))
	_, err := h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)

	h.prov.setSnapshot("u1", "g1", 2, unlocked("A", 7200), unlocked("B", 10))
	res, err := h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Platinum)
	assert.Equal(t, []string{"🏆 B", "💎 Platinum!"}, h.sink.titles())

	rec, err := h.ledger.Get(ctx, ledger.Key{UserID: "u1", GameID: "g1"})
	require.NoError(t, err)
	assert.True(t, rec.PlatinumAnnounced)

	h.sink.reset()
	res, err = h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.Platinum)
	assert.Empty(t, h.sink.titles())
}

func TestRunUser_BootstrapAtFullCompletionDoesNotCelebrate(t *testing.T) {
	h := newHarness()
	h.prov.setSnapshot("u1", "g1", 1, unlocked("A", 10))

	res, err := h.pipe.RunUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, res.Platinum)
	assert.Empty(t, h.sink.titles())
}

func TestRunUser_SchemaAndRarityFailuresTolerated(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.prov.schemaErr = errors.New("schema down")
	h.prov.rarityErr = errors.New("rarity down")
	h.prov.setSnapshot("u1", "g1", 2, locked("A"), locked("B"))
	_, err := h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)

	h.prov.setSnapshot("u1", "g1", 2, unlocked("A", 5), locked("B"))
	res, err := h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Announced)
	assert.Equal(t, []string{"🏆 A"}, h.sink.titles())
}

func TestRunUser_UsesSchemaAndRarity(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.prov.schema = &provider.Schema{
		DisplayNames: map[string]string{"A": "First Blood"},
		Descriptions: map[string]string{"A": "Win a fight"},
	}
	h.prov.rarity = provider.Rarity{"A": 3.2}
	h.prov.setSnapshot("u1", "g1", 2, locked("A"), locked("B"))
	_, err := h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)

	h.prov.setSnapshot("u1", "g1", 2, unlocked("A", 5), locked("B"))
	_, err = h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)

	require.Len(t, h.sink.sent, 1)
	embed := h.sink.sent[0].Embeds[0]
	assert.Equal(t, "🏆 First Blood", embed.Title)
	assert.Equal(t, "Win a fight", embed.Description)
	require.Len(t, embed.Fields, 2)
	assert.Contains(t, embed.Fields[1].Value, "Ultra Rare")

	board, err := h.events.Leaderboard(ctx, eventlog.WeekBucket(time.Unix(testNow-5, 0)), 10)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, "u1", board[0].UserID)
	assert.Equal(t, 1, board[0].Unlocks)
}

func TestRunUser_EventLogDuplicateAndFailureDoNotFailUnit(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.prov.setSnapshot("u1", "g1", 3, locked("A"), locked("B"), locked("C"))
	_, err := h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)

	// Pre-existing row for A: the append is a no-op.
	_, err = h.events.Append(ctx, eventlog.Event{UserID: "u1", GameID: "g1", APIID: "A", UnlockedAt: time.Unix(testNow-5, 0)})
	require.NoError(t, err)

	h.prov.setSnapshot("u1", "g1", 3, unlocked("A", 5), locked("B"), locked("C"))
	res, err := h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Announced)

	h.pipe.deps.Events = failingLog{}
	h.prov.setSnapshot("u1", "g1", 3, unlocked("A", 5), unlocked("B", 4), locked("C"))
	res, err = h.pipe.RunUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Announced)
}

func TestRunBatch_IsolatesFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.prov.setSnapshot("u1", "g1", 1, locked("A"))
	h.prov.gameErr["u2"] = &provider.StatusError{Endpoint: "GetPlayerSummaries", StatusCode: 500}
	h.prov.panicFor = "u3"
	h.prov.setSnapshot("u4", "g4", 1, locked("A"))

	report := h.pipe.RunBatch(ctx, []string{"u1", "u2", "u3", "u4", "u1"})

	require.Len(t, report.Results, 4)
	assert.Equal(t, []string{"u1", "u2", "u3", "u4"}, []string{
		report.Results[0].Unit, report.Results[1].Unit, report.Results[2].Unit, report.Results[3].Unit,
	})
	assert.True(t, report.Results[0].OK)
	assert.False(t, report.Results[1].OK)
	assert.False(t, report.Results[2].OK)
	assert.True(t, report.Results[3].OK)

	var statusErr *provider.StatusError
	assert.ErrorAs(t, report.Results[1].Err, &statusErr)

	assert.Equal(t, 2, report.Counts.Ok)
	assert.Equal(t, 2, report.Counts.Failed)
	assert.Len(t, report.Failures(), 2)
	assert.NotEmpty(t, report.RunID)
	assert.Contains(t, report.Summary(), "ok=2 failed=2")
	assert.Same(t, report, h.pipe.LastReport())
	assert.Equal(t, 2, h.store.Len())
}

func TestRunBatch_SharesSchemaLookups(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.prov.schema = &provider.Schema{DisplayNames: map[string]string{}}
	for _, u := range []string{"u1", "u2", "u3"} {
		h.prov.setSnapshot(u, "g1", 2, locked("A"), locked("B"))
	}
	h.pipe.RunBatch(ctx, []string{"u1", "u2", "u3"})

	for _, u := range []string{"u1", "u2", "u3"} {
		h.prov.setSnapshot(u, "g1", 2, unlocked("A", 5), locked("B"))
	}
	report := h.pipe.RunBatch(ctx, []string{"u1", "u2", "u3"})

	assert.Equal(t, 3, report.Announced())
	assert.Equal(t, 1, h.prov.schemaCalls)
}
