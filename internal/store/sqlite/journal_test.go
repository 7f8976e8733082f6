package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

var base = time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)

func outcome(id string, won bool, pnl float64, at time.Time) domain.Outcome {
	return domain.Outcome{
		PositionID: id, Ticker: "KX-" + id, Side: domain.SideYes, Kind: domain.KindQuant,
		Won: won, PnL: pnl, EntryPrice: 40, ExitPrice: 0, Contracts: 2,
		Context:    domain.DecisionContext{Direction: domain.DirectionUp, Tier: domain.TierUncertain, VolRegime: domain.VolNormal, TimeBucket: domain.TimeUS},
		Resolution: domain.ResolutionSettled, ResolvedAt: at,
	}
}

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournal_InsertListSummary(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Insert(ctx, outcome("a", true, 1.20, base)))
	require.NoError(t, j.Insert(ctx, outcome("b", false, -0.80, base.Add(time.Minute))))
	require.NoError(t, j.Insert(ctx, outcome("c", true, 0.50, base.Add(2*time.Minute))))
	require.NoError(t, j.Insert(ctx, outcome("a", false, -9, base)))

	all, err := j.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].PositionID)
	assert.True(t, all[2].Won)
	assert.Equal(t, domain.VolNormal, all[2].Context.VolRegime)
	assert.True(t, all[2].ResolvedAt.Equal(base))

	paged, err := j.List(ctx, domain.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "b", paged[0].PositionID)

	since := base.Add(30 * time.Second)
	sum, err := j.Summary(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Count)
	assert.Equal(t, 1, sum.Wins)
	assert.Equal(t, 1, sum.Losses)
	assert.InDelta(t, -0.30, sum.PnL, 1e-9)
}

func TestJournal_AuditLog(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()
	tick := base
	j.now = func() time.Time { tick = tick.Add(time.Second); return tick }

	audit := j.Audit()
	require.NoError(t, audit.Log(ctx, "bet_placed", map[string]any{"ticker": "KX-A", "contracts": 3}))
	require.NoError(t, audit.Log(ctx, "bet_resolved", map[string]any{"won": true}))

	entries, err := audit.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "bet_resolved", entries[0].Event)
	assert.Equal(t, "KX-A", entries[1].Detail["ticker"])
	assert.Equal(t, float64(3), entries[1].Detail["contracts"])
}
