package correction

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

func outcome(won bool, ctx domain.DecisionContext) domain.Outcome {
	pnl := -0.40
	if won {
		pnl = 0.60
	}
	return domain.Outcome{Won: won, PnL: pnl, Context: ctx}
}

var upUS = domain.DecisionContext{
	Direction:  domain.DirectionUp,
	Tier:       domain.TierUncertain,
	VolRegime:  domain.VolNormal,
	TimeBucket: domain.TimeUS,
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := NewWindow(3)
	w.Push(true)
	w.Push(true)
	w.Push(false)
	w.Push(false)

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, 1, w.Wins())
	assert.Equal(t, []bool{true, false, false}, w.Values())
	assert.InDelta(t, 1.0/3, w.WinRate(), 1e-9)
}

func TestEngine_ColdStartIsNeutral(t *testing.T) {
	e := New(DefaultConfig())

	assert.Equal(t, 1.0, e.EdgeMultiplier())
	assert.Equal(t, 1.0, e.StakeMultiplier())
	assert.Equal(t, RegimeLearning, e.Regime())
	assert.InDelta(t, 0.05, e.GetAdjustedEdge(0.05, upUS), 1e-12)
	assert.False(t, e.ShouldAvoidDirection(domain.DirectionUp))
}

func TestEngine_StakeMultiplierNonIncreasingOnLosses(t *testing.T) {
	e := New(DefaultConfig())
	prev := e.StakeMultiplier()
	for i := 1; i <= 12; i++ {
		e.RecordOutcome(outcome(false, upUS))
		cur := e.StakeMultiplier()
		assert.LessOrEqual(t, cur, prev, "after %d losses", i)
		prev = cur
	}
	assert.Equal(t, 0.35, e.StakeMultiplier())
}

func TestEngine_StakeSteps(t *testing.T) {
	e := New(DefaultConfig())
	for i := 0; i < 3; i++ {
		e.RecordOutcome(outcome(false, upUS))
	}
	assert.Equal(t, 0.55, e.StakeMultiplier())

	e.RecordOutcome(outcome(true, upUS))
	assert.Equal(t, 1.0, e.StakeMultiplier())
	e.RecordOutcome(outcome(true, upUS))
	e.RecordOutcome(outcome(true, upUS))
	assert.Equal(t, 1.12, e.StakeMultiplier())
	for i := 0; i < 4; i++ {
		e.RecordOutcome(outcome(true, upUS))
	}
	assert.Equal(t, 1.40, e.StakeMultiplier())
}

func TestEngine_EdgeMultiplierNonIncreasingOnWins(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg)
	prev := e.EdgeMultiplier()
	for i := 1; i <= 30; i++ {
		e.RecordOutcome(outcome(true, upUS))
		cur := e.EdgeMultiplier()
		assert.LessOrEqual(t, cur, prev, "after %d wins", i)
		assert.GreaterOrEqual(t, cur, cfg.EdgeMultMin)
		prev = cur
	}
	assert.Equal(t, cfg.EdgeMultMin, e.EdgeMultiplier())
	assert.Equal(t, RegimeAggressive, e.Regime())
}

func TestEngine_LossesTightenAndClamp(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg)
	for i := 0; i < 20; i++ {
		e.RecordOutcome(outcome(false, upUS))
	}
	assert.Equal(t, cfg.EdgeMultMax, e.EdgeMultiplier())
	assert.Equal(t, RegimeDefensive, e.Regime())
	assert.Equal(t, 20, e.Status().WorstLossStreak)
}

func TestEngine_ShouldAvoidDirection(t *testing.T) {
	e := New(DefaultConfig())
	down := domain.DecisionContext{Direction: domain.DirectionDown}

	for i := 0; i < 4; i++ {
		e.RecordOutcome(outcome(false, down))
	}
	assert.False(t, e.ShouldAvoidDirection(domain.DirectionDown), "needs five samples")

	e.RecordOutcome(outcome(false, down))
	assert.True(t, e.ShouldAvoidDirection(domain.DirectionDown))
	assert.False(t, e.ShouldAvoidDirection(domain.DirectionUp))
}

func TestEngine_WeightsAdjustThreshold(t *testing.T) {
	e := New(DefaultConfig())
	hot := domain.DecisionContext{TimeBucket: domain.TimeEurope}
	for i := 0; i < 5; i++ {
		e.RecordOutcome(outcome(true, hot))
	}

	w := e.Weight(domain.DimTime, string(domain.TimeEurope))
	assert.InDelta(t, 1.3, w, 1e-9)
	assert.Equal(t, 1.0, e.Weight(domain.DimTime, string(domain.TimeAsia)))

	// 5 wins: streak multiplier 0.90, below min samples so win rate is neutral.
	assert.InDelta(t, 0.05*0.90*0.7, e.GetAdjustedEdge(0.05, hot), 1e-12)
}

func TestEngine_ListenerNotified(t *testing.T) {
	e := New(DefaultConfig())
	var got []domain.CorrectionStatus
	e.SetListener(func(s domain.CorrectionStatus) { got = append(got, s) })

	e.RecordOutcome(outcome(true, upUS))
	e.RecordOutcome(outcome(false, upUS))

	require.Len(t, got, 2)
	assert.Equal(t, 2, got[1].TotalBets)
	assert.Equal(t, 1, got[1].Wins)
}

func TestEngine_HistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistorySize = 4
	e := New(cfg)
	for i := 0; i < 10; i++ {
		e.RecordOutcome(outcome(i%2 == 0, upUS))
	}
	assert.Len(t, e.History(), 4)
}

func TestSnapshot_RestoreFidelity(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg)
	seq := []bool{true, false, true, true, false, false, false, true, true, true, true, false, true}
	for i, won := range seq {
		ctx := upUS
		if i%3 == 0 {
			ctx.Direction = domain.DirectionDown
			ctx.TimeBucket = domain.TimeAsia
		}
		e.RecordOutcome(outcome(won, ctx))
	}

	data, err := e.MarshalSnapshot(time.Now())
	require.NoError(t, err)

	restored := New(cfg)
	require.NoError(t, restored.RestoreJSON(data))

	assert.Equal(t, e.Status(), restored.Status())
	assert.Equal(t, e.Regime(), restored.Regime())
	assert.Equal(t, e.GetAdjustedEdge(0.05, upUS), restored.GetAdjustedEdge(0.05, upUS))

	again, err := restored.MarshalSnapshot(time.Now())
	require.NoError(t, err)
	var a, b Snapshot
	require.NoError(t, json.Unmarshal(data, &a))
	require.NoError(t, json.Unmarshal(again, &b))
	assert.Equal(t, a.Derived, b.Derived)
}

func TestSnapshot_RejectsUnknownVersion(t *testing.T) {
	e := New(DefaultConfig())
	err := e.Restore(Snapshot{Version: 99})
	assert.Error(t, err)
}

func TestSnapshot_RestoreTruncatesToWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 3
	e := New(cfg)
	require.NoError(t, e.Restore(Snapshot{
		Version: SnapshotVersion,
		Global:  []bool{false, false, true, true, true},
	}))
	assert.Equal(t, 1.0, e.Status().GlobalWinRate)
}
