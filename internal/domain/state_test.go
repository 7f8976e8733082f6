package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTierForPrice(t *testing.T) {
	assert.Equal(t, TierFavorite, TierForPrice(65))
	assert.Equal(t, TierFavorite, TierForPrice(90))
	assert.Equal(t, TierUncertain, TierForPrice(64))
	assert.Equal(t, TierUncertain, TierForPrice(35))
	assert.Equal(t, TierLongshot, TierForPrice(34))
}

func TestTimeBucketFor(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, TimeAsia, TimeBucketFor(day.Add(7*time.Hour)))
	assert.Equal(t, TimeEurope, TimeBucketFor(day.Add(8*time.Hour)))
	assert.Equal(t, TimeUS, TimeBucketFor(day.Add(13*time.Hour)))
	assert.Equal(t, TimeLate, TimeBucketFor(day.Add(21*time.Hour)))
}

func TestDecisionContext_BucketsSkipsEmpty(t *testing.T) {
	ctx := DecisionContext{Direction: DirectionUp, TimeBucket: TimeUS}
	b := ctx.Buckets()
	assert.Len(t, b, 2)
	assert.Equal(t, "up", b[DimDirection])
	assert.Equal(t, "us", b[DimTime])
}

func TestEngineState_Drawdown(t *testing.T) {
	s := NewEngineState(100, time.Now())
	assert.Equal(t, 0.0, s.Drawdown())

	s.Balance = 40
	assert.InDelta(t, 0.60, s.Drawdown(), 1e-9)

	s.Balance = 120
	s.UpdatePeak()
	assert.Equal(t, 120.0, s.Peak)
	assert.Equal(t, 0.0, s.Drawdown())
}

func TestEngineState_CountsIgnoreTerminal(t *testing.T) {
	s := NewEngineState(100, time.Now())
	s.Positions["a"] = &Position{ID: "a", Ticker: "T1", Cost: 0.8, State: PositionFilled}
	s.Positions["b"] = &Position{ID: "b", Ticker: "T1", Cost: 0.5, State: PositionPlaced}
	s.Positions["c"] = &Position{ID: "c", Ticker: "T2", Cost: 1.0, State: PositionSettled}

	assert.Equal(t, 2, s.OpenCount())
	assert.Equal(t, 2, s.CountByTicker("T1"))
	assert.Equal(t, 0, s.CountByTicker("T2"))
	assert.InDelta(t, 1.3, s.Exposure(), 1e-9)
}

func TestEngineState_AppendOutcomeBounded(t *testing.T) {
	s := NewEngineState(100, time.Now())
	for i := 0; i < 5; i++ {
		s.AppendOutcome(Outcome{EntryPrice: i}, 3)
	}
	assert.Len(t, s.Recent, 3)
	assert.Equal(t, 2, s.Recent[0].EntryPrice)
	assert.Equal(t, 4, s.Recent[2].EntryPrice)
}

func TestEngineState_InEmergency(t *testing.T) {
	now := time.Now()
	s := NewEngineState(100, now)
	assert.False(t, s.InEmergency(now))
	s.EmergencyUntil = now.Add(time.Minute)
	assert.True(t, s.InEmergency(now))
	assert.False(t, s.InEmergency(now.Add(2*time.Minute)))
}

func TestOpportunity_Valid(t *testing.T) {
	o := Opportunity{Kind: KindQuant, Quant: &QuantDetail{}}
	assert.True(t, o.Valid())

	o.Heuristic = &HeuristicDetail{}
	assert.False(t, o.Valid())

	o = Opportunity{Kind: KindMicro, Quant: &QuantDetail{}}
	assert.False(t, o.Valid())
}

func TestOrderbook_BestBid(t *testing.T) {
	ob := Orderbook{
		YesBids: []PriceLevel{{Price: 40, Quantity: 10}, {Price: 44, Quantity: 0}, {Price: 42, Quantity: 3}},
	}
	assert.Equal(t, 42, ob.BestBid(SideYes))
	assert.Equal(t, 0, ob.BestBid(SideNo))
}
