package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

func TestStopLossThreshold_Tightens(t *testing.T) {
	cfg := DefaultExitConfig()
	assert.InDelta(t, 15, cfg.StopLossThreshold(0), 1e-9)
	assert.InDelta(t, 7.5, cfg.StopLossThreshold(0.5), 1e-9)
	assert.InDelta(t, 5, cfg.StopLossThreshold(0.9), 1e-9)
}

func TestEvaluateExit(t *testing.T) {
	cfg := DefaultExitConfig()
	pos := domain.Position{Side: domain.SideYes, EntryPrice: 40, Kind: domain.KindQuant}

	tests := []struct {
		name     string
		pos      domain.Position
		status   domain.ContractStatus
		drawdown float64
		want     ExitReason
	}{
		{"no bid", pos, domain.ContractStatus{YesBid: 0, MinutesLeft: 8}, 0.7, ExitNone},
		{"emergency beats everything", pos, domain.ContractStatus{YesBid: 47, MinutesLeft: 8}, 0.6, ExitEmergency},
		{"take profit", pos, domain.ContractStatus{YesBid: 46, MinutesLeft: 8}, 0, ExitTakeProfit},
		{"below take profit", pos, domain.ContractStatus{YesBid: 45, MinutesLeft: 8}, 0, ExitNone},
		{"stop loss", pos, domain.ContractStatus{YesBid: 25, MinutesLeft: 8}, 0, ExitStopLoss},
		{"stop loss tightened by drawdown", pos, domain.ContractStatus{YesBid: 32, MinutesLeft: 8}, 0.5, ExitStopLoss},
		{"loss under threshold", pos, domain.ContractStatus{YesBid: 32, MinutesLeft: 8}, 0, ExitNone},
		{"time decay", pos, domain.ContractStatus{YesBid: 42, MinutesLeft: 1.5}, 0, ExitTimeDecay},
		{"time decay needs profit", pos, domain.ContractStatus{YesBid: 40, MinutesLeft: 1.5}, 0, ExitNone},
		{"fair value", domain.Position{Side: domain.SideYes, EntryPrice: 45}, domain.ContractStatus{YesBid: 49, MinutesLeft: 8}, 0, ExitFairValue},
		{"no side uses no bid", domain.Position{Side: domain.SideNo, EntryPrice: 40}, domain.ContractStatus{YesBid: 10, NoBid: 47, MinutesLeft: 8}, 0, ExitTakeProfit},
		{"micro skipped", domain.Position{Side: domain.SideYes, EntryPrice: 40, Kind: domain.KindMicro}, domain.ContractStatus{YesBid: 60, MinutesLeft: 8}, 0, ExitNone},
		{"micro in emergency", domain.Position{Side: domain.SideYes, EntryPrice: 40, Kind: domain.KindMicro}, domain.ContractStatus{YesBid: 40, MinutesLeft: 8}, 0.65, ExitEmergency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateExit(tt.pos, tt.status, tt.drawdown, cfg)
			assert.Equal(t, tt.want, got.Reason)
		})
	}
}

func TestTransition_Table(t *testing.T) {
	p := &domain.Position{ID: "p", State: domain.PositionPlaced}
	err := Transition(p, domain.PositionEarlyExit, CondExitFilled)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, Transition(p, domain.PositionFilled, CondOrderFilled))
	assert.ErrorIs(t, Transition(p, domain.PositionCancelled, CondStaleOrder), domain.ErrInvalidTransition)

	require.NoError(t, Transition(p, domain.PositionSettled, CondSettled))
	assert.ErrorIs(t, Transition(p, domain.PositionSettled, CondSettled), domain.ErrAlreadyResolved)
}
