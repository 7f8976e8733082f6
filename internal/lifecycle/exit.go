package lifecycle

import (
	"math"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// ExitReason names the rule that triggered an early exit.
type ExitReason string

const (
	ExitNone       ExitReason = ""
	ExitEmergency  ExitReason = "emergency"
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTimeDecay  ExitReason = "time_decay"
	ExitFairValue  ExitReason = "fair_value"
)

// ExitConfig holds the early-exit thresholds. Prices are in cents.
type ExitConfig struct {
	TakeProfit         int
	StopLoss           float64
	StopLossTightening float64
	StopLossMin        float64
	TimeDecayMinutes   float64
	FairValueBand      int
	EmergencyDrawdown  float64
}

// DefaultExitConfig returns the tuned defaults.
func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		TakeProfit:         6,
		StopLoss:           15,
		StopLossTightening: 1.0,
		StopLossMin:        5,
		TimeDecayMinutes:   2,
		FairValueBand:      3,
		EmergencyDrawdown:  0.60,
	}
}

// ExitDecision is the outcome of evaluating one position.
type ExitDecision struct {
	Reason ExitReason
	Bid    int
	Gain   int
}

// Emergency reports whether drawdown forces liquidation.
func (c ExitConfig) Emergency(drawdown float64) bool {
	return c.EmergencyDrawdown > 0 && drawdown+1e-9 >= c.EmergencyDrawdown
}

// StopLossThreshold returns the per-contract loss that triggers a stop. It
// tightens as drawdown deepens and never drops below StopLossMin.
func (c ExitConfig) StopLossThreshold(drawdown float64) float64 {
	return math.Max(c.StopLoss*(1-c.StopLossTightening*drawdown), c.StopLossMin)
}

// EvaluateExit applies the exit rules in priority order against the side's
// current best bid. Micro positions only exit in an emergency.
func EvaluateExit(pos domain.Position, status domain.ContractStatus, drawdown float64, cfg ExitConfig) ExitDecision {
	bid := status.Bid(pos.Side)
	if bid <= 0 {
		return ExitDecision{}
	}
	gain := bid - pos.EntryPrice
	d := ExitDecision{Bid: bid, Gain: gain}

	emergency := cfg.Emergency(drawdown)
	switch {
	case emergency:
		d.Reason = ExitEmergency
	case pos.Kind == domain.KindMicro:
	case gain >= cfg.TakeProfit:
		d.Reason = ExitTakeProfit
	case float64(-gain) >= cfg.StopLossThreshold(drawdown):
		d.Reason = ExitStopLoss
	case status.MinutesLeft < cfg.TimeDecayMinutes && gain > 0:
		d.Reason = ExitTimeDecay
	case abs(bid-50) <= cfg.FairValueBand && gain > 0:
		d.Reason = ExitFairValue
	}
	return d
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
