package edge

import (
	"time"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// DirectionFor maps a leg to the price move it profits from.
func DirectionFor(side domain.Side, st domain.StrikeType) domain.Direction {
	up := side == domain.SideYes
	if st == domain.StrikeBelow {
		up = !up
	}
	if up {
		return domain.DirectionUp
	}
	return domain.DirectionDown
}

// VolRegimeFor buckets a 5-minute volatility percentage.
func VolRegimeFor(vol5m, low, high float64) domain.VolRegime {
	switch {
	case vol5m < low:
		return domain.VolLow
	case vol5m > high:
		return domain.VolHigh
	default:
		return domain.VolNormal
	}
}

// Tag builds the decision context for buying side of c.
func (m *Model) Tag(c domain.Contract, side domain.Side, sig domain.SignalSnapshot, now time.Time) domain.DecisionContext {
	return domain.DecisionContext{
		Direction:  DirectionFor(side, c.StrikeType),
		Tier:       domain.TierForPrice(c.Ask(side)),
		VolRegime:  VolRegimeFor(sig.Volatility5m, m.cfg.VolLow, m.cfg.VolHigh),
		TimeBucket: domain.TimeBucketFor(now),
	}
}
