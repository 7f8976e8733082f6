package edge

import (
	"math"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// heuristicProb nudges the quote midpoint by the reference asset's signals
// and returns the YES probability.
func (m *Model) heuristicProb(c domain.Contract, sig domain.SignalSnapshot) (float64, domain.HeuristicDetail) {
	cfg := m.cfg
	mid := float64(c.YesAsk+(100-c.NoAsk)) / 200

	// Signals point at the "up" outcome; flip them when YES pays on a drop.
	sign := 1.0
	if c.StrikeType == domain.StrikeBelow {
		sign = -1
	}

	momentum := clip(sig.Momentum5m*cfg.MomentumWeight, cfg.MomentumClip)

	var osc float64
	if dev := sig.Oscillator - 50; math.Abs(dev) >= cfg.OscillatorExtreme {
		// Stretched oscillator readings lean toward reversion.
		osc = -clip(dev/50*cfg.OscillatorWeight, cfg.OscillatorClip)
	}

	var trend float64
	switch sig.Trend {
	case domain.TrendStrongUp:
		trend = cfg.TrendStrong
	case domain.TrendUp:
		trend = cfg.TrendWeak
	case domain.TrendDown:
		trend = -cfg.TrendWeak
	case domain.TrendStrongDown:
		trend = -cfg.TrendStrong
	}
	trend = clip(trend, cfg.TrendClip)

	p := mid + sign*(momentum+osc+trend)

	amp := 1.0
	if cfg.MaxMinutes > 0 {
		frac := math.Min(math.Max(c.MinutesLeft/cfg.MaxMinutes, 0), 1)
		amp = 1 + cfg.ExpiryAmplify*(1-frac)
	}
	p = 0.5 + (p-0.5)*amp
	p = math.Min(math.Max(p, cfg.ProbMin), cfg.ProbMax)

	return p, domain.HeuristicDetail{
		Mid:             mid,
		MomentumNudge:   sign * momentum,
		OscillatorNudge: sign * osc,
		TrendNudge:      sign * trend,
		Amplification:   amp,
	}
}

func clip(v, limit float64) float64 {
	if limit <= 0 {
		return v
	}
	return math.Max(-limit, math.Min(limit, v))
}
