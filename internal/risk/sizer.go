// Package risk converts a scored opportunity into a bounded contract count.
package risk

import (
	"fmt"
	"math"
	"sort"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// Regime names the sizing path that produced a stake.
type Regime string

const (
	RegimeKelly Regime = "kelly"
	RegimeMicro Regime = "micro"
)

// MicroTier maps a minimum net edge to a fixed contract count.
type MicroTier struct {
	MinEdge   float64 `toml:"min_edge" yaml:"min_edge"`
	Contracts int     `toml:"contracts" yaml:"contracts"`
}

// Config holds the sizing constants.
type Config struct {
	KellyCap          float64
	KellyDamping      float64
	MaxTradeFraction  float64
	CeilingFraction   float64
	MicroRiskFraction float64
	MicroTiers        []MicroTier
	DrawdownSoft      float64
	DrawdownHard      float64
	DrawdownSoftMult  float64
	DrawdownHardMult  float64
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		KellyCap:          0.25,
		KellyDamping:      0.5,
		MaxTradeFraction:  0.10,
		CeilingFraction:   0.15,
		MicroRiskFraction: 0.03,
		MicroTiers: []MicroTier{
			{MinEdge: 0, Contracts: 1},
			{MinEdge: 0.03, Contracts: 2},
			{MinEdge: 0.05, Contracts: 3},
		},
		DrawdownSoft:     0.30,
		DrawdownHard:     0.50,
		DrawdownSoftMult: 0.5,
		DrawdownHardMult: 0.25,
	}
}

// Stake is an accepted size.
type Stake struct {
	Contracts          int     `json:"contracts"`
	Cost               float64 `json:"cost"`
	Regime             Regime  `json:"regime"`
	KellyFraction      float64 `json:"kelly_fraction"`
	StakeMultiplier    float64 `json:"stake_multiplier"`
	DrawdownMultiplier float64 `json:"drawdown_multiplier"`
}

// Sizer is stateless; inputs arrive per call.
type Sizer struct {
	cfg Config
}

// NewSizer creates a sizer. Micro tiers are sorted by MinEdge.
func NewSizer(cfg Config) *Sizer {
	tiers := append([]MicroTier(nil), cfg.MicroTiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinEdge < tiers[j].MinEdge })
	cfg.MicroTiers = tiers
	return &Sizer{cfg: cfg}
}

// DrawdownMultiplier throttles size as balance falls below peak.
func (s *Sizer) DrawdownMultiplier(drawdown float64) float64 {
	switch {
	case drawdown > s.cfg.DrawdownHard:
		return s.cfg.DrawdownHardMult
	case drawdown > s.cfg.DrawdownSoft:
		return s.cfg.DrawdownSoftMult
	}
	return 1
}

// KellyFraction returns the capped Kelly fraction for buying at priceCents
// with win probability p. Zero means no edge.
func (s *Sizer) KellyFraction(priceCents int, p float64) float64 {
	if priceCents <= 0 || priceCents >= 100 {
		return 0
	}
	b := float64(100-priceCents) / float64(priceCents)
	k := (b*p - (1 - p)) / b
	return math.Max(0, math.Min(s.cfg.KellyCap, k))
}

// Size sizes opp against the bankroll. stakeMult is the correction engine's
// stake multiplier.
func (s *Sizer) Size(opp domain.Opportunity, balance, drawdown, stakeMult float64) (Stake, error) {
	if balance <= 0 {
		return Stake{}, fmt.Errorf("risk: no bankroll: %w", domain.ErrStakeRejected)
	}
	if opp.Price <= 0 || opp.Price >= 100 {
		return Stake{}, fmt.Errorf("risk: price %d out of range: %w", opp.Price, domain.ErrStakeRejected)
	}
	price := float64(opp.Price) / 100
	dd := s.DrawdownMultiplier(drawdown)

	st := Stake{StakeMultiplier: stakeMult, DrawdownMultiplier: dd}
	if opp.Kind == domain.KindMicro {
		st.Regime = RegimeMicro
		n := int(math.Floor(float64(s.microCount(opp.NetEdge)) * stakeMult * dd))
		if limit := int(math.Floor(s.cfg.MicroRiskFraction * balance / price)); n > limit {
			n = limit
		}
		st.Contracts = max(1, n)
	} else {
		st.Regime = RegimeKelly
		k := s.KellyFraction(opp.Price, opp.ModelProb)
		if k <= 0 {
			return Stake{}, fmt.Errorf("risk: %s: non-positive kelly: %w", opp.Contract.Ticker, domain.ErrStakeRejected)
		}
		st.KellyFraction = k
		f := k * s.cfg.KellyDamping * stakeMult * dd
		stake := math.Min(f, s.cfg.MaxTradeFraction) * balance
		st.Contracts = max(1, int(math.Floor(stake/price)))
	}

	st.Cost = float64(st.Contracts) * price
	const eps = 1e-9
	if st.Cost > s.cfg.CeilingFraction*balance+eps || st.Cost > balance+eps {
		return Stake{}, fmt.Errorf("risk: %s: cost %.2f over ceiling %.2f: %w",
			opp.Contract.Ticker, st.Cost, s.cfg.CeilingFraction*balance, domain.ErrStakeRejected)
	}
	return st, nil
}

func (s *Sizer) microCount(netEdge float64) int {
	n := 1
	for _, t := range s.cfg.MicroTiers {
		if netEdge >= t.MinEdge {
			n = t.Contracts
		}
	}
	return n
}
