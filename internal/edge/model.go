package edge

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// Thresholds supplies the context-adjusted entry bar. The correction engine
// implements it.
type Thresholds interface {
	GetAdjustedEdge(base float64, ctx domain.DecisionContext) float64
	ShouldAvoidDirection(d domain.Direction) bool
}

// Config holds the tuned model constants. Probabilities are fractions,
// momentum and volatility inputs are percentages.
type Config struct {
	BaseMinEdge       float64
	MinNetPayoutCents float64
	VolFloor          float64
	VolLow            float64
	VolHigh           float64
	MicroEnabled      bool
	MicroEdgeCeiling  float64
	MomentumWeight    float64
	MomentumClip      float64
	OscillatorWeight  float64
	OscillatorClip    float64
	OscillatorExtreme float64
	TrendStrong       float64
	TrendWeak         float64
	TrendClip         float64
	ExpiryAmplify     float64
	MaxMinutes        float64
	ProbMin           float64
	ProbMax           float64
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		BaseMinEdge:       0.05,
		MinNetPayoutCents: 2,
		VolFloor:          0.02,
		VolLow:            0.05,
		VolHigh:           0.20,
		MicroEnabled:      true,
		MicroEdgeCeiling:  0.07,
		MomentumWeight:    0.10,
		MomentumClip:      0.05,
		OscillatorWeight:  0.05,
		OscillatorClip:    0.03,
		OscillatorExtreme: 20,
		TrendStrong:       0.03,
		TrendWeak:         0.015,
		TrendClip:         0.03,
		ExpiryAmplify:     0.15,
		MaxMinutes:        15,
		ProbMin:           0.02,
		ProbMax:           0.98,
	}
}

// Model scores contracts against a signal snapshot.
type Model struct {
	cfg Config
	th  Thresholds
}

// NewModel creates a model. th may be nil, in which case the base edge is
// used unadjusted and no direction is vetoed.
func NewModel(cfg Config, th Thresholds) *Model {
	return &Model{cfg: cfg, th: th}
}

// YesProbability returns the model's YES probability and which mode produced
// it.
func (m *Model) YesProbability(c domain.Contract, sig domain.SignalSnapshot) (float64, domain.OpportunityKind, *domain.QuantDetail, *domain.HeuristicDetail) {
	if quantMode(c, sig) {
		p, qd := quantProb(sig.ReferencePrice, *c.Strike, sig.Volatility5m, m.cfg.VolFloor, c.MinutesLeft, c.StrikeType)
		return p, domain.KindQuant, &qd, nil
	}
	p, hd := m.heuristicProb(c, sig)
	return p, domain.KindHeuristic, nil, &hd
}

// Score evaluates both legs of c. It returns nil when neither leg clears the
// entry rules.
func (m *Model) Score(c domain.Contract, sig domain.SignalSnapshot, now time.Time) (*domain.Opportunity, error) {
	if !priced(c.YesAsk) && !priced(c.NoAsk) {
		return nil, fmt.Errorf("edge: %s: %w", c.Ticker, domain.ErrNoLiquidity)
	}
	// The heuristic anchors on the quote midpoint, which needs both legs.
	if !quantMode(c, sig) && (!priced(c.YesAsk) || !priced(c.NoAsk)) {
		return nil, fmt.Errorf("edge: %s: one-sided quote: %w", c.Ticker, domain.ErrNoLiquidity)
	}

	yes, kind, qd, hd := m.YesProbability(c, sig)

	var best *domain.Opportunity
	for _, side := range []domain.Side{domain.SideYes, domain.SideNo} {
		ask := c.Ask(side)
		if !priced(ask) {
			continue
		}
		prob := yes
		if side == domain.SideNo {
			prob = 1 - yes
		}
		ctx := m.Tag(c, side, sig, now)
		ev := EvaluateSide(prob, ask)
		if !m.accept(ev, ctx) {
			continue
		}
		if best != nil && ev.EV <= best.EV {
			continue
		}
		best = &domain.Opportunity{
			Kind:      kind,
			Contract:  c,
			Side:      side,
			Price:     ask,
			ModelProb: prob,
			Edge:      ev.Edge,
			Fee:       ev.Fee,
			NetEdge:   ev.NetEdge,
			NetPayout: ev.NetPayout,
			EV:        ev.EV,
			Context:   ctx,
			ScoredAt:  now,
			Quant:     qd,
			Heuristic: hd,
		}
	}
	if best == nil {
		return nil, nil
	}

	if m.cfg.MicroEnabled && best.NetEdge < m.cfg.MicroEdgeCeiling {
		best.Micro = &domain.MicroDetail{
			Source:     best.Kind,
			EdgeBucket: math.Floor(best.NetEdge*100) / 100,
		}
		best.Kind = domain.KindMicro
		best.Quant, best.Heuristic = nil, nil
	}
	return best, nil
}

func (m *Model) accept(ev SideEval, ctx domain.DecisionContext) bool {
	minEdge := m.cfg.BaseMinEdge
	if m.th != nil {
		if m.th.ShouldAvoidDirection(ctx.Direction) {
			return false
		}
		minEdge = m.th.GetAdjustedEdge(m.cfg.BaseMinEdge, ctx)
	}
	const eps = 1e-9
	if ev.Edge+eps < minEdge {
		return false
	}
	if ev.EV <= 0 {
		return false
	}
	return ev.NetPayout*100+eps >= m.cfg.MinNetPayoutCents
}

func quantMode(c domain.Contract, sig domain.SignalSnapshot) bool {
	return c.HasStrike() && sig.ReferencePrice > 0
}

func priced(cents int) bool {
	return cents >= 1 && cents <= 99
}
