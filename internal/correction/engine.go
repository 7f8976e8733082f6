// Package correction keeps rolling win/loss statistics per decision context
// and derives the edge and stake adjustments the engine applies on the next
// cycle.
package correction

import (
	"math"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// Regime is the derived adjustment posture.
type Regime string

const (
	RegimeLearning   Regime = "LEARNING"
	RegimeAggressive Regime = "AGGRESSIVE"
	RegimeDefensive  Regime = "DEFENSIVE"
	RegimeNormal     Regime = "NORMAL"
)

// Config holds the tuned correction constants.
type Config struct {
	WindowSize       int
	MinSamples       int
	BucketMinSamples int
	WinRatePivot     float64
	WinRateSlope     float64
	EdgeMultMin      float64
	EdgeMultMax      float64
	WeightSlope      float64
	WeightMin        float64
	WeightMax        float64
	AvoidMinSamples  int
	AvoidWinRate     float64
	HistorySize      int
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize:       50,
		MinSamples:       10,
		BucketMinSamples: 5,
		WinRatePivot:     0.55,
		WinRateSlope:     2.0,
		EdgeMultMin:      0.55,
		EdgeMultMax:      1.70,
		WeightSlope:      1.0,
		WeightMin:        0.7,
		WeightMax:        1.3,
		AvoidMinSamples:  5,
		AvoidWinRate:     0.20,
		HistorySize:      200,
	}
}

// Engine is not safe for concurrent use; the scheduler goroutine owns it.
type Engine struct {
	cfg Config

	global  *Window
	buckets map[string]map[string]*Window

	consecWins   int
	consecLosses int
	peakWin      int
	worstLoss    int
	total        int
	wins         int
	losses       int
	totalPnL     float64
	history      []domain.Outcome

	edgeMult  float64
	stakeMult float64
	weights   map[string]map[string]float64
	regime    Regime

	listener func(domain.CorrectionStatus)
}

// New creates an engine at neutral priors.
func New(cfg Config) *Engine {
	e := &Engine{cfg: cfg}
	e.reset()
	e.recompute()
	return e
}

// SetListener registers a callback invoked after every recorded outcome.
func (e *Engine) SetListener(fn func(domain.CorrectionStatus)) {
	e.listener = fn
}

func (e *Engine) reset() {
	e.global = NewWindow(e.cfg.WindowSize)
	e.buckets = make(map[string]map[string]*Window, len(domain.Dimensions))
	for _, d := range domain.Dimensions {
		e.buckets[d] = make(map[string]*Window)
	}
	e.consecWins, e.consecLosses = 0, 0
	e.peakWin, e.worstLoss = 0, 0
	e.total, e.wins, e.losses = 0, 0, 0
	e.totalPnL = 0
	e.history = nil
}

// RecordOutcome folds a resolved position into every matching bucket.
func (e *Engine) RecordOutcome(o domain.Outcome) {
	e.global.Push(o.Won)
	for dim, key := range o.Context.Buckets() {
		w, ok := e.buckets[dim][key]
		if !ok {
			w = NewWindow(e.cfg.WindowSize)
			e.buckets[dim][key] = w
		}
		w.Push(o.Won)
	}

	e.total++
	e.totalPnL += o.PnL
	if o.Won {
		e.wins++
		e.consecWins++
		e.consecLosses = 0
		e.peakWin = max(e.peakWin, e.consecWins)
	} else {
		e.losses++
		e.consecLosses++
		e.consecWins = 0
		e.worstLoss = max(e.worstLoss, e.consecLosses)
	}

	e.history = append(e.history, o)
	if e.cfg.HistorySize > 0 && len(e.history) > e.cfg.HistorySize {
		e.history = append([]domain.Outcome(nil), e.history[len(e.history)-e.cfg.HistorySize:]...)
	}

	e.recompute()
	if e.listener != nil {
		e.listener(e.Status())
	}
}

func (e *Engine) recompute() {
	e.edgeMult = clamp(e.winRateMultiplier()*e.streakMultiplier(), e.cfg.EdgeMultMin, e.cfg.EdgeMultMax)
	e.stakeMult = e.stakeStep()

	e.weights = make(map[string]map[string]float64, len(e.buckets))
	for dim, byKey := range e.buckets {
		e.weights[dim] = make(map[string]float64, len(byKey))
		for key, w := range byKey {
			e.weights[dim][key] = e.bucketWeight(w)
		}
	}

	const eps = 1e-9
	switch {
	case e.total < e.cfg.MinSamples:
		e.regime = RegimeLearning
	case e.edgeMult < 1-eps:
		e.regime = RegimeAggressive
	case e.edgeMult > 1+eps:
		e.regime = RegimeDefensive
	default:
		e.regime = RegimeNormal
	}
}

func (e *Engine) winRateMultiplier() float64 {
	if e.global.Len() < e.cfg.MinSamples {
		return 1
	}
	return 1 + (e.cfg.WinRatePivot-e.global.WinRate())*e.cfg.WinRateSlope
}

func (e *Engine) streakMultiplier() float64 {
	switch {
	case e.consecLosses >= 5:
		return 1.30
	case e.consecLosses >= 3:
		return 1.15
	case e.consecWins >= 7:
		return 0.80
	case e.consecWins >= 3:
		return 0.90
	}
	return 1
}

func (e *Engine) stakeStep() float64 {
	switch {
	case e.consecLosses >= 5:
		return 0.35
	case e.consecLosses >= 3:
		return 0.55
	case e.consecWins >= 7:
		return 1.40
	case e.consecWins >= 3:
		return 1.12
	}
	return 1
}

func (e *Engine) bucketWeight(w *Window) float64 {
	if w.Len() < e.cfg.BucketMinSamples {
		return 1
	}
	return clamp(1+(w.WinRate()-0.5)*e.cfg.WeightSlope, e.cfg.WeightMin, e.cfg.WeightMax)
}

// EdgeMultiplier scales the minimum edge threshold.
func (e *Engine) EdgeMultiplier() float64 { return e.edgeMult }

// StakeMultiplier scales position size.
func (e *Engine) StakeMultiplier() float64 { return e.stakeMult }

// Regime returns the current posture.
func (e *Engine) Regime() Regime { return e.regime }

// Weight returns the weight of one bucket, 1.0 when unknown.
func (e *Engine) Weight(dim, key string) float64 {
	if w, ok := e.weights[dim][key]; ok {
		return w
	}
	return 1
}

// GetAdjustedEdge scales base by the edge multiplier and by (2 - weight) for
// each dimension present in ctx. Hot buckets lower the bar.
func (e *Engine) GetAdjustedEdge(base float64, ctx domain.DecisionContext) float64 {
	adj := base * e.edgeMult
	present := ctx.Buckets()
	for _, dim := range domain.Dimensions {
		if key, ok := present[dim]; ok {
			adj *= 2 - e.Weight(dim, key)
		}
	}
	return adj
}

// ShouldAvoidDirection vetoes a direction whose recent record is poor.
func (e *Engine) ShouldAvoidDirection(d domain.Direction) bool {
	w, ok := e.buckets[domain.DimDirection][string(d)]
	if !ok || w.Len() < e.cfg.AvoidMinSamples {
		return false
	}
	return w.WinRate() < e.cfg.AvoidWinRate
}

// History returns a copy of the bounded outcome history.
func (e *Engine) History() []domain.Outcome {
	return append([]domain.Outcome(nil), e.history...)
}

// Status returns the derived state for observers.
func (e *Engine) Status() domain.CorrectionStatus {
	st := domain.CorrectionStatus{
		Regime:            string(e.regime),
		EdgeMultiplier:    e.edgeMult,
		StakeMultiplier:   e.stakeMult,
		Weights:           make(map[string]map[string]float64, len(e.weights)),
		WinRates:          make(map[string]map[string]domain.BucketStat, len(e.buckets)),
		GlobalWinRate:     e.global.WinRate(),
		ConsecutiveWins:   e.consecWins,
		ConsecutiveLosses: e.consecLosses,
		PeakWinStreak:     e.peakWin,
		WorstLossStreak:   e.worstLoss,
		TotalBets:         e.total,
		Wins:              e.wins,
		Losses:            e.losses,
		TotalPnL:          e.totalPnL,
	}
	for dim, byKey := range e.weights {
		st.Weights[dim] = make(map[string]float64, len(byKey))
		for k, v := range byKey {
			st.Weights[dim][k] = v
		}
	}
	for dim, byKey := range e.buckets {
		st.WinRates[dim] = make(map[string]domain.BucketStat, len(byKey))
		for k, w := range byKey {
			st.WinRates[dim][k] = domain.BucketStat{Samples: w.Len(), Wins: w.Wins(), WinRate: w.WinRate()}
		}
	}
	return st
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
