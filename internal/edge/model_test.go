package edge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

var scoredAt = time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)

func strikeContract(yesAsk, noAsk int) domain.Contract {
	strike := 65000.0
	return domain.Contract{
		Ticker:      "KXBTC15M-26MAY041515-T65000",
		YesAsk:      yesAsk,
		NoAsk:       noAsk,
		MinutesLeft: 3,
		Strike:      &strike,
		StrikeType:  domain.StrikeAbove,
	}
}

func strikeSignal() domain.SignalSnapshot {
	return domain.SignalSnapshot{ReferencePrice: 65010, Volatility5m: 0.10, Oscillator: 50, Trend: domain.TrendFlat}
}

type fakeThresholds struct {
	mult  float64
	avoid domain.Direction
}

func (f fakeThresholds) GetAdjustedEdge(base float64, _ domain.DecisionContext) float64 {
	return base * f.mult
}

func (f fakeThresholds) ShouldAvoidDirection(d domain.Direction) bool { return d == f.avoid }

func TestFee_SymmetricAndPeaksAtMidpoint(t *testing.T) {
	peak := Fee(50)
	assert.InDelta(t, 1.75, peak, 1e-12)
	for p := 1.0; p < 100; p++ {
		assert.InDelta(t, Fee(p), Fee(100-p), 1e-12, "p=%v", p)
		assert.LessOrEqual(t, Fee(p), peak)
	}
	assert.Equal(t, 0.0, Fee(0))
	assert.Equal(t, 0.0, Fee(100))
}

func TestEvaluateSide(t *testing.T) {
	ev := EvaluateSide(0.60, 50)
	assert.InDelta(t, 0.10, ev.Edge, 1e-12)
	assert.InDelta(t, 0.0175, ev.Fee, 1e-12)
	assert.InDelta(t, 0.4825, ev.NetPayout, 1e-12)
	assert.InDelta(t, 0.60*0.4825-0.40*0.50, ev.EV, 1e-12)
}

func TestQuant_StrikeScenarioProbability(t *testing.T) {
	m := NewModel(DefaultConfig(), nil)
	p, kind, qd, hd := m.YesProbability(strikeContract(50, 50), strikeSignal())

	assert.Equal(t, domain.KindQuant, kind)
	require.NotNil(t, qd)
	assert.Nil(t, hd)
	assert.Greater(t, qd.Distance, 0.0)
	assert.InDelta(t, 0.5837, p, 0.001)
}

func TestQuant_BelowStrikeFlipsYes(t *testing.T) {
	m := NewModel(DefaultConfig(), nil)
	c := strikeContract(50, 50)
	c.StrikeType = domain.StrikeBelow
	p, _, _, _ := m.YesProbability(c, strikeSignal())
	assert.InDelta(t, 1-0.5837, p, 0.001)
}

func TestQuant_VolFloorApplies(t *testing.T) {
	m := NewModel(DefaultConfig(), nil)
	sig := strikeSignal()
	sig.Volatility5m = 0
	_, _, qd, _ := m.YesProbability(strikeContract(50, 50), sig)
	require.NotNil(t, qd)
	assert.Greater(t, qd.ScaledVol, 0.0)
}

func TestScore_StrikeScenarioEmitsAtThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MicroEnabled = false
	m := NewModel(cfg, nil)

	opp, err := m.Score(strikeContract(53, 48), strikeSignal(), scoredAt)
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.Equal(t, domain.SideYes, opp.Side)
	assert.Equal(t, domain.KindQuant, opp.Kind)
	assert.True(t, opp.Valid())
	assert.Equal(t, domain.DirectionUp, opp.Context.Direction)
	assert.Equal(t, domain.TimeUS, opp.Context.TimeBucket)
	assert.Greater(t, opp.EV, 0.0)

	opp, err = m.Score(strikeContract(54, 48), strikeSignal(), scoredAt)
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestScore_ThinEdgeBecomesMicro(t *testing.T) {
	m := NewModel(DefaultConfig(), nil)
	opp, err := m.Score(strikeContract(53, 48), strikeSignal(), scoredAt)
	require.NoError(t, err)
	require.NotNil(t, opp)

	assert.Equal(t, domain.KindMicro, opp.Kind)
	require.NotNil(t, opp.Micro)
	assert.Equal(t, domain.KindQuant, opp.Micro.Source)
	assert.True(t, opp.Valid())
}

func TestScore_ThresholdsRaiseBarAndVeto(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MicroEnabled = false

	strict := NewModel(cfg, fakeThresholds{mult: 1.5})
	opp, err := strict.Score(strikeContract(53, 48), strikeSignal(), scoredAt)
	require.NoError(t, err)
	assert.Nil(t, opp)

	veto := NewModel(cfg, fakeThresholds{mult: 1, avoid: domain.DirectionUp})
	opp, err = veto.Score(strikeContract(50, 48), strikeSignal(), scoredAt)
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestScore_PicksBestSideByEV(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MicroEnabled = false
	m := NewModel(cfg, nil)

	sig := strikeSignal()
	sig.ReferencePrice = 64900
	opp, err := m.Score(strikeContract(20, 40), sig, scoredAt)
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.Equal(t, domain.SideNo, opp.Side)
	assert.Equal(t, domain.DirectionDown, opp.Context.Direction)
}

func TestScore_NoLiquidity(t *testing.T) {
	m := NewModel(DefaultConfig(), nil)
	_, err := m.Score(strikeContract(0, 100), strikeSignal(), scoredAt)
	assert.ErrorIs(t, err, domain.ErrNoLiquidity)
}

func TestScore_HeuristicNeedsBothLegsQuoted(t *testing.T) {
	m := NewModel(DefaultConfig(), nil)
	sig := domain.SignalSnapshot{Oscillator: 50}

	opp, err := m.Score(domain.Contract{Ticker: "KXBTC15M-X", YesAsk: 0, NoAsk: 50, MinutesLeft: 10}, sig, scoredAt)
	assert.ErrorIs(t, err, domain.ErrNoLiquidity)
	assert.Nil(t, opp)

	_, err = m.Score(domain.Contract{Ticker: "KXBTC15M-X", YesAsk: 50, NoAsk: 100, MinutesLeft: 10}, sig, scoredAt)
	assert.ErrorIs(t, err, domain.ErrNoLiquidity)

	// A strike with a reference price is scored by the quant model, which
	// prices each leg on its own.
	c := strikeContract(0, 40)
	_, err = m.Score(c, strikeSignal(), scoredAt)
	assert.NoError(t, err)
}

func TestHeuristic_NudgesAndAmplifies(t *testing.T) {
	m := NewModel(DefaultConfig(), nil)
	c := domain.Contract{Ticker: "KXBTC15M-X", YesAsk: 50, NoAsk: 50, MinutesLeft: 15}
	sig := domain.SignalSnapshot{Momentum5m: 0.3, Oscillator: 50, Trend: domain.TrendStrongUp}

	p, kind, qd, hd := m.YesProbability(c, sig)
	assert.Equal(t, domain.KindHeuristic, kind)
	assert.Nil(t, qd)
	require.NotNil(t, hd)
	assert.InDelta(t, 0.5, hd.Mid, 1e-12)
	assert.InDelta(t, 0.03, hd.MomentumNudge, 1e-12)
	assert.InDelta(t, 0.03, hd.TrendNudge, 1e-12)
	assert.InDelta(t, 0.56, p, 1e-9)

	c.MinutesLeft = 0
	near, _, _, _ := m.YesProbability(c, sig)
	assert.Greater(t, near, p)
}

func TestHeuristic_OscillatorOnlyBeyondExtreme(t *testing.T) {
	m := NewModel(DefaultConfig(), nil)
	c := domain.Contract{YesAsk: 50, NoAsk: 50, MinutesLeft: 15}

	_, _, _, hd := m.YesProbability(c, domain.SignalSnapshot{Oscillator: 65})
	assert.Equal(t, 0.0, hd.OscillatorNudge)

	_, _, _, hd = m.YesProbability(c, domain.SignalSnapshot{Oscillator: 85})
	assert.Less(t, hd.OscillatorNudge, 0.0)
}

func TestHeuristic_Clamped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MomentumClip = 1
	m := NewModel(cfg, nil)
	c := domain.Contract{YesAsk: 97, NoAsk: 2, MinutesLeft: 0}
	p, _, _, _ := m.YesProbability(c, domain.SignalSnapshot{Momentum5m: 10, Oscillator: 50})
	assert.Equal(t, cfg.ProbMax, p)
}

func TestVolRegimeFor(t *testing.T) {
	assert.Equal(t, domain.VolLow, VolRegimeFor(0.01, 0.05, 0.2))
	assert.Equal(t, domain.VolNormal, VolRegimeFor(0.1, 0.05, 0.2))
	assert.Equal(t, domain.VolHigh, VolRegimeFor(0.3, 0.05, 0.2))
}
