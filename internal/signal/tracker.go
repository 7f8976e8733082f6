// Package signal turns a stream of reference asset prices into the
// SignalSnapshot consumed by the edge model.
package signal

import (
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// TrackerConfig tunes the indicator derivation.
type TrackerConfig struct {
	History      time.Duration // price points older than this are dropped
	RSIPeriods   int           // one-minute bars in the oscillator
	VolBars      int           // one-minute returns in the volatility estimate
	TrendStrong  float64       // 15m momentum (percent) for strong_up/strong_down
	TrendWeak    float64       // 15m momentum (percent) for up/down
	MomentumNorm float64       // 5m momentum (percent) mapped to composite ±0.76
}

// DefaultTrackerConfig returns the defaults used by edgebot.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		History:      45 * time.Minute,
		RSIPeriods:   14,
		VolBars:      30,
		TrendStrong:  0.30,
		TrendWeak:    0.08,
		MomentumNorm: 0.20,
	}
}

// Tracker keeps a bounded, per-second price history. It is safe for
// concurrent use: the trade stream writes while the tick goroutine reads.
type Tracker struct {
	cfg TrackerConfig

	mu     sync.RWMutex
	points []domain.PricePoint
}

// NewTracker creates an empty tracker.
func NewTracker(cfg TrackerConfig) *Tracker {
	return &Tracker{cfg: cfg}
}

// Add records a price. Points within the same second overwrite each other.
func (t *Tracker) Add(price float64, at time.Time) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}
	at = at.Truncate(time.Second)

	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.points); n > 0 {
		last := t.points[n-1]
		switch {
		case at.Equal(last.At):
			t.points[n-1].Price = price
			return
		case at.Before(last.At):
			return
		}
	}
	t.points = append(t.points, domain.PricePoint{Price: price, At: at})

	cutoff := at.Add(-t.cfg.History)
	drop := 0
	for drop < len(t.points) && t.points[drop].At.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		t.points = append(t.points[:0], t.points[drop:]...)
	}
}

// Len returns the number of stored points.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.points)
}

// Latest returns the newest point.
func (t *Tracker) Latest() (domain.PricePoint, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.points) == 0 {
		return domain.PricePoint{}, false
	}
	return t.points[len(t.points)-1], true
}

// Snapshot derives indicators at now. Price and source are left for the
// caller to fill.
func (t *Tracker) Snapshot(now time.Time) domain.SignalSnapshot {
	t.mu.RLock()
	pts := make([]domain.PricePoint, len(t.points))
	copy(pts, t.points)
	t.mu.RUnlock()

	snap := domain.SignalSnapshot{Trend: domain.TrendFlat, Oscillator: 50, FetchedAt: now}
	if len(pts) == 0 {
		return snap
	}
	last := pts[len(pts)-1].Price
	snap.ReferencePrice = last
	snap.Momentum1m = momentum(pts, last, now.Add(-time.Minute))
	snap.Momentum5m = momentum(pts, last, now.Add(-5*time.Minute))
	snap.Momentum15m = momentum(pts, last, now.Add(-15*time.Minute))

	bars := minuteCloses(pts, now, max(t.cfg.VolBars, t.cfg.RSIPeriods)+1)
	snap.Volatility5m = volatility5m(tail(bars, t.cfg.VolBars+1))
	snap.Oscillator = rsi(tail(bars, t.cfg.RSIPeriods+1))
	snap.Trend = t.trend(snap.Momentum15m, snap.Momentum5m)
	snap.CompositeScore = t.composite(snap)

	span := now.Sub(pts[0].At)
	snap.Confidence = math.Min(span.Minutes()/15, 1)
	return snap
}

func (t *Tracker) trend(m15, m5 float64) string {
	switch {
	case m15 >= t.cfg.TrendStrong && m5 > 0:
		return domain.TrendStrongUp
	case m15 <= -t.cfg.TrendStrong && m5 < 0:
		return domain.TrendStrongDown
	case m15 >= t.cfg.TrendWeak:
		return domain.TrendUp
	case m15 <= -t.cfg.TrendWeak:
		return domain.TrendDown
	}
	return domain.TrendFlat
}

func (t *Tracker) composite(s domain.SignalSnapshot) float64 {
	norm := t.cfg.MomentumNorm
	if norm <= 0 {
		norm = 0.20
	}
	score := 0.5*math.Tanh(s.Momentum5m/norm) +
		0.3*math.Tanh(s.Momentum15m/(3*norm)) +
		0.2*(s.Oscillator-50)/50
	return math.Max(-1, math.Min(1, score))
}

// momentum is the percent change from the last point at or before since.
func momentum(pts []domain.PricePoint, last float64, since time.Time) float64 {
	base := 0.0
	for _, p := range pts {
		if p.At.After(since) {
			break
		}
		base = p.Price
	}
	if base == 0 {
		base = pts[0].Price
	}
	return (last - base) / base * 100
}

// minuteCloses returns up to n one-minute closes ending at now, oldest
// first. Minutes without a trade carry the previous close.
func minuteCloses(pts []domain.PricePoint, now time.Time, n int) []float64 {
	end := now.Truncate(time.Minute)
	out := make([]float64, 0, n)
	for i := n - 1; i >= 0; i-- {
		boundary := end.Add(-time.Duration(i) * time.Minute)
		closePx := 0.0
		for _, p := range pts {
			if p.At.After(boundary) {
				break
			}
			closePx = p.Price
		}
		if closePx > 0 {
			out = append(out, closePx)
		}
	}
	if len(pts) > 0 {
		latest := pts[len(pts)-1]
		if latest.At.After(end) {
			out = append(out, latest.Price)
		}
	}
	return out
}

// volatility5m scales the stdev of one-minute returns to a five-minute
// horizon, in percent.
func volatility5m(closes []float64) float64 {
	if len(closes) < 3 {
		return 0
	}
	rets := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		rets = append(rets, (closes[i]-closes[i-1])/closes[i-1])
	}
	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	var ss float64
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	sd := math.Sqrt(ss / float64(len(rets)-1))
	return sd * math.Sqrt(5) * 100
}

// rsi is the simple-average relative strength index; 50 when undefined.
func rsi(closes []float64) float64 {
	if len(closes) < 3 {
		return 50
	}
	var gain, loss float64
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	switch {
	case gain == 0 && loss == 0:
		return 50
	case loss == 0:
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}
