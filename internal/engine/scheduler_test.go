package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshiedge/internal/correction"
	"github.com/alanyoungcy/kalshiedge/internal/domain"
	"github.com/alanyoungcy/kalshiedge/internal/edge"
	"github.com/alanyoungcy/kalshiedge/internal/lifecycle"
	"github.com/alanyoungcy/kalshiedge/internal/mock"
	"github.com/alanyoungcy/kalshiedge/internal/risk"
)

var t0 = time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)

type staticSignal struct {
	snap domain.SignalSnapshot
	err  error
}

func (s staticSignal) Snapshot(context.Context) (domain.SignalSnapshot, error) { return s.snap, s.err }

type memSnapshots struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func (m *memSnapshots) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, domain.ErrNotFound
	}
	return m.data, nil
}

func (m *memSnapshots) Save(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

type panicScorer struct{}

func (panicScorer) Score(domain.Contract, domain.SignalSnapshot, time.Time) (*domain.Opportunity, error) {
	panic("scorer exploded")
}

func strikeContract(ticker string, yesAsk int, minutes float64) domain.Contract {
	strike := 65000.0
	return domain.Contract{
		Ticker:      ticker,
		YesAsk:      yesAsk,
		NoAsk:       100 - yesAsk + 2,
		YesBid:      yesAsk - 2,
		NoBid:       100 - yesAsk - 2,
		MinutesLeft: minutes,
		CloseTime:   t0.Add(time.Duration(minutes * float64(time.Minute))),
		Strike:      &strike,
		StrikeType:  domain.StrikeAbove,
	}
}

type harness struct {
	venue     *mock.Venue
	corr      *correction.Engine
	events    *Emitter
	snapshots *memSnapshots
	sched     *Scheduler
	cfg       Config
	deps      Deps
}

func newHarness(t *testing.T, mutate func(*Config, *Deps)) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		venue:     mock.NewVenue(100),
		corr:      correction.New(correction.DefaultConfig()),
		events:    NewEmitter(256, 200),
		snapshots: &memSnapshots{},
	}
	ecfg := edge.DefaultConfig()
	ecfg.MicroEnabled = false
	lcfg := lifecycle.DefaultConfig()

	h.cfg = Config{
		Mode:             "dryrun",
		Account:          "test",
		CycleInterval:    10 * time.Millisecond,
		TimeLimit:        time.Hour,
		Series:           []string{"KXBTC15M", "KXETH15M"},
		MinMinutes:       0.3,
		MaxMinutes:       15,
		MaxPositions:     3,
		MaxPerTicker:     1,
		SnapshotInterval: time.Minute,
	}
	h.deps = Deps{
		Venue:     h.venue,
		Signals:   staticSignal{snap: domain.SignalSnapshot{ReferencePrice: 65010, Volatility5m: 0.10, Oscillator: 50}},
		Model:     edge.NewModel(ecfg, h.corr),
		Sizer:     risk.NewSizer(risk.DefaultConfig()),
		Lifecycle: lifecycle.NewManager(lcfg, h.venue, h.corr, h.events, logger),
		Corrector: h.corr,
		Events:    h.events,
		Snapshots: h.snapshots,
		Now:       func() time.Time { return t0 },
	}
	if mutate != nil {
		mutate(&h.cfg, &h.deps)
	}
	h.sched = New(h.cfg, h.deps, logger)
	require.NoError(t, h.sched.Start(context.Background()))
	return h
}

func (h *harness) types() []domain.EventType {
	var out []domain.EventType
	for _, e := range h.events.Recent() {
		out = append(out, e.Type)
	}
	return out
}

func TestTick_PlacesBestCandidate(t *testing.T) {
	h := newHarness(t, nil)
	h.venue.SetContracts("KXBTC15M",
		strikeContract("KX-NOEDGE", 60, 3),
		strikeContract("KX-EDGE", 50, 3),
		strikeContract("KX-THIN", 53, 3),
	)

	stopped := h.sched.Tick(context.Background(), t0.Add(time.Second))
	require.False(t, stopped)

	placed := h.venue.PlacedOrders()
	require.Len(t, placed, 2)
	assert.Equal(t, "KX-EDGE", placed[0].Ticker)
	assert.Equal(t, "KX-THIN", placed[1].Ticker)
	assert.Equal(t, domain.SideYes, placed[0].Side)
	assert.Equal(t, 2, h.sched.State().OpenCount())

	st := h.sched.Status()
	assert.Len(t, st.OpenPositions, 2)
	assert.Equal(t, int64(1), st.Cycle)
	assert.Contains(t, h.types(), domain.EventBetPlaced)
	assert.Contains(t, h.types(), domain.EventHeartbeat)
}

func TestTick_FiltersExpiryWindowAndHeldTickers(t *testing.T) {
	h := newHarness(t, nil)
	h.venue.SetContracts("KXBTC15M",
		strikeContract("KX-EARLY", 50, 20),
		strikeContract("KX-LATE", 50, 0.1),
		strikeContract("KX-OK", 50, 3),
	)

	h.sched.Tick(context.Background(), t0.Add(time.Second))
	h.sched.Tick(context.Background(), t0.Add(2*time.Second))

	placed := h.venue.PlacedOrders()
	require.Len(t, placed, 1)
	assert.Equal(t, "KX-OK", placed[0].Ticker)
}

func TestTick_DiscoveryErrorIsolated(t *testing.T) {
	h := newHarness(t, nil)
	h.venue.SetListError("KXBTC15M", errors.New("boom"))
	h.venue.SetContracts("KXETH15M", strikeContract("KX-ETH", 50, 3))

	h.sched.Tick(context.Background(), t0.Add(time.Second))

	placed := h.venue.PlacedOrders()
	require.Len(t, placed, 1)
	assert.Equal(t, "KX-ETH", placed[0].Ticker)
}

func TestTick_SignalUnavailableSkipsDiscovery(t *testing.T) {
	h := newHarness(t, func(_ *Config, d *Deps) {
		d.Signals = staticSignal{err: domain.ErrSignalUnavailable}
	})
	h.venue.SetContracts("KXBTC15M", strikeContract("KX-EDGE", 50, 3))

	assert.False(t, h.sched.Tick(context.Background(), t0.Add(time.Second)))
	assert.Empty(t, h.venue.PlacedOrders())
	assert.Contains(t, h.types(), domain.EventHeartbeat)
}

func TestTick_MaxPositionsSkipsDiscovery(t *testing.T) {
	h := newHarness(t, func(c *Config, _ *Deps) { c.MaxPositions = 1 })
	h.venue.SetContracts("KXBTC15M", strikeContract("KX-A", 50, 3), strikeContract("KX-B", 51, 3))

	h.sched.Tick(context.Background(), t0.Add(time.Second))
	h.sched.Tick(context.Background(), t0.Add(2*time.Second))

	assert.Len(t, h.venue.PlacedOrders(), 1)
}

func TestTick_TimeLimitIsTerminal(t *testing.T) {
	h := newHarness(t, nil)
	h.venue.SetContracts("KXBTC15M", strikeContract("KX-EDGE", 50, 3))

	assert.True(t, h.sched.Tick(context.Background(), t0.Add(time.Hour+time.Second)))
	assert.True(t, h.sched.Tick(context.Background(), t0.Add(time.Hour+2*time.Second)))

	assert.Empty(t, h.venue.PlacedOrders())
	st := h.sched.Status()
	assert.True(t, st.Stopped)
	assert.Equal(t, StopTimeLimit, st.StopReason)
	assert.Contains(t, h.types(), domain.EventEngineStopped)
}

func TestTick_TargetHit(t *testing.T) {
	h := newHarness(t, func(c *Config, _ *Deps) { c.TargetBalance = 100 })

	assert.True(t, h.sched.Tick(context.Background(), t0.Add(time.Second)))
	assert.Contains(t, h.types(), domain.EventTargetHit)
	assert.Equal(t, StopTarget, h.sched.Status().StopReason)
}

func TestTick_BalanceRefreshFailureKeepsBalance(t *testing.T) {
	h := newHarness(t, nil)
	h.venue.SetBalance(0, errors.New("venue down"))

	h.sched.Tick(context.Background(), t0.Add(time.Second))
	assert.Equal(t, 100.0, h.sched.State().Balance)
}

func TestTick_SettlementCreditedBeforeTickCountsOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.venue.SetContracts("KXBTC15M", strikeContract("KX-EDGE", 50, 3))

	h.sched.Tick(context.Background(), t0.Add(time.Second))
	st := h.sched.State()
	require.Equal(t, 1, st.OpenCount())
	var pos *domain.Position
	for _, p := range st.Positions {
		pos = p
	}
	assert.InDelta(t, 100.0, st.Balance, 1e-9)

	// The venue settles the contract and credits $1 per contract between ticks.
	h.venue.SetContracts("KXBTC15M")
	cash, err := h.venue.GetBalance(context.Background())
	require.NoError(t, err)
	h.venue.SetBalance(cash+float64(pos.Contracts), nil)
	h.venue.SetStatus(domain.ContractStatus{Ticker: "KX-EDGE", Status: domain.ContractSettled, Result: domain.SideYes})

	want := 100 + float64((100-pos.EntryPrice)*pos.Contracts)/100
	h.sched.Tick(context.Background(), t0.Add(2*time.Second))
	assert.Equal(t, 0, st.OpenCount())
	assert.InDelta(t, want, st.Balance, 1e-9)
	assert.InDelta(t, want, st.Peak, 1e-9)

	h.sched.Tick(context.Background(), t0.Add(3*time.Second))
	assert.InDelta(t, want, st.Balance, 1e-9)
	assert.InDelta(t, want, st.Peak, 1e-9)
	assert.Zero(t, st.Drawdown())
}

func TestTick_PanicRecovered(t *testing.T) {
	h := newHarness(t, func(_ *Config, d *Deps) { d.Model = panicScorer{} })
	h.venue.SetContracts("KXBTC15M", strikeContract("KX-EDGE", 50, 3))

	assert.False(t, h.sched.Tick(context.Background(), t0.Add(time.Second)))
	assert.Contains(t, h.types(), domain.EventTickError)

	assert.False(t, h.sched.Tick(context.Background(), t0.Add(2*time.Second)))
	assert.Equal(t, int64(2), h.sched.Status().Cycle)
}

func TestTick_LockHeldSkips(t *testing.T) {
	h := newHarness(t, func(_ *Config, d *Deps) { d.Locks = heldLock{} })
	h.venue.SetContracts("KXBTC15M", strikeContract("KX-EDGE", 50, 3))

	assert.False(t, h.sched.Tick(context.Background(), t0.Add(time.Second)))
	assert.Empty(t, h.venue.PlacedOrders())
}

func TestTick_EmergencyPauseAndExit(t *testing.T) {
	h := newHarness(t, nil)
	h.venue.SetContracts("KXBTC15M", strikeContract("KX-EDGE", 50, 3))
	st := h.sched.State()
	st.EmergencyUntil = t0.Add(time.Minute)

	h.sched.Tick(context.Background(), t0.Add(time.Second))
	assert.Empty(t, h.venue.PlacedOrders())

	h.sched.Tick(context.Background(), t0.Add(2*time.Minute))
	h.sched.Tick(context.Background(), t0.Add(3*time.Minute))

	exited := 0
	for _, typ := range h.types() {
		if typ == domain.EventEmergencyExited {
			exited++
		}
	}
	assert.Equal(t, 1, exited)
	assert.NotEmpty(t, h.venue.PlacedOrders())
}

func TestRun_SavesSnapshotAndRestores(t *testing.T) {
	clock := t0
	var mu sync.Mutex
	h := newHarness(t, func(c *Config, d *Deps) {
		c.TimeLimit = time.Minute
		d.Now = func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(40 * time.Second)
			return clock
		}
	})
	h.corr.RecordOutcome(domain.Outcome{Won: true, PnL: 0.5, Context: domain.DecisionContext{Direction: domain.DirectionUp}})

	require.NoError(t, h.sched.Run(context.Background()))
	assert.True(t, h.sched.Status().Stopped)
	require.NotNil(t, h.snapshots.data)

	fresh := correction.New(correction.DefaultConfig())
	h.deps.Corrector = fresh
	again := New(h.cfg, h.deps, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, again.Start(context.Background()))
	assert.Equal(t, 1, fresh.Status().TotalBets)
}

func TestRun_ReturnsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.sched.Run(ctx))
	assert.Equal(t, StopShutdown, h.sched.Status().StopReason)
	assert.Equal(t, 1, h.snapshots.saves)
}

func TestEmitter_DropsWhenFull(t *testing.T) {
	e := NewEmitter(1, 3)
	for i := 0; i < 5; i++ {
		e.Emit(domain.EventHeartbeat, int64(i), nil)
	}
	assert.Equal(t, int64(4), e.Dropped())
	assert.Len(t, e.Recent(), 3)

	ev := <-e.Events()
	assert.Equal(t, int64(0), ev.Cycle)

	e.Close()
	e.Emit(domain.EventHeartbeat, 9, nil)
	_, ok := <-e.Events()
	assert.False(t, ok)
}
