package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshiedge/internal/correction"
	"github.com/alanyoungcy/kalshiedge/internal/domain"
	"github.com/alanyoungcy/kalshiedge/internal/mock"
	"github.com/alanyoungcy/kalshiedge/internal/platform/paper"
	"github.com/alanyoungcy/kalshiedge/internal/risk"
)

var t0 = time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)

type sink struct{ events []domain.Event }

func (s *sink) Emit(t domain.EventType, cycle int64, payload map[string]any) {
	s.events = append(s.events, domain.Event{Type: t, Cycle: cycle, Payload: payload})
}

func (s *sink) has(t domain.EventType) bool {
	for _, e := range s.events {
		if e.Type == t {
			return true
		}
	}
	return false
}

type memOutcomes struct{ rows []domain.Outcome }

func (m *memOutcomes) Insert(_ context.Context, o domain.Outcome) error {
	m.rows = append(m.rows, o)
	return nil
}

func (m *memOutcomes) List(context.Context, domain.ListOpts) ([]domain.Outcome, error) {
	return m.rows, nil
}

func (m *memOutcomes) Summary(context.Context, time.Time) (domain.OutcomeSummary, error) {
	return domain.OutcomeSummary{Count: len(m.rows)}, nil
}

type fixture struct {
	venue    *mock.Venue
	events   *sink
	corr     *correction.Engine
	outcomes *memOutcomes
	mgr      *Manager
	state    *domain.EngineState
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		venue:    mock.NewVenue(100),
		events:   &sink{},
		corr:     correction.New(correction.DefaultConfig()),
		outcomes: &memOutcomes{},
		state:    domain.NewEngineState(100, t0),
	}
	n := 0
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.mgr = NewManager(DefaultConfig(), f.venue, f.corr, f.events, logger,
		WithOutcomeStore(f.outcomes),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)
	return f
}

func opportunity(ticker string, price int, kind domain.OpportunityKind) domain.Opportunity {
	o := domain.Opportunity{
		Kind:      kind,
		Contract:  domain.Contract{Ticker: ticker, YesAsk: price, NoAsk: 100 - price + 2, MinutesLeft: 10, CloseTime: t0.Add(10 * time.Minute)},
		Side:      domain.SideYes,
		Price:     price,
		ModelProb: 0.55,
		Context:   domain.DecisionContext{Direction: domain.DirectionUp, Tier: domain.TierForPrice(price)},
	}
	if kind == domain.KindMicro {
		o.Micro = &domain.MicroDetail{Source: domain.KindQuant}
	} else {
		o.Quant = &domain.QuantDetail{}
	}
	return o
}

func (f *fixture) place(t *testing.T, ticker string, price, contracts int, kind domain.OpportunityKind) *domain.Position {
	t.Helper()
	f.venue.SetContracts(ticker, domain.Contract{Ticker: ticker})
	f.venue.SetStatus(domain.ContractStatus{Ticker: ticker, Status: domain.ContractOpen, YesBid: price, NoBid: 100 - price - 2, MinutesLeft: 10})
	pos, err := f.mgr.Place(context.Background(), f.state, opportunity(ticker, price, kind), risk.Stake{Contracts: contracts}, t0)
	require.NoError(t, err)
	return pos
}

func TestPlace_ExecutedOrderIsFilled(t *testing.T) {
	f := newFixture(t)
	pos := f.place(t, "KX-A", 40, 2, domain.KindQuant)

	assert.Equal(t, domain.PositionFilled, pos.State)
	assert.InDelta(t, 0.80, pos.Cost, 1e-9)
	assert.Equal(t, 1, f.state.OpenCount())
	assert.True(t, f.events.has(domain.EventBetPlaced))

	placed := f.venue.PlacedOrders()
	require.Len(t, placed, 1)
	assert.Equal(t, domain.ActionBuy, placed[0].Action)
	assert.Equal(t, 40, placed[0].LimitPrice)
	assert.NotEmpty(t, placed[0].ClientOrderID)
	assert.Equal(t, 100.0, f.state.Balance)
}

func TestPlace_Limits(t *testing.T) {
	f := newFixture(t)
	f.place(t, "KX-A", 40, 1, domain.KindQuant)

	_, err := f.mgr.Place(context.Background(), f.state, opportunity("KX-A", 40, domain.KindQuant), risk.Stake{Contracts: 1}, t0)
	assert.ErrorIs(t, err, domain.ErrPositionLimit)

	f.place(t, "KX-B", 40, 1, domain.KindQuant)
	f.place(t, "KX-C", 40, 1, domain.KindQuant)
	_, err = f.mgr.Place(context.Background(), f.state, opportunity("KX-D", 40, domain.KindQuant), risk.Stake{Contracts: 1}, t0)
	assert.ErrorIs(t, err, domain.ErrPositionLimit)
}

func TestPlace_RejectedOrder(t *testing.T) {
	f := newFixture(t)
	f.venue.OnPlace = func(domain.OrderRequest) domain.OrderHandle {
		return domain.OrderHandle{Status: domain.OrderCanceled}
	}
	_, err := f.mgr.Place(context.Background(), f.state, opportunity("KX-A", 40, domain.KindQuant), risk.Stake{Contracts: 1}, t0)
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
	assert.Equal(t, 0, f.state.OpenCount())
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, nil
}

func TestPlace_RateLimited(t *testing.T) {
	f := newFixture(t)
	f.mgr = NewManager(DefaultConfig(), f.venue, f.corr, f.events, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithRateLimiter(denyLimiter{}))
	_, err := f.mgr.Place(context.Background(), f.state, opportunity("KX-A", 40, domain.KindQuant), risk.Stake{Contracts: 1}, t0)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Empty(t, f.venue.PlacedOrders())
}

func TestProcess_TakeProfitScenario(t *testing.T) {
	f := newFixture(t)
	pos := f.place(t, "KX-A", 40, 2, domain.KindQuant)
	f.venue.SetStatus(domain.ContractStatus{Ticker: "KX-A", Status: domain.ContractOpen, YesBid: 47, NoBid: 50, MinutesLeft: 8})

	f.mgr.Process(context.Background(), f.state, t0.Add(time.Minute))

	assert.InDelta(t, 100.14, f.state.Balance, 1e-9)
	assert.InDelta(t, 100.14, f.state.Peak, 1e-9)
	assert.Equal(t, 1, f.state.ConsecutiveWins)
	assert.Equal(t, 0, f.state.OpenCount())
	assert.Equal(t, domain.PositionEarlyExit, pos.State)

	require.Len(t, f.state.Recent, 1)
	o := f.state.Recent[0]
	assert.InDelta(t, 0.14, o.PnL, 1e-9)
	assert.True(t, o.Won)
	assert.Equal(t, string(ExitTakeProfit), o.Reason)
	assert.Equal(t, domain.ResolutionEarlyExit, o.Resolution)

	placed := f.venue.PlacedOrders()
	require.Len(t, placed, 2)
	assert.Equal(t, domain.ActionSell, placed[1].Action)
	assert.Equal(t, 47, placed[1].LimitPrice)

	assert.Equal(t, 1, f.corr.Status().TotalBets)
	assert.Len(t, f.outcomes.rows, 1)
	assert.True(t, f.events.has(domain.EventBetResolved))
	assert.True(t, f.events.has(domain.EventCorrection))
}

func TestResolve_Idempotent(t *testing.T) {
	f := newFixture(t)
	pos := f.place(t, "KX-A", 40, 2, domain.KindQuant)
	r := resolution{exitPrice: 100, pnl: 1.2, won: true, kind: domain.ResolutionSettled, reason: "settled_yes"}

	_, err := f.mgr.resolve(context.Background(), f.state, pos, domain.PositionSettled, CondSettled, r, t0)
	require.NoError(t, err)
	balance, wins := f.state.Balance, f.state.ConsecutiveWins

	_, err = f.mgr.resolve(context.Background(), f.state, pos, domain.PositionSettled, CondSettled, r, t0)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	_, err = f.mgr.resolve(context.Background(), f.state, pos, domain.PositionEarlyExit, CondExitFilled, r, t0)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	assert.Equal(t, balance, f.state.Balance)
	assert.Equal(t, wins, f.state.ConsecutiveWins)
	assert.Equal(t, 1, f.corr.Status().TotalBets)
	assert.Len(t, f.state.Recent, 1)
}

func TestProcess_Settlement(t *testing.T) {
	f := newFixture(t)
	win := f.place(t, "KX-A", 40, 2, domain.KindQuant)
	loss := f.place(t, "KX-B", 30, 1, domain.KindQuant)
	f.venue.SetStatus(domain.ContractStatus{Ticker: "KX-A", Status: domain.ContractSettled, Result: domain.SideYes})
	f.venue.SetStatus(domain.ContractStatus{Ticker: "KX-B", Status: domain.ContractSettled, Result: domain.SideNo})

	f.mgr.Process(context.Background(), f.state, t0.Add(15*time.Minute))

	assert.Equal(t, domain.PositionSettled, win.State)
	assert.Equal(t, domain.PositionSettled, loss.State)
	assert.InDelta(t, 100+1.20-0.30, f.state.Balance, 1e-9)
	assert.Equal(t, 0, f.state.OpenCount())
	assert.Equal(t, 1, f.state.ConsecutiveLosses)
}

func TestProcess_ClosedWithoutResultWaits(t *testing.T) {
	f := newFixture(t)
	pos := f.place(t, "KX-A", 40, 2, domain.KindQuant)
	f.venue.SetStatus(domain.ContractStatus{Ticker: "KX-A", Status: domain.ContractClosed})

	f.mgr.Process(context.Background(), f.state, t0.Add(15*time.Minute))

	assert.Equal(t, domain.PositionFilled, pos.State)
	assert.Equal(t, 1, f.state.OpenCount())
	assert.Equal(t, 100.0, f.state.Balance)
}

func TestProcess_NotFoundAbandons(t *testing.T) {
	f := newFixture(t)
	pos := f.place(t, "KX-A", 40, 2, domain.KindQuant)
	f.venue.SetStatusError("KX-A", fmt.Errorf("kalshi: %w", domain.ErrNotFound))

	f.mgr.Process(context.Background(), f.state, t0.Add(time.Minute))

	assert.Equal(t, domain.PositionAbandoned, pos.State)
	assert.Equal(t, 0, f.state.OpenCount())
	assert.Equal(t, 100.0, f.state.Balance)
	assert.Empty(t, f.state.Recent)
	assert.Equal(t, 0, f.corr.Status().TotalBets)
	assert.True(t, f.events.has(domain.EventPositionAbandoned))
}

func TestProcess_TransientErrorKeepsPosition(t *testing.T) {
	f := newFixture(t)
	pos := f.place(t, "KX-A", 40, 2, domain.KindQuant)
	f.venue.SetStatusError("KX-A", errors.New("timeout"))

	f.mgr.Process(context.Background(), f.state, t0.Add(time.Minute))

	assert.Equal(t, domain.PositionFilled, pos.State)
	assert.Equal(t, 1, f.state.OpenCount())
}

func TestProcess_StaleOrderCancelled(t *testing.T) {
	f := newFixture(t)
	f.venue.OnPlace = func(req domain.OrderRequest) domain.OrderHandle {
		return domain.OrderHandle{Status: domain.OrderResting, RemainingCount: req.Count}
	}
	pos := f.place(t, "KX-A", 40, 3, domain.KindQuant)
	require.Equal(t, domain.PositionPlaced, pos.State)

	f.mgr.Process(context.Background(), f.state, t0.Add(2*time.Minute))
	assert.Equal(t, domain.PositionPlaced, pos.State)
	assert.Empty(t, f.venue.Cancelled)

	f.mgr.Process(context.Background(), f.state, t0.Add(5*time.Minute))
	assert.Equal(t, domain.PositionCancelled, pos.State)
	assert.Equal(t, []string{pos.OrderID}, f.venue.Cancelled)
	assert.Equal(t, 0, f.state.OpenCount())
	assert.Equal(t, 0.0, f.state.Exposure())
	assert.Equal(t, 100.0, f.state.Balance)
	assert.True(t, f.events.has(domain.EventBetCancelled))
}

func TestProcess_StalePartialFillShrinks(t *testing.T) {
	f := newFixture(t)
	f.venue.OnPlace = func(req domain.OrderRequest) domain.OrderHandle {
		return domain.OrderHandle{Status: domain.OrderResting, FilledCount: 1, RemainingCount: req.Count - 1}
	}
	pos := f.place(t, "KX-A", 40, 3, domain.KindQuant)

	f.mgr.Process(context.Background(), f.state, t0.Add(6*time.Minute))

	assert.Equal(t, domain.PositionFilled, pos.State)
	assert.Equal(t, 1, pos.Contracts)
	assert.InDelta(t, 0.40, pos.Cost, 1e-9)
}

func TestProcess_FillDetectedFromLedger(t *testing.T) {
	f := newFixture(t)
	f.venue.OnPlace = func(req domain.OrderRequest) domain.OrderHandle {
		return domain.OrderHandle{Status: domain.OrderResting, RemainingCount: req.Count}
	}
	pos := f.place(t, "KX-A", 40, 2, domain.KindQuant)
	f.venue.SetOrderError(errors.New("order lookup down"))
	f.venue.AddFill(domain.Fill{OrderID: pos.OrderID, Ticker: "KX-A", Action: domain.ActionBuy, Count: 2, Price: 40})

	f.mgr.Process(context.Background(), f.state, t0.Add(time.Minute))

	assert.Equal(t, domain.PositionFilled, pos.State)
}

func TestProcess_UnfilledAtSettlementCancelled(t *testing.T) {
	f := newFixture(t)
	f.venue.OnPlace = func(req domain.OrderRequest) domain.OrderHandle {
		return domain.OrderHandle{Status: domain.OrderResting, RemainingCount: req.Count}
	}
	pos := f.place(t, "KX-A", 40, 2, domain.KindQuant)
	f.venue.SetStatus(domain.ContractStatus{Ticker: "KX-A", Status: domain.ContractSettled, Result: domain.SideYes})

	f.mgr.Process(context.Background(), f.state, t0.Add(time.Minute))

	assert.Equal(t, domain.PositionCancelled, pos.State)
	assert.Equal(t, 100.0, f.state.Balance)
}

func TestProcess_EmergencyAtExactlySixtyPercent(t *testing.T) {
	f := newFixture(t)
	a := f.place(t, "KX-A", 40, 2, domain.KindQuant)
	b := f.place(t, "KX-B", 30, 1, domain.KindMicro)
	f.state.Balance = 40

	now := t0.Add(time.Minute)
	f.mgr.Process(context.Background(), f.state, now)

	assert.Equal(t, domain.PositionEarlyExit, a.State)
	assert.Equal(t, domain.PositionEarlyExit, b.State)
	assert.Equal(t, string(ExitEmergency), a.ExitReason)
	assert.Equal(t, 0, f.state.OpenCount())
	assert.True(t, f.state.InEmergency(now))
	assert.Equal(t, now.Add(30*time.Minute), f.state.EmergencyUntil)
	assert.True(t, f.events.has(domain.EventEmergencyEntered))
}

func TestProcess_NoEmergencyBelowThreshold(t *testing.T) {
	f := newFixture(t)
	a := f.place(t, "KX-A", 40, 2, domain.KindQuant)
	b := f.place(t, "KX-B", 30, 1, domain.KindMicro)
	f.state.Balance = 41

	f.mgr.Process(context.Background(), f.state, t0.Add(time.Minute))

	assert.Equal(t, domain.PositionFilled, a.State)
	assert.Equal(t, domain.PositionFilled, b.State)
	assert.Len(t, f.venue.PlacedOrders(), 2)
	assert.False(t, f.state.InEmergency(t0.Add(time.Minute)))
}

func TestProcess_UnfilledExitKeepsPosition(t *testing.T) {
	f := newFixture(t)
	pos := f.place(t, "KX-A", 40, 2, domain.KindQuant)
	f.venue.OnPlace = func(req domain.OrderRequest) domain.OrderHandle {
		return domain.OrderHandle{Status: domain.OrderResting, RemainingCount: req.Count}
	}
	f.venue.SetStatus(domain.ContractStatus{Ticker: "KX-A", Status: domain.ContractOpen, YesBid: 47, MinutesLeft: 8})

	f.mgr.Process(context.Background(), f.state, t0.Add(time.Minute))

	assert.Equal(t, domain.PositionFilled, pos.State)
	assert.Len(t, f.venue.Cancelled, 1)
	assert.Equal(t, 100.0, f.state.Balance)
}

func TestProcess_EmergencySpanningPassesStartsCooldown(t *testing.T) {
	f := newFixture(t)
	a := f.place(t, "KX-A", 40, 2, domain.KindQuant)
	b := f.place(t, "KX-B", 30, 1, domain.KindMicro)
	f.venue.SetStatus(domain.ContractStatus{Ticker: "KX-B", Status: domain.ContractOpen, MinutesLeft: 9})
	f.state.Balance = 40

	first := t0.Add(time.Minute)
	f.mgr.Process(context.Background(), f.state, first)

	assert.Equal(t, domain.PositionEarlyExit, a.State)
	assert.Equal(t, domain.PositionFilled, b.State)
	assert.True(t, f.state.Liquidating)
	assert.False(t, f.state.InEmergency(first))
	assert.False(t, f.events.has(domain.EventEmergencyEntered))

	f.venue.SetStatus(domain.ContractStatus{Ticker: "KX-B", Status: domain.ContractSettled, Result: domain.SideYes})
	second := t0.Add(2 * time.Minute)
	f.mgr.Process(context.Background(), f.state, second)

	assert.Equal(t, domain.PositionSettled, b.State)
	assert.Equal(t, 0, f.state.OpenCount())
	assert.False(t, f.state.Liquidating)
	assert.Equal(t, second.Add(30*time.Minute), f.state.EmergencyUntil)
	assert.True(t, f.events.has(domain.EventEmergencyEntered))
}

// bookVenue serves a fixed orderbook over the mock venue.
type bookVenue struct {
	*mock.Venue
	book domain.Orderbook
	err  error
}

func (v *bookVenue) GetOrderbook(context.Context, string) (domain.Orderbook, error) {
	return v.book, v.err
}

func (f *fixture) withBook(book domain.Orderbook, err error) {
	f.mgr = NewManager(DefaultConfig(), &bookVenue{Venue: f.venue, book: book, err: err}, f.corr, f.events,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestProcess_ExitPricedFromOrderbook(t *testing.T) {
	f := newFixture(t)
	pos := f.place(t, "KX-A", 40, 2, domain.KindQuant)
	f.venue.SetStatus(domain.ContractStatus{Ticker: "KX-A", Status: domain.ContractOpen, YesBid: 47, NoBid: 50, MinutesLeft: 8})

	f.withBook(domain.Orderbook{Ticker: "KX-A", YesBids: []domain.PriceLevel{{Price: 42, Quantity: 10}}}, nil)
	f.mgr.Process(context.Background(), f.state, t0.Add(time.Minute))
	assert.Equal(t, domain.PositionFilled, pos.State)
	assert.Len(t, f.venue.PlacedOrders(), 1)

	f.withBook(domain.Orderbook{Ticker: "KX-A", YesBids: []domain.PriceLevel{{Price: 46, Quantity: 10}, {Price: 44, Quantity: 5}}}, nil)
	f.mgr.Process(context.Background(), f.state, t0.Add(2*time.Minute))
	assert.Equal(t, domain.PositionEarlyExit, pos.State)
	placed := f.venue.PlacedOrders()
	require.Len(t, placed, 2)
	assert.Equal(t, 46, placed[1].LimitPrice)
	assert.InDelta(t, 100.12, f.state.Balance, 1e-9)
}

func TestProcess_EmptyOrderbookSkipsExit(t *testing.T) {
	f := newFixture(t)
	pos := f.place(t, "KX-A", 40, 2, domain.KindQuant)
	f.venue.SetStatus(domain.ContractStatus{Ticker: "KX-A", Status: domain.ContractOpen, YesBid: 47, NoBid: 50, MinutesLeft: 8})
	f.withBook(domain.Orderbook{Ticker: "KX-A", NoBids: []domain.PriceLevel{{Price: 50, Quantity: 10}}}, nil)

	f.mgr.Process(context.Background(), f.state, t0.Add(time.Minute))

	assert.Equal(t, domain.PositionFilled, pos.State)
	assert.Len(t, f.venue.PlacedOrders(), 1)
}

func TestProcess_OrderbookErrorFallsBackToContractBid(t *testing.T) {
	f := newFixture(t)
	pos := f.place(t, "KX-A", 40, 2, domain.KindQuant)
	f.venue.SetStatus(domain.ContractStatus{Ticker: "KX-A", Status: domain.ContractOpen, YesBid: 47, NoBid: 50, MinutesLeft: 8})
	f.withBook(domain.Orderbook{}, errors.New("book down"))

	f.mgr.Process(context.Background(), f.state, t0.Add(time.Minute))

	assert.Equal(t, domain.PositionEarlyExit, pos.State)
	placed := f.venue.PlacedOrders()
	require.Len(t, placed, 2)
	assert.Equal(t, 47, placed[1].LimitPrice)
}

func TestProcess_PaperTakeProfitCompletes(t *testing.T) {
	data := mock.NewVenue(0)
	data.SetContracts("KXBTC15M", domain.Contract{
		Ticker: "KX-A", SeriesTicker: "KXBTC15M",
		YesAsk: 40, NoAsk: 62, YesBid: 38, NoBid: 60,
		CloseTime: t0.Add(10 * time.Minute), MinutesLeft: 10,
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	venue := paper.NewVenue(data, 100, logger)
	ctx := context.Background()
	_, err := venue.ListOpenContracts(ctx, domain.ContractFilter{Series: "KXBTC15M"})
	require.NoError(t, err)

	state := domain.NewEngineState(100, t0)
	mgr := NewManager(DefaultConfig(), venue, correction.New(correction.DefaultConfig()), &sink{}, logger)
	pos, err := mgr.Place(ctx, state, opportunity("KX-A", 40, domain.KindQuant), risk.Stake{Contracts: 2}, t0)
	require.NoError(t, err)
	require.Equal(t, domain.PositionFilled, pos.State)

	data.SetStatus(domain.ContractStatus{Ticker: "KX-A", Status: domain.ContractOpen, YesBid: 47, NoBid: 50, MinutesLeft: 8})
	mgr.Process(ctx, state, t0.Add(time.Minute))

	assert.Equal(t, domain.PositionEarlyExit, pos.State)
	assert.Equal(t, 0, state.OpenCount())
	assert.InDelta(t, 100.14, state.Balance, 1e-9)
	cash, err := venue.GetBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100.14, cash, 1e-9)
}
