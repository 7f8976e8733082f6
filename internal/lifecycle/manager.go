package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
	"github.com/alanyoungcy/kalshiedge/internal/risk"
)

// Recorder receives resolved outcomes. The correction engine implements it.
type Recorder interface {
	RecordOutcome(o domain.Outcome)
	Status() domain.CorrectionStatus
}

// Config holds position limits and timing.
type Config struct {
	MaxPositions      int
	MaxPerTicker      int
	StaleOrderAge     time.Duration
	EmergencyCooldown time.Duration
	HistorySize       int
	OrderRateKey      string
	OrderRateLimit    int
	OrderRateWindow   time.Duration
	Exit              ExitConfig
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		MaxPositions:      3,
		MaxPerTicker:      1,
		StaleOrderAge:     5 * time.Minute,
		EmergencyCooldown: 30 * time.Minute,
		HistorySize:       200,
		OrderRateKey:      "orders",
		OrderRateLimit:    10,
		OrderRateWindow:   time.Minute,
		Exit:              DefaultExitConfig(),
	}
}

// Manager places orders and drives positions to a terminal state. It is
// called only from the scheduler goroutine.
type Manager struct {
	cfg      Config
	venue    domain.Venue
	recorder Recorder
	events   domain.EventSink
	outcomes domain.OutcomeStore
	audit    domain.AuditStore
	limiter  domain.RateLimiter
	newID    func() string
	logger   *slog.Logger
}

// Option configures optional collaborators.
type Option func(*Manager)

// WithOutcomeStore journals every outcome.
func WithOutcomeStore(s domain.OutcomeStore) Option {
	return func(m *Manager) { m.outcomes = s }
}

// WithAuditStore records placements, cancellations and anomalies.
func WithAuditStore(s domain.AuditStore) Option {
	return func(m *Manager) { m.audit = s }
}

// WithRateLimiter guards order placement with a shared limiter.
func WithRateLimiter(l domain.RateLimiter) Option {
	return func(m *Manager) { m.limiter = l }
}

// WithIDGenerator replaces uuid generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// NewManager creates a lifecycle manager.
func NewManager(cfg Config, venue domain.Venue, recorder Recorder, events domain.EventSink, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		venue:    venue,
		recorder: recorder,
		events:   events,
		newID:    func() string { return uuid.New().String() },
		logger:   logger.With(slog.String("component", "lifecycle")),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Place submits a buy at the opportunity's ask and tracks the position.
func (m *Manager) Place(ctx context.Context, state *domain.EngineState, opp domain.Opportunity, stake risk.Stake, now time.Time) (*domain.Position, error) {
	ticker := opp.Contract.Ticker
	if m.cfg.MaxPositions > 0 && state.OpenCount() >= m.cfg.MaxPositions {
		return nil, fmt.Errorf("lifecycle: place %s: %w", ticker, domain.ErrPositionLimit)
	}
	if m.cfg.MaxPerTicker > 0 && state.CountByTicker(ticker) >= m.cfg.MaxPerTicker {
		return nil, fmt.Errorf("lifecycle: place %s: ticker limit: %w", ticker, domain.ErrPositionLimit)
	}
	if stake.Contracts < 1 {
		return nil, fmt.Errorf("lifecycle: place %s: %w", ticker, domain.ErrStakeRejected)
	}

	if m.limiter != nil && m.cfg.OrderRateLimit > 0 {
		ok, err := m.limiter.Allow(ctx, m.cfg.OrderRateKey, m.cfg.OrderRateLimit, m.cfg.OrderRateWindow)
		if err != nil {
			m.logger.WarnContext(ctx, "order rate limiter unavailable",
				slog.String("error", err.Error()),
			)
		} else if !ok {
			return nil, fmt.Errorf("lifecycle: place %s: %w", ticker, domain.ErrRateLimited)
		}
	}

	req := domain.OrderRequest{
		Ticker:        ticker,
		Side:          opp.Side,
		Action:        domain.ActionBuy,
		Count:         stake.Contracts,
		LimitPrice:    opp.Price,
		ClientOrderID: m.newID(),
	}
	h, err := m.venue.PlaceOrder(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: place %s: %w", ticker, err)
	}
	if h.Status == domain.OrderCanceled && h.FilledCount == 0 {
		return nil, fmt.Errorf("lifecycle: place %s: %w", ticker, domain.ErrOrderRejected)
	}

	pos := &domain.Position{
		ID:              m.newID(),
		OrderID:         h.OrderID,
		ClientOrderID:   req.ClientOrderID,
		Ticker:          ticker,
		Side:            opp.Side,
		Kind:            opp.Kind,
		EntryPrice:      opp.Price,
		Contracts:       stake.Contracts,
		PlacedAt:        now,
		MinutesToExpiry: opp.Contract.MinutesLeft,
		CloseTime:       opp.Contract.CloseTime,
		Context:         opp.Context,
		State:           domain.PositionPlaced,
	}
	if h.Executed() {
		if h.FilledCount > 0 {
			pos.Contracts = h.FilledCount
		}
		m.markFilled(pos, now)
	}
	pos.Cost = cost(pos.EntryPrice, pos.Contracts)
	state.Positions[pos.ID] = pos

	m.logger.InfoContext(ctx, "bet placed",
		slog.String("ticker", ticker),
		slog.String("side", string(pos.Side)),
		slog.String("kind", string(pos.Kind)),
		slog.Int("price", pos.EntryPrice),
		slog.Int("contracts", pos.Contracts),
		slog.Float64("edge", opp.Edge),
		slog.Float64("ev", opp.EV),
		slog.String("state", string(pos.State)),
	)
	m.emit(state, domain.EventBetPlaced, map[string]any{
		"position_id": pos.ID,
		"ticker":      ticker,
		"side":        pos.Side,
		"kind":        pos.Kind,
		"price":       pos.EntryPrice,
		"contracts":   pos.Contracts,
		"cost":        pos.Cost,
		"model_prob":  opp.ModelProb,
		"edge":        opp.Edge,
		"ev":          opp.EV,
		"regime":      stake.Regime,
	})
	m.auditLog(ctx, "bet_placed", map[string]any{
		"position_id":     pos.ID,
		"order_id":        pos.OrderID,
		"client_order_id": pos.ClientOrderID,
		"ticker":          ticker,
		"side":            string(pos.Side),
		"price":           pos.EntryPrice,
		"contracts":       pos.Contracts,
	})
	return pos, nil
}

// Process runs one lifecycle pass: fill detection and stale cancellation,
// resolution polling, early exits, then emergency cooldown bookkeeping.
// A liquidation that spans several passes starts the cooldown on the pass
// that closes the last position.
func (m *Manager) Process(ctx context.Context, state *domain.EngineState, now time.Time) {
	for _, pos := range ordered(state) {
		if pos.State == domain.PositionPlaced {
			m.checkFill(ctx, state, pos, now)
		}
	}

	drawdown := state.Drawdown()
	for _, pos := range ordered(state) {
		if pos.State.Terminal() {
			continue
		}
		status, err := m.venue.GetContract(ctx, pos.Ticker)
		if errors.Is(err, domain.ErrNotFound) {
			m.abandon(ctx, state, pos, now)
			continue
		}
		if err != nil {
			m.logger.WarnContext(ctx, "contract status unavailable",
				slog.String("ticker", pos.Ticker),
				slog.String("phase", "resolution"),
				slog.String("error", err.Error()),
			)
			continue
		}

		if status.Settled() {
			m.settle(ctx, state, pos, status, now)
			continue
		}
		if status.Status != domain.ContractOpen || pos.State != domain.PositionFilled {
			continue
		}

		if m.cfg.Exit.Emergency(drawdown) {
			state.Liquidating = true
		}
		d := EvaluateExit(*pos, m.bookQuote(ctx, pos, status), drawdown, m.cfg.Exit)
		if d.Reason == ExitNone {
			continue
		}
		m.exit(ctx, state, pos, d, now)
	}

	if !state.Liquidating || state.OpenCount() > 0 {
		return
	}
	state.Liquidating = false
	if !state.InEmergency(now) {
		state.EmergencyUntil = now.Add(m.cfg.EmergencyCooldown)
		m.logger.WarnContext(ctx, "emergency liquidation complete, pausing discovery",
			slog.Float64("drawdown", drawdown),
			slog.Time("until", state.EmergencyUntil),
		)
		m.emit(state, domain.EventEmergencyEntered, map[string]any{
			"drawdown": drawdown,
			"until":    state.EmergencyUntil,
		})
		m.auditLog(ctx, "emergency_entered", map[string]any{"drawdown": drawdown})
	}
}

// bookQuote replaces the contract quote's bid for pos's side with the
// orderbook's best bid, so an empty book skips the exit. The contract quote
// stands when the book cannot be read.
func (m *Manager) bookQuote(ctx context.Context, pos *domain.Position, status domain.ContractStatus) domain.ContractStatus {
	ob, err := m.venue.GetOrderbook(ctx, pos.Ticker)
	if err != nil {
		m.logger.DebugContext(ctx, "orderbook unavailable, pricing exit from contract quote",
			slog.String("ticker", pos.Ticker),
			slog.String("error", err.Error()),
		)
		return status
	}
	if pos.Side == domain.SideYes {
		status.YesBid = ob.BestBid(domain.SideYes)
	} else {
		status.NoBid = ob.BestBid(domain.SideNo)
	}
	return status
}

// checkFill promotes filled orders and cancels stale ones.
func (m *Manager) checkFill(ctx context.Context, state *domain.EngineState, pos *domain.Position, now time.Time) {
	filled, status, err := m.filledCount(ctx, pos)
	if err != nil {
		m.logger.WarnContext(ctx, "fill check failed",
			slog.String("ticker", pos.Ticker),
			slog.String("order_id", pos.OrderID),
			slog.String("error", err.Error()),
		)
		return
	}

	if filled >= pos.Contracts || status == domain.OrderExecuted {
		m.markFilled(pos, now)
		return
	}

	stale := m.cfg.StaleOrderAge > 0 && now.Sub(pos.PlacedAt) >= m.cfg.StaleOrderAge
	if !stale && status != domain.OrderCanceled {
		return
	}

	cond := CondOrderRejected
	if status != domain.OrderCanceled {
		cond = CondStaleOrder
		if err := m.venue.CancelOrder(ctx, pos.OrderID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			m.logger.WarnContext(ctx, "stale order cancel failed",
				slog.String("ticker", pos.Ticker),
				slog.String("order_id", pos.OrderID),
				slog.String("error", err.Error()),
			)
			return
		}
	}

	if filled > 0 {
		m.logger.InfoContext(ctx, "partial fill kept, remainder cancelled",
			slog.String("ticker", pos.Ticker),
			slog.Int("filled", filled),
			slog.Int("ordered", pos.Contracts),
		)
		pos.Contracts = filled
		pos.Cost = cost(pos.EntryPrice, filled)
		m.markFilled(pos, now)
		return
	}
	m.cancel(ctx, state, pos, cond, now)
}

// filledCount reads the order, falling back to the fill ledger.
func (m *Manager) filledCount(ctx context.Context, pos *domain.Position) (int, domain.OrderStatus, error) {
	h, err := m.venue.GetOrder(ctx, pos.OrderID)
	if err == nil {
		return h.FilledCount, h.Status, nil
	}
	fills, ferr := m.venue.ListFills(ctx, domain.FillFilter{Ticker: pos.Ticker, OrderID: pos.OrderID})
	if ferr != nil {
		return 0, "", fmt.Errorf("get order: %v; list fills: %w", err, ferr)
	}
	n := 0
	for _, f := range fills {
		if f.Action == domain.ActionBuy || f.Action == "" {
			n += f.Count
		}
	}
	return n, "", nil
}

func (m *Manager) markFilled(pos *domain.Position, now time.Time) {
	if err := Transition(pos, domain.PositionFilled, CondOrderFilled); err != nil {
		m.logger.Error("fill transition rejected", slog.String("error", err.Error()))
		return
	}
	t := now
	pos.FilledAt = &t
}

func (m *Manager) settle(ctx context.Context, state *domain.EngineState, pos *domain.Position, status domain.ContractStatus, now time.Time) {
	if pos.State == domain.PositionPlaced {
		filled, _, err := m.filledCount(ctx, pos)
		if err != nil {
			m.logger.WarnContext(ctx, "fill check at settlement failed",
				slog.String("ticker", pos.Ticker),
				slog.String("error", err.Error()),
			)
			return
		}
		if filled == 0 {
			m.cancel(ctx, state, pos, CondExpiredUnfilled, now)
			return
		}
		pos.Contracts = min(filled, pos.Contracts)
		pos.Cost = cost(pos.EntryPrice, pos.Contracts)
	}

	won := status.Result == pos.Side
	exitPrice := 0
	pnl := -float64(pos.EntryPrice*pos.Contracts) / 100
	if won {
		exitPrice = 100
		pnl = float64((100-pos.EntryPrice)*pos.Contracts) / 100
	}
	if _, err := m.resolve(ctx, state, pos, domain.PositionSettled, CondSettled, resolution{
		exitPrice: exitPrice,
		pnl:       pnl,
		won:       won,
		kind:      domain.ResolutionSettled,
		reason:    "settled_" + string(status.Result),
	}, now); err != nil {
		m.logger.ErrorContext(ctx, "settlement rejected",
			slog.String("ticker", pos.Ticker),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) exit(ctx context.Context, state *domain.EngineState, pos *domain.Position, d ExitDecision, now time.Time) {
	req := domain.OrderRequest{
		Ticker:        pos.Ticker,
		Side:          pos.Side,
		Action:        domain.ActionSell,
		Count:         pos.Contracts,
		LimitPrice:    d.Bid,
		ClientOrderID: m.newID(),
	}
	h, err := m.venue.PlaceOrder(ctx, req)
	if err != nil {
		m.logger.WarnContext(ctx, "exit order failed",
			slog.String("ticker", pos.Ticker),
			slog.String("reason", string(d.Reason)),
			slog.String("error", err.Error()),
		)
		return
	}

	filled := h.FilledCount
	if h.Executed() && filled == 0 {
		filled = pos.Contracts
	}
	if filled < pos.Contracts && h.OrderID != "" && h.Status != domain.OrderCanceled {
		if err := m.venue.CancelOrder(ctx, h.OrderID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			m.logger.WarnContext(ctx, "exit remainder cancel failed",
				slog.String("ticker", pos.Ticker),
				slog.String("order_id", h.OrderID),
				slog.String("error", err.Error()),
			)
		}
	}
	if filled == 0 {
		m.logger.InfoContext(ctx, "exit not filled, position kept",
			slog.String("ticker", pos.Ticker),
			slog.String("reason", string(d.Reason)),
			slog.Int("bid", d.Bid),
		)
		return
	}

	if filled < pos.Contracts {
		partial := float64((d.Bid-pos.EntryPrice)*filled) / 100
		state.Balance += partial
		state.RealizedPnL += partial
		state.UpdatePeak()
		pos.Contracts -= filled
		pos.Cost = cost(pos.EntryPrice, pos.Contracts)
		m.logger.InfoContext(ctx, "partial exit, remainder kept",
			slog.String("ticker", pos.Ticker),
			slog.Int("sold", filled),
			slog.Int("remaining", pos.Contracts),
			slog.Float64("pnl", partial),
		)
		return
	}

	pnl := float64((d.Bid-pos.EntryPrice)*pos.Contracts) / 100
	if _, err := m.resolve(ctx, state, pos, domain.PositionEarlyExit, CondExitFilled, resolution{
		exitPrice: d.Bid,
		pnl:       pnl,
		won:       pnl > 0,
		kind:      domain.ResolutionEarlyExit,
		reason:    string(d.Reason),
	}, now); err != nil {
		m.logger.ErrorContext(ctx, "exit resolution rejected",
			slog.String("ticker", pos.Ticker),
			slog.String("error", err.Error()),
		)
	}
}

type resolution struct {
	exitPrice int
	pnl       float64
	won       bool
	kind      string
	reason    string
}

// resolve is the only place bankroll, streaks, history and the correction
// engine change for a position. A terminal position is rejected.
func (m *Manager) resolve(ctx context.Context, state *domain.EngineState, pos *domain.Position, to domain.PositionState, cond string, r resolution, now time.Time) (domain.Outcome, error) {
	if err := Transition(pos, to, cond); err != nil {
		return domain.Outcome{}, err
	}
	exit := r.exitPrice
	resolvedAt := now
	pos.ExitPrice = &exit
	pos.ExitReason = r.reason
	pos.ResolvedAt = &resolvedAt

	state.Balance += r.pnl
	state.RealizedPnL += r.pnl
	state.UpdatePeak()
	if r.won {
		state.ConsecutiveWins++
		state.ConsecutiveLosses = 0
	} else {
		state.ConsecutiveLosses++
		state.ConsecutiveWins = 0
	}

	o := domain.Outcome{
		PositionID: pos.ID,
		Ticker:     pos.Ticker,
		Side:       pos.Side,
		Kind:       pos.Kind,
		Won:        r.won,
		PnL:        r.pnl,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  r.exitPrice,
		Contracts:  pos.Contracts,
		Context:    pos.Context,
		Resolution: r.kind,
		Reason:     r.reason,
		ResolvedAt: now,
	}
	state.AppendOutcome(o, m.cfg.HistorySize)
	delete(state.Positions, pos.ID)

	if m.recorder != nil {
		m.recorder.RecordOutcome(o)
	}
	if m.outcomes != nil {
		if err := m.outcomes.Insert(ctx, o); err != nil {
			m.logger.WarnContext(ctx, "outcome journal write failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	m.logger.InfoContext(ctx, "bet resolved",
		slog.String("ticker", pos.Ticker),
		slog.String("side", string(pos.Side)),
		slog.String("resolution", r.kind),
		slog.String("reason", r.reason),
		slog.Bool("won", r.won),
		slog.Float64("pnl", r.pnl),
		slog.Float64("balance", state.Balance),
	)
	m.emit(state, domain.EventBetResolved, map[string]any{
		"position_id": pos.ID,
		"ticker":      pos.Ticker,
		"side":        pos.Side,
		"won":         r.won,
		"pnl":         r.pnl,
		"entry_price": pos.EntryPrice,
		"exit_price":  r.exitPrice,
		"contracts":   pos.Contracts,
		"resolution":  r.kind,
		"reason":      r.reason,
		"balance":     state.Balance,
	})
	if m.recorder != nil {
		cs := m.recorder.Status()
		m.emit(state, domain.EventCorrection, map[string]any{
			"regime":           cs.Regime,
			"edge_multiplier":  cs.EdgeMultiplier,
			"stake_multiplier": cs.StakeMultiplier,
			"total_bets":       cs.TotalBets,
			"global_win_rate":  cs.GlobalWinRate,
		})
	}
	return o, nil
}

func (m *Manager) cancel(ctx context.Context, state *domain.EngineState, pos *domain.Position, cond string, now time.Time) {
	if err := Transition(pos, domain.PositionCancelled, cond); err != nil {
		m.logger.ErrorContext(ctx, "cancel transition rejected", slog.String("error", err.Error()))
		return
	}
	resolvedAt := now
	pos.ResolvedAt = &resolvedAt
	pos.ExitReason = cond
	delete(state.Positions, pos.ID)

	m.logger.InfoContext(ctx, "bet cancelled",
		slog.String("ticker", pos.Ticker),
		slog.String("reason", cond),
		slog.Duration("age", now.Sub(pos.PlacedAt)),
	)
	m.emit(state, domain.EventBetCancelled, map[string]any{
		"position_id": pos.ID,
		"ticker":      pos.Ticker,
		"reason":      cond,
	})
	m.auditLog(ctx, "bet_cancelled", map[string]any{
		"position_id": pos.ID,
		"order_id":    pos.OrderID,
		"ticker":      pos.Ticker,
		"reason":      cond,
	})
}

func (m *Manager) abandon(ctx context.Context, state *domain.EngineState, pos *domain.Position, now time.Time) {
	if err := Transition(pos, domain.PositionAbandoned, CondNotFound); err != nil {
		m.logger.ErrorContext(ctx, "abandon transition rejected", slog.String("error", err.Error()))
		return
	}
	resolvedAt := now
	pos.ResolvedAt = &resolvedAt
	pos.ExitReason = CondNotFound
	delete(state.Positions, pos.ID)

	m.logger.WarnContext(ctx, "position abandoned, contract not found",
		slog.String("ticker", pos.Ticker),
		slog.String("position_id", pos.ID),
		slog.Float64("cost", pos.Cost),
	)
	m.emit(state, domain.EventPositionAbandoned, map[string]any{
		"position_id": pos.ID,
		"ticker":      pos.Ticker,
		"cost":        pos.Cost,
	})
	m.auditLog(ctx, "position_abandoned", map[string]any{
		"position_id": pos.ID,
		"ticker":      pos.Ticker,
	})
}

func (m *Manager) emit(state *domain.EngineState, t domain.EventType, payload map[string]any) {
	if m.events != nil {
		m.events.Emit(t, state.Cycle, payload)
	}
}

func (m *Manager) auditLog(ctx context.Context, event string, detail map[string]any) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Log(ctx, event, detail); err != nil {
		m.logger.WarnContext(ctx, "audit log write failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// ordered returns live positions oldest first.
func ordered(state *domain.EngineState) []*domain.Position {
	out := make([]*domain.Position, 0, len(state.Positions))
	for _, p := range state.Positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].PlacedAt.Before(out[j].PlacedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func cost(priceCents, contracts int) float64 {
	return float64(priceCents*contracts) / 100
}
