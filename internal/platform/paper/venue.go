// Package paper simulates order execution on top of live market data. It is
// the dry-run venue and the target of degraded mode when live credentials
// are unusable.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

type order struct {
	handle domain.OrderHandle
	req    domain.OrderRequest
}

type holding struct {
	yes, no int
}

// Venue implements domain.Venue. Market reads go to the wrapped data venue;
// orders, fills and cash are simulated. Buys reserve their full cost at
// placement and execute once the limit reaches the last seen ask. Sells
// execute at placement, or on a later GetContract, once the limit is at or
// below the last seen bid. A settled market credits $1 per winning contract
// held, once.
type Venue struct {
	data   domain.Venue
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	cash     float64
	asks     map[string][2]int // ticker -> {yes ask, no ask}
	bids     map[string][2]int // ticker -> {yes bid, no bid}
	orders   map[string]*order
	fills    []domain.Fill
	holdings map[string]*holding
	settled  map[string]bool
}

// NewVenue starts with balance dollars of simulated cash.
func NewVenue(data domain.Venue, balance float64, logger *slog.Logger) *Venue {
	return &Venue{
		data:     data,
		logger:   logger.With(slog.String("component", "paper_venue")),
		now:      time.Now,
		cash:     balance,
		asks:     make(map[string][2]int),
		bids:     make(map[string][2]int),
		orders:   make(map[string]*order),
		holdings: make(map[string]*holding),
		settled:  make(map[string]bool),
	}
}

// ListOpenContracts passes through and remembers quotes for fill simulation.
func (v *Venue) ListOpenContracts(ctx context.Context, f domain.ContractFilter) ([]domain.Contract, error) {
	cs, err := v.data.ListOpenContracts(ctx, f)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	for _, c := range cs {
		v.asks[c.Ticker] = [2]int{c.YesAsk, c.NoAsk}
		v.bids[c.Ticker] = [2]int{c.YesBid, c.NoBid}
	}
	v.mu.Unlock()
	return cs, nil
}

// GetContract passes through, matches resting sells against the bids and
// credits settlement.
func (v *Venue) GetContract(ctx context.Context, ticker string) (domain.ContractStatus, error) {
	st, err := v.data.GetContract(ctx, ticker)
	if err != nil {
		return st, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bids[ticker] = [2]int{st.YesBid, st.NoBid}
	for _, o := range v.orders {
		if o.req.Ticker == ticker && o.handle.Status == domain.OrderResting && o.req.Action == domain.ActionSell {
			if bid := st.Bid(o.req.Side); bid > 0 && o.req.LimitPrice <= bid {
				v.execute(o)
			}
		}
	}
	if st.Settled() && st.Result != "" && !v.settled[ticker] {
		v.settle(ticker, st.Result)
	}
	return st, nil
}

// GetOrderbook passes through and remembers the best bids.
func (v *Venue) GetOrderbook(ctx context.Context, ticker string) (domain.Orderbook, error) {
	ob, err := v.data.GetOrderbook(ctx, ticker)
	if err != nil {
		return ob, err
	}
	v.mu.Lock()
	v.bids[ticker] = [2]int{ob.BestBid(domain.SideYes), ob.BestBid(domain.SideNo)}
	v.mu.Unlock()
	return ob, nil
}

// PlaceOrder accepts a limit order and executes it at once when marketable.
func (v *Venue) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderHandle, error) {
	if req.Count <= 0 || req.LimitPrice < 1 || req.LimitPrice > 99 {
		return domain.OrderHandle{}, fmt.Errorf("paper: count %d price %d: %w", req.Count, req.LimitPrice, domain.ErrOrderRejected)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	cost := notional(req.Count, req.LimitPrice)
	if req.Action == domain.ActionBuy {
		if cost > v.cash {
			return domain.OrderHandle{}, fmt.Errorf("paper: cost %.2f exceeds cash %.2f: %w", cost, v.cash, domain.ErrOrderRejected)
		}
		v.cash -= cost
	} else if held := v.held(req.Ticker, req.Side); held < req.Count {
		return domain.OrderHandle{}, fmt.Errorf("paper: sell %d of %d held: %w", req.Count, held, domain.ErrOrderRejected)
	}

	o := &order{
		req: req,
		handle: domain.OrderHandle{
			OrderID:        "paper-" + uuid.NewString(),
			ClientOrderID:  req.ClientOrderID,
			Status:         domain.OrderResting,
			RemainingCount: req.Count,
		},
	}
	v.orders[o.handle.OrderID] = o
	if req.Action == domain.ActionBuy {
		if ask := quoteFor(v.asks, req.Ticker, req.Side); ask > 0 && req.LimitPrice >= ask {
			v.execute(o)
		}
	} else if bid := quoteFor(v.bids, req.Ticker, req.Side); bid > 0 && req.LimitPrice <= bid {
		v.execute(o)
	}
	v.logger.Info("paper order",
		slog.String("ticker", req.Ticker),
		slog.String("side", string(req.Side)),
		slog.String("action", string(req.Action)),
		slog.Int("count", req.Count),
		slog.Int("price", req.LimitPrice),
		slog.String("status", string(o.handle.Status)),
	)
	return o.handle, nil
}

// GetOrder re-checks a resting buy against the last seen ask.
func (v *Venue) GetOrder(_ context.Context, orderID string) (domain.OrderHandle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[orderID]
	if !ok {
		return domain.OrderHandle{}, fmt.Errorf("paper: order %s: %w", orderID, domain.ErrNotFound)
	}
	if o.handle.Status == domain.OrderResting && o.req.Action == domain.ActionBuy {
		if ask := quoteFor(v.asks, o.req.Ticker, o.req.Side); ask > 0 && o.req.LimitPrice >= ask {
			v.execute(o)
		}
	}
	return o.handle, nil
}

// CancelOrder cancels a resting order and releases reserved cash.
func (v *Venue) CancelOrder(_ context.Context, orderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[orderID]
	if !ok {
		return fmt.Errorf("paper: order %s: %w", orderID, domain.ErrNotFound)
	}
	if o.handle.Status != domain.OrderResting {
		return nil
	}
	if o.req.Action == domain.ActionBuy {
		v.cash += notional(o.handle.RemainingCount, o.req.LimitPrice)
	}
	o.handle.Status = domain.OrderCanceled
	o.handle.RemainingCount = 0
	return nil
}

// GetBalance returns simulated cash.
func (v *Venue) GetBalance(context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cash, nil
}

// ListFills returns simulated executions.
func (v *Venue) ListFills(_ context.Context, f domain.FillFilter) ([]domain.Fill, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []domain.Fill
	for _, fl := range v.fills {
		if (f.Ticker == "" || fl.Ticker == f.Ticker) && (f.OrderID == "" || fl.OrderID == f.OrderID) {
			out = append(out, fl)
		}
	}
	return out, nil
}

// execute fills the remainder of o. Caller holds v.mu.
func (v *Venue) execute(o *order) {
	n := o.handle.RemainingCount
	if n <= 0 {
		return
	}
	h := v.holdings[o.req.Ticker]
	if h == nil {
		h = &holding{}
		v.holdings[o.req.Ticker] = h
	}
	delta := n
	if o.req.Action == domain.ActionSell {
		delta = -n
		v.cash += notional(n, o.req.LimitPrice)
	}
	if o.req.Side == domain.SideYes {
		h.yes += delta
	} else {
		h.no += delta
	}
	o.handle.FilledCount += n
	o.handle.RemainingCount = 0
	o.handle.Status = domain.OrderExecuted
	v.fills = append(v.fills, domain.Fill{
		TradeID:   uuid.NewString(),
		OrderID:   o.handle.OrderID,
		Ticker:    o.req.Ticker,
		Side:      o.req.Side,
		Action:    o.req.Action,
		Count:     n,
		Price:     o.req.LimitPrice,
		CreatedAt: v.now(),
	})
}

// settle pays out winners, cancels whatever still rests on the market and
// refunds reserved cash. Caller holds v.mu.
func (v *Venue) settle(ticker string, result domain.Side) {
	v.settled[ticker] = true
	for _, o := range v.orders {
		if o.req.Ticker == ticker && o.handle.Status == domain.OrderResting {
			if o.req.Action == domain.ActionBuy {
				v.cash += notional(o.handle.RemainingCount, o.req.LimitPrice)
			}
			o.handle.Status = domain.OrderCanceled
			o.handle.RemainingCount = 0
		}
	}
	h := v.holdings[ticker]
	if h == nil {
		return
	}
	won := h.no
	if result == domain.SideYes {
		won = h.yes
	}
	v.cash += float64(won)
	v.logger.Info("paper settlement",
		slog.String("ticker", ticker),
		slog.String("result", string(result)),
		slog.Int("winning_contracts", won),
	)
	delete(v.holdings, ticker)
}

func (v *Venue) held(ticker string, side domain.Side) int {
	h := v.holdings[ticker]
	if h == nil {
		return 0
	}
	if side == domain.SideYes {
		return h.yes
	}
	return h.no
}

// quoteFor reads one side from a {yes, no} quote map; 0 when unseen.
func quoteFor(quotes map[string][2]int, ticker string, side domain.Side) int {
	q, ok := quotes[ticker]
	if !ok {
		return 0
	}
	if side == domain.SideYes {
		return q[0]
	}
	return q[1]
}

func notional(count, price int) float64 {
	return float64(count) * float64(price) / 100
}

var _ domain.Venue = (*Venue)(nil)
