package kalshi

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// Venue adapts Client to domain.Venue.
type Venue struct {
	client   *Client
	maxPages int
	now      func() time.Time
}

// NewVenue wraps a client. maxPages bounds market listing pagination; zero
// means unbounded.
func NewVenue(client *Client, maxPages int) *Venue {
	return &Venue{client: client, maxPages: maxPages, now: time.Now}
}

// ListOpenContracts returns open markets of one series closing inside the
// filter's window.
func (v *Venue) ListOpenContracts(ctx context.Context, f domain.ContractFilter) ([]domain.Contract, error) {
	now := v.now()
	q := MarketsQuery{SeriesTicker: f.Series, Status: "open", Limit: 200}
	if f.MinMinutes > 0 {
		q.MinCloseTs = now.Add(time.Duration(f.MinMinutes * float64(time.Minute))).Unix()
	}
	if f.MaxMinutes > 0 {
		q.MaxCloseTs = now.Add(time.Duration(f.MaxMinutes * float64(time.Minute))).Unix()
	}

	markets, err := v.client.ListMarkets(ctx, q, v.maxPages)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Contract, 0, len(markets))
	for _, m := range markets {
		c, err := toContract(m, f.Series, now)
		if err != nil {
			continue
		}
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetContract returns the settlement view of a market.
func (v *Venue) GetContract(ctx context.Context, ticker string) (domain.ContractStatus, error) {
	m, err := v.client.GetMarket(ctx, ticker)
	if err != nil {
		return domain.ContractStatus{}, err
	}
	return toStatus(m, v.now()), nil
}

// GetOrderbook returns bids for both legs, best first.
func (v *Venue) GetOrderbook(ctx context.Context, ticker string) (domain.Orderbook, error) {
	ob, err := v.client.GetOrderbook(ctx, ticker)
	if err != nil {
		return domain.Orderbook{}, err
	}
	return domain.Orderbook{
		Ticker:    ticker,
		YesBids:   toLevels(ob.Yes),
		NoBids:    toLevels(ob.No),
		FetchedAt: v.now(),
	}, nil
}

// PlaceOrder submits a limit order.
func (v *Venue) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderHandle, error) {
	body := CreateOrderRequest{
		Ticker:        req.Ticker,
		ClientOrderID: req.ClientOrderID,
		Action:        string(req.Action),
		Side:          string(req.Side),
		Type:          "limit",
		Count:         req.Count,
	}
	price := req.LimitPrice
	if req.Side == domain.SideYes {
		body.YesPrice = &price
	} else {
		body.NoPrice = &price
	}
	o, err := v.client.CreateOrder(ctx, body)
	if err != nil {
		return domain.OrderHandle{}, err
	}
	return toHandle(o), nil
}

// GetOrder returns the venue's view of an order.
func (v *Venue) GetOrder(ctx context.Context, orderID string) (domain.OrderHandle, error) {
	o, err := v.client.GetOrder(ctx, orderID)
	if err != nil {
		return domain.OrderHandle{}, err
	}
	return toHandle(o), nil
}

// CancelOrder cancels a resting order.
func (v *Venue) CancelOrder(ctx context.Context, orderID string) error {
	return v.client.CancelOrder(ctx, orderID)
}

// GetBalance returns available cash in dollars.
func (v *Venue) GetBalance(ctx context.Context) (float64, error) {
	cents, err := v.client.GetBalance(ctx)
	if err != nil {
		return 0, err
	}
	return float64(cents) / 100, nil
}

// ListFills returns executions for a ticker or order.
func (v *Venue) ListFills(ctx context.Context, f domain.FillFilter) ([]domain.Fill, error) {
	fills, err := v.client.GetFills(ctx, f.Ticker, f.OrderID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Fill, 0, len(fills))
	for _, fl := range fills {
		created, _ := time.Parse(time.RFC3339, fl.CreatedTime)
		out = append(out, domain.Fill{
			TradeID:   fl.TradeID,
			OrderID:   fl.OrderID,
			Ticker:    fl.Ticker,
			Side:      domain.Side(fl.Side),
			Action:    domain.OrderAction(fl.Action),
			Count:     fl.Count,
			Price:     fl.Price(),
			CreatedAt: created,
		})
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Conversion helpers
// --------------------------------------------------------------------------

func toContract(m Market, series string, now time.Time) (domain.Contract, error) {
	closeAt, err := time.Parse(time.RFC3339, m.CloseTime)
	if err != nil {
		return domain.Contract{}, fmt.Errorf("kalshi: %s close_time %q: %w", m.Ticker, m.CloseTime, err)
	}
	if m.SeriesTicker != "" {
		series = m.SeriesTicker
	}
	c := domain.Contract{
		Ticker:       m.Ticker,
		SeriesTicker: series,
		YesAsk:       m.YesAsk,
		NoAsk:        m.NoAsk,
		YesBid:       m.YesBid,
		NoBid:        m.NoBid,
		CloseTime:    closeAt,
		MinutesLeft:  minutesUntil(closeAt, now),
	}
	c.Strike, c.StrikeType = strikeOf(m)
	return c, nil
}

// strikeOf maps Kalshi strike metadata onto a single threshold. Range
// ("between") markets have no single strike and fall back to the heuristic.
func strikeOf(m Market) (*float64, domain.StrikeType) {
	switch st := strings.ToLower(m.StrikeType); {
	case strings.HasPrefix(st, "greater") && m.FloorStrike != nil:
		return m.FloorStrike, domain.StrikeAbove
	case strings.HasPrefix(st, "less") && m.CapStrike != nil:
		return m.CapStrike, domain.StrikeBelow
	}
	return nil, ""
}

func toStatus(m Market, now time.Time) domain.ContractStatus {
	s := domain.ContractStatus{
		Ticker: m.Ticker,
		YesBid: m.YesBid,
		NoBid:  m.NoBid,
	}
	switch m.Status {
	case "settled", "finalized":
		s.Status = domain.ContractSettled
	case "closed", "determined":
		s.Status = domain.ContractClosed
	default:
		s.Status = domain.ContractOpen
	}
	switch m.Result {
	case "yes":
		s.Result = domain.SideYes
	case "no":
		s.Result = domain.SideNo
	}
	if closeAt, err := time.Parse(time.RFC3339, m.CloseTime); err == nil {
		s.MinutesLeft = minutesUntil(closeAt, now)
	}
	return s
}

func toHandle(o Order) domain.OrderHandle {
	h := domain.OrderHandle{
		OrderID:        o.OrderID,
		ClientOrderID:  o.ClientOrderID,
		FilledCount:    o.Filled(),
		RemainingCount: o.RemainingCount,
	}
	switch o.Status {
	case "executed":
		h.Status = domain.OrderExecuted
	case "canceled", "cancelled":
		h.Status = domain.OrderCanceled
	case "resting":
		h.Status = domain.OrderResting
	default:
		h.Status = domain.OrderPending
	}
	return h
}

func toLevels(levels []PriceLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, l := range levels {
		if l.Quantity <= 0 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: l.Price, Quantity: l.Quantity})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	return out
}

func minutesUntil(t, now time.Time) float64 {
	return math.Max(t.Sub(now).Minutes(), 0)
}

var _ domain.Venue = (*Venue)(nil)
