// Package mock provides an in-memory, scriptable venue for exercising the
// engine without network access.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// Venue is a goroutine-safe fake exchange. Unless OnPlace is set every order
// executes in full. Fills move the cash balance at the limit price.
type Venue struct {
	mu sync.Mutex

	contracts  map[string][]domain.Contract
	listErr    map[string]error
	statuses   map[string]domain.ContractStatus
	statusErr  map[string]error
	orders     map[string]domain.OrderHandle
	orderErr   error
	fills      []domain.Fill
	balance    float64
	balanceErr error
	placeErr   error
	nextID     int

	// OnPlace decides the venue's response to an order.
	OnPlace func(req domain.OrderRequest) domain.OrderHandle

	Placed    []domain.OrderRequest
	Cancelled []string
}

// NewVenue creates a venue holding balance dollars.
func NewVenue(balance float64) *Venue {
	return &Venue{
		contracts: make(map[string][]domain.Contract),
		listErr:   make(map[string]error),
		statuses:  make(map[string]domain.ContractStatus),
		statusErr: make(map[string]error),
		orders:    make(map[string]domain.OrderHandle),
		balance:   balance,
	}
}

// SetContracts replaces the listing for series.
func (v *Venue) SetContracts(series string, cs ...domain.Contract) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.contracts[series] = cs
	for _, c := range cs {
		if _, ok := v.statuses[c.Ticker]; !ok {
			v.statuses[c.Ticker] = domain.ContractStatus{
				Ticker:      c.Ticker,
				Status:      domain.ContractOpen,
				YesBid:      c.YesBid,
				NoBid:       c.NoBid,
				MinutesLeft: c.MinutesLeft,
			}
		}
	}
}

// SetListError makes discovery for series fail.
func (v *Venue) SetListError(series string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listErr[series] = err
}

// SetStatus sets the settlement view of a ticker.
func (v *Venue) SetStatus(s domain.ContractStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.statuses[s.Ticker] = s
}

// SetStatusError makes GetContract fail for ticker.
func (v *Venue) SetStatusError(ticker string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.statusErr[ticker] = err
}

// SetOrder overrides the stored state of an order.
func (v *Venue) SetOrder(h domain.OrderHandle) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.orders[h.OrderID] = h
}

// SetOrderError makes GetOrder fail.
func (v *Venue) SetOrderError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.orderErr = err
}

// AddFill appends to the fill ledger.
func (v *Venue) AddFill(f domain.Fill) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fills = append(v.fills, f)
}

// SetBalance sets the cash balance and an optional error.
func (v *Venue) SetBalance(b float64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balance, v.balanceErr = b, err
}

// SetPlaceError makes PlaceOrder fail.
func (v *Venue) SetPlaceError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.placeErr = err
}

// PlacedOrders returns a copy of every order request seen.
func (v *Venue) PlacedOrders() []domain.OrderRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.OrderRequest(nil), v.Placed...)
}

func (v *Venue) ListOpenContracts(_ context.Context, f domain.ContractFilter) ([]domain.Contract, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.listErr[f.Series]; err != nil {
		return nil, err
	}
	return append([]domain.Contract(nil), v.contracts[f.Series]...), nil
}

func (v *Venue) GetContract(_ context.Context, ticker string) (domain.ContractStatus, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.statusErr[ticker]; err != nil {
		return domain.ContractStatus{}, err
	}
	s, ok := v.statuses[ticker]
	if !ok {
		return domain.ContractStatus{}, fmt.Errorf("mock: %s: %w", ticker, domain.ErrNotFound)
	}
	return s, nil
}

func (v *Venue) GetOrderbook(_ context.Context, ticker string) (domain.Orderbook, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.statuses[ticker]
	if !ok {
		return domain.Orderbook{}, fmt.Errorf("mock: %s: %w", ticker, domain.ErrNotFound)
	}
	ob := domain.Orderbook{Ticker: ticker, FetchedAt: time.Now()}
	if s.YesBid > 0 {
		ob.YesBids = []domain.PriceLevel{{Price: s.YesBid, Quantity: 100}}
	}
	if s.NoBid > 0 {
		ob.NoBids = []domain.PriceLevel{{Price: s.NoBid, Quantity: 100}}
	}
	return ob, nil
}

func (v *Venue) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderHandle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Placed = append(v.Placed, req)
	if v.placeErr != nil {
		return domain.OrderHandle{}, v.placeErr
	}
	v.nextID++
	h := domain.OrderHandle{
		OrderID:       fmt.Sprintf("ord-%d", v.nextID),
		ClientOrderID: req.ClientOrderID,
		Status:        domain.OrderExecuted,
		FilledCount:   req.Count,
	}
	if v.OnPlace != nil {
		h = v.OnPlace(req)
		if h.OrderID == "" {
			h.OrderID = fmt.Sprintf("ord-%d", v.nextID)
		}
		h.ClientOrderID = req.ClientOrderID
	}
	v.orders[h.OrderID] = h
	if h.FilledCount > 0 {
		notional := float64(h.FilledCount) * float64(req.LimitPrice) / 100
		if req.Action == domain.ActionSell {
			v.balance += notional
		} else {
			v.balance -= notional
		}
		v.fills = append(v.fills, domain.Fill{
			TradeID:   fmt.Sprintf("fill-%d", v.nextID),
			OrderID:   h.OrderID,
			Ticker:    req.Ticker,
			Side:      req.Side,
			Action:    req.Action,
			Count:     h.FilledCount,
			Price:     req.LimitPrice,
			CreatedAt: time.Now(),
		})
	}
	return h, nil
}

func (v *Venue) GetOrder(_ context.Context, orderID string) (domain.OrderHandle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.orderErr != nil {
		return domain.OrderHandle{}, v.orderErr
	}
	h, ok := v.orders[orderID]
	if !ok {
		return domain.OrderHandle{}, fmt.Errorf("mock: order %s: %w", orderID, domain.ErrNotFound)
	}
	return h, nil
}

func (v *Venue) CancelOrder(_ context.Context, orderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Cancelled = append(v.Cancelled, orderID)
	h, ok := v.orders[orderID]
	if !ok {
		return fmt.Errorf("mock: order %s: %w", orderID, domain.ErrNotFound)
	}
	h.Status = domain.OrderCanceled
	h.RemainingCount = 0
	v.orders[orderID] = h
	return nil
}

func (v *Venue) GetBalance(context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance, v.balanceErr
}

func (v *Venue) ListFills(_ context.Context, f domain.FillFilter) ([]domain.Fill, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []domain.Fill
	for _, fl := range v.fills {
		if f.OrderID != "" && fl.OrderID != f.OrderID {
			continue
		}
		if f.Ticker != "" && fl.Ticker != f.Ticker {
			continue
		}
		out = append(out, fl)
	}
	return out, nil
}

var _ domain.Venue = (*Venue)(nil)
