package domain

import (
	"context"
	"time"
)

// OrderAction is the direction of an order on one leg.
type OrderAction string

const (
	ActionBuy  OrderAction = "buy"
	ActionSell OrderAction = "sell"
)

// OrderStatus mirrors the venue's order lifecycle.
type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderResting  OrderStatus = "resting"
	OrderExecuted OrderStatus = "executed"
	OrderCanceled OrderStatus = "canceled"
)

// OrderRequest is a limit order on a single leg.
type OrderRequest struct {
	Ticker        string
	Side          Side
	Action        OrderAction
	Count         int
	LimitPrice    int
	ClientOrderID string
}

// OrderHandle is the venue's view of an order.
type OrderHandle struct {
	OrderID        string      `json:"order_id"`
	ClientOrderID  string      `json:"client_order_id"`
	Status         OrderStatus `json:"status"`
	FilledCount    int         `json:"filled_count"`
	RemainingCount int         `json:"remaining_count"`
}

// Executed reports whether the order is fully filled.
func (h OrderHandle) Executed() bool {
	return h.Status == OrderExecuted || (h.FilledCount > 0 && h.RemainingCount == 0)
}

// Fill is a single execution against an order.
type Fill struct {
	TradeID   string      `json:"trade_id"`
	OrderID   string      `json:"order_id"`
	Ticker    string      `json:"ticker"`
	Side      Side        `json:"side"`
	Action    OrderAction `json:"action"`
	Count     int         `json:"count"`
	Price     int         `json:"price"`
	CreatedAt time.Time   `json:"created_at"`
}

// FillFilter narrows ListFills.
type FillFilter struct {
	Ticker  string
	OrderID string
}

// Venue is the exchange surface the engine consumes. Every call is fallible;
// ErrNotFound marks a resource the venue no longer knows.
type Venue interface {
	ListOpenContracts(ctx context.Context, filter ContractFilter) ([]Contract, error)
	GetContract(ctx context.Context, ticker string) (ContractStatus, error)
	GetOrderbook(ctx context.Context, ticker string) (Orderbook, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderHandle, error)
	GetOrder(ctx context.Context, orderID string) (OrderHandle, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetBalance(ctx context.Context) (float64, error)
	ListFills(ctx context.Context, filter FillFilter) ([]Fill, error)
}
