package kalshi

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// Market is a market as returned by the Kalshi REST API. Prices are cents.
type Market struct {
	Ticker       string   `json:"ticker"`
	EventTicker  string   `json:"event_ticker"`
	SeriesTicker string   `json:"series_ticker"`
	Title        string   `json:"title"`
	Status       string   `json:"status"` // "initialized", "active", "closed", "determined", "settled", "finalized"
	YesBid       int      `json:"yes_bid"`
	YesAsk       int      `json:"yes_ask"`
	NoBid        int      `json:"no_bid"`
	NoAsk        int      `json:"no_ask"`
	LastPrice    int      `json:"last_price"`
	Volume       int64    `json:"volume"`
	OpenInterest int64    `json:"open_interest"`
	StrikeType   string   `json:"strike_type"` // "greater", "greater_or_equal", "less", "less_or_equal", "between", ...
	FloorStrike  *float64 `json:"floor_strike"`
	CapStrike    *float64 `json:"cap_strike"`
	Result       string   `json:"result"` // "yes", "no", "" (unsettled)
	OpenTime     string   `json:"open_time"`
	CloseTime    string   `json:"close_time"`
}

// MarketsQuery filters GET /markets.
type MarketsQuery struct {
	SeriesTicker string
	Status       string
	MinCloseTs   int64
	MaxCloseTs   int64
	Limit        int
	Cursor       string
}

// MarketsPage is one page of GET /markets.
type MarketsPage struct {
	Markets []Market `json:"markets"`
	Cursor  string   `json:"cursor"`
}

// Orderbook is the bid ladder for both legs of a market. Kalshi only
// publishes bids; a leg's ask is 100 minus the opposite leg's best bid.
type Orderbook struct {
	Yes []PriceLevel `json:"yes"`
	No  []PriceLevel `json:"no"`
}

// PriceLevel is a single price+quantity entry. On the wire it is a two
// element array: [price_cents, quantity].
type PriceLevel struct {
	Price    int
	Quantity int64
}

// UnmarshalJSON decodes the [price, quantity] array form.
func (p *PriceLevel) UnmarshalJSON(data []byte) error {
	var pair []json.Number
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("kalshi: price level: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("kalshi: price level: want 2 elements, got %d", len(pair))
	}
	price, err := pair[0].Int64()
	if err != nil {
		return fmt.Errorf("kalshi: price level price: %w", err)
	}
	qty, err := pair[1].Int64()
	if err != nil {
		return fmt.Errorf("kalshi: price level quantity: %w", err)
	}
	p.Price, p.Quantity = int(price), qty
	return nil
}

// MarshalJSON encodes the [price, quantity] array form.
func (p PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{int64(p.Price), p.Quantity})
}

// CreateOrderRequest is the body of POST /portfolio/orders.
type CreateOrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	Action        string `json:"action"` // "buy" or "sell"
	Side          string `json:"side"`   // "yes" or "no"
	Type          string `json:"type"`   // "limit"
	Count         int    `json:"count"`
	YesPrice      *int   `json:"yes_price,omitempty"`
	NoPrice       *int   `json:"no_price,omitempty"`
}

// Order is the venue's view of an order.
type Order struct {
	OrderID        string `json:"order_id"`
	ClientOrderID  string `json:"client_order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"` // "resting", "canceled", "executed", "pending"
	Action         string `json:"action"`
	Side           string `json:"side"`
	Type           string `json:"type"`
	YesPrice       int    `json:"yes_price"`
	NoPrice        int    `json:"no_price"`
	FillCount      int    `json:"fill_count"`
	RemainingCount int    `json:"remaining_count"`
	InitialCount   int    `json:"initial_count"`
	CreatedTime    string `json:"created_time"`
}

// Filled returns the number of contracts executed so far. Older payloads
// omit fill_count; initial minus remaining is used then.
func (o Order) Filled() int {
	if o.FillCount > 0 {
		return o.FillCount
	}
	if o.InitialCount > 0 && o.Status != "pending" {
		return max(o.InitialCount-o.RemainingCount, 0)
	}
	return 0
}

// Fill is one execution against one of our orders.
type Fill struct {
	TradeID     string `json:"trade_id"`
	OrderID     string `json:"order_id"`
	Ticker      string `json:"ticker"`
	Side        string `json:"side"`
	Action      string `json:"action"`
	Count       int    `json:"count"`
	YesPrice    int    `json:"yes_price"`
	NoPrice     int    `json:"no_price"`
	IsTaker     bool   `json:"is_taker"`
	CreatedTime string `json:"created_time"`
}

// Price returns the execution price of the fill's own side.
func (f Fill) Price() int {
	if f.Side == "no" {
		return f.NoPrice
	}
	return f.YesPrice
}

// ErrorResponse is a Kalshi API error body.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
