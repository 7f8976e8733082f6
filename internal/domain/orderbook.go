package domain

import "time"

// PriceLevel is a single resting bid.
type PriceLevel struct {
	Price    int   `json:"price"`
	Quantity int64 `json:"quantity"`
}

// Orderbook holds resting bids for both legs.
type Orderbook struct {
	Ticker    string       `json:"ticker"`
	YesBids   []PriceLevel `json:"yes_bids"`
	NoBids    []PriceLevel `json:"no_bids"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// BestBid returns the highest bid for side, or 0 when the book is empty.
func (ob Orderbook) BestBid(side Side) int {
	levels := ob.YesBids
	if side == SideNo {
		levels = ob.NoBids
	}
	best := 0
	for _, l := range levels {
		if l.Quantity > 0 && l.Price > best {
			best = l.Price
		}
	}
	return best
}
