package domain

import "time"

// PositionState tracks a position through its lifecycle.
type PositionState string

const (
	PositionPlaced    PositionState = "placed"
	PositionFilled    PositionState = "filled"
	PositionEarlyExit PositionState = "early_exit"
	PositionSettled   PositionState = "settled"
	PositionCancelled PositionState = "cancelled"
	PositionAbandoned PositionState = "abandoned"
)

// Terminal reports whether no further transition is allowed.
func (s PositionState) Terminal() bool {
	switch s {
	case PositionEarlyExit, PositionSettled, PositionCancelled, PositionAbandoned:
		return true
	}
	return false
}

// Position is an accepted stake owned by the lifecycle manager.
type Position struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"order_id"`
	ClientOrderID   string          `json:"client_order_id"`
	Ticker          string          `json:"ticker"`
	Side            Side            `json:"side"`
	Kind            OpportunityKind `json:"kind"`
	EntryPrice      int             `json:"entry_price"`
	Contracts       int             `json:"contracts"`
	Cost            float64         `json:"cost"`
	PlacedAt        time.Time       `json:"placed_at"`
	FilledAt        *time.Time      `json:"filled_at,omitempty"`
	MinutesToExpiry float64         `json:"minutes_to_expiry"`
	CloseTime       time.Time       `json:"close_time"`
	Context         DecisionContext `json:"context"`
	State           PositionState   `json:"state"`
	ExitPrice       *int            `json:"exit_price,omitempty"`
	ExitReason      string          `json:"exit_reason,omitempty"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

// Resolution kinds recorded on outcomes.
const (
	ResolutionSettled   = "settled"
	ResolutionEarlyExit = "early_exit"
)

// Outcome is the immutable result of a resolved position.
type Outcome struct {
	PositionID string          `json:"position_id"`
	Ticker     string          `json:"ticker"`
	Side       Side            `json:"side"`
	Kind       OpportunityKind `json:"kind"`
	Won        bool            `json:"won"`
	PnL        float64         `json:"pnl"`
	EntryPrice int             `json:"entry_price"`
	ExitPrice  int             `json:"exit_price"`
	Contracts  int             `json:"contracts"`
	Context    DecisionContext `json:"context"`
	Resolution string          `json:"resolution"`
	Reason     string          `json:"reason"`
	ResolvedAt time.Time       `json:"resolved_at"`
}
