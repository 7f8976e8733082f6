package domain

import "time"

// Side is one leg of a binary contract.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite returns the other leg.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// StrikeType tells which outcome the YES leg pays on.
type StrikeType string

const (
	StrikeAbove StrikeType = "above"
	StrikeBelow StrikeType = "below"
)

// Contract status values reported by the venue adapter.
const (
	ContractOpen    = "open"
	ContractClosed  = "closed"
	ContractSettled = "settled"
)

// Contract is a tradeable binary market as seen in one cycle. Prices are in
// cents (1-99); 100 cents settle to $1.
type Contract struct {
	Ticker       string     `json:"ticker"`
	SeriesTicker string     `json:"series_ticker"`
	YesAsk       int        `json:"yes_ask"`
	NoAsk        int        `json:"no_ask"`
	YesBid       int        `json:"yes_bid"`
	NoBid        int        `json:"no_bid"`
	CloseTime    time.Time  `json:"close_time"`
	MinutesLeft  float64    `json:"minutes_left"`
	Strike       *float64   `json:"strike,omitempty"`
	StrikeType   StrikeType `json:"strike_type,omitempty"`
}

// Ask returns the quoted ask for side.
func (c Contract) Ask(side Side) int {
	if side == SideYes {
		return c.YesAsk
	}
	return c.NoAsk
}

// HasStrike reports whether a usable strike reference is known.
func (c Contract) HasStrike() bool {
	return c.Strike != nil && *c.Strike > 0
}

// ContractStatus is the settlement view of a single contract.
type ContractStatus struct {
	Ticker      string  `json:"ticker"`
	Status      string  `json:"status"`
	Result      Side    `json:"result,omitempty"`
	YesBid      int     `json:"yes_bid"`
	NoBid       int     `json:"no_bid"`
	MinutesLeft float64 `json:"minutes_left"`
}

// Bid returns the best bid for side.
func (s ContractStatus) Bid(side Side) int {
	if side == SideYes {
		return s.YesBid
	}
	return s.NoBid
}

// Settled reports whether the contract has a declared result.
func (s ContractStatus) Settled() bool {
	return s.Status == ContractSettled && (s.Result == SideYes || s.Result == SideNo)
}

// ContractFilter narrows venue discovery.
type ContractFilter struct {
	Series     string
	MinMinutes float64
	MaxMinutes float64
}

// Matches reports whether c falls inside the time-to-expiry window.
func (f ContractFilter) Matches(c Contract) bool {
	if f.MinMinutes > 0 && c.MinutesLeft < f.MinMinutes {
		return false
	}
	if f.MaxMinutes > 0 && c.MinutesLeft > f.MaxMinutes {
		return false
	}
	return true
}
