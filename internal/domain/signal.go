package domain

import "time"

// Trend labels.
const (
	TrendStrongUp   = "strong_up"
	TrendUp         = "up"
	TrendFlat       = "flat"
	TrendDown       = "down"
	TrendStrongDown = "strong_down"
)

// SignalSnapshot is a read-only view of the reference asset.
// Momentum and volatility figures are percentages.
type SignalSnapshot struct {
	Asset          string    `json:"asset"`
	ReferencePrice float64   `json:"reference_price"`
	Momentum1m     float64   `json:"momentum_1m"`
	Momentum5m     float64   `json:"momentum_5m"`
	Momentum15m    float64   `json:"momentum_15m"`
	Volatility5m   float64   `json:"volatility_5m"`
	Trend          string    `json:"trend"`
	Oscillator     float64   `json:"oscillator"`
	CompositeScore float64   `json:"composite_score"`
	Confidence     float64   `json:"confidence"`
	Source         string    `json:"source"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// PricePoint is a single reference price observation.
type PricePoint struct {
	Price float64   `json:"price"`
	At    time.Time `json:"at"`
}
