package domain

import "time"

// EngineState is the bankroll and position book owned by the scheduler.
// Only the tick goroutine mutates it.
type EngineState struct {
	Balance           float64              `json:"balance"`
	Peak              float64              `json:"peak"`
	StartingBalance   float64              `json:"starting_balance"`
	RealizedPnL       float64              `json:"realized_pnl"`
	StartedAt         time.Time            `json:"started_at"`
	Positions         map[string]*Position `json:"positions"`
	ConsecutiveWins   int                  `json:"consecutive_wins"`
	ConsecutiveLosses int                  `json:"consecutive_losses"`
	EmergencyUntil    time.Time            `json:"emergency_until"`
	Liquidating       bool                 `json:"liquidating"`
	Recent            []Outcome            `json:"recent"`
	Cycle             int64                `json:"cycle"`
	Stopped           bool                 `json:"stopped"`
	StopReason        string               `json:"stop_reason,omitempty"`
}

// NewEngineState seeds a state with a starting bankroll.
func NewEngineState(balance float64, now time.Time) *EngineState {
	return &EngineState{
		Balance:         balance,
		Peak:            balance,
		StartingBalance: balance,
		StartedAt:       now,
		Positions:       make(map[string]*Position),
	}
}

// Drawdown is the fractional decline of balance from peak.
func (s *EngineState) Drawdown() float64 {
	if s.Peak <= 0 {
		return 0
	}
	dd := 1 - s.Balance/s.Peak
	if dd < 0 {
		return 0
	}
	return dd
}

// Exposure is the total cost of live positions.
func (s *EngineState) Exposure() float64 {
	var total float64
	for _, p := range s.Positions {
		if !p.State.Terminal() {
			total += p.Cost
		}
	}
	return total
}

// OpenCount counts live positions.
func (s *EngineState) OpenCount() int {
	n := 0
	for _, p := range s.Positions {
		if !p.State.Terminal() {
			n++
		}
	}
	return n
}

// CountByTicker counts live positions on ticker.
func (s *EngineState) CountByTicker(ticker string) int {
	n := 0
	for _, p := range s.Positions {
		if p.Ticker == ticker && !p.State.Terminal() {
			n++
		}
	}
	return n
}

// UpdatePeak raises the high-water mark to the current balance.
func (s *EngineState) UpdatePeak() {
	if s.Balance > s.Peak {
		s.Peak = s.Balance
	}
}

// AppendOutcome appends o and evicts the oldest entries beyond max.
func (s *EngineState) AppendOutcome(o Outcome, max int) {
	s.Recent = append(s.Recent, o)
	if max > 0 && len(s.Recent) > max {
		s.Recent = append([]Outcome(nil), s.Recent[len(s.Recent)-max:]...)
	}
}

// InEmergency reports whether the post-liquidation cooldown is active.
func (s *EngineState) InEmergency(now time.Time) bool {
	return !s.EmergencyUntil.IsZero() && now.Before(s.EmergencyUntil)
}
