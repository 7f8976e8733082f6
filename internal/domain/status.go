package domain

import "time"

// BucketStat is the rolling record of one correction bucket.
type BucketStat struct {
	Samples int     `json:"samples"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"win_rate"`
}

// CorrectionStatus is the derived view of the correction engine.
type CorrectionStatus struct {
	Regime            string                           `json:"regime"`
	EdgeMultiplier    float64                          `json:"edge_multiplier"`
	StakeMultiplier   float64                          `json:"stake_multiplier"`
	Weights           map[string]map[string]float64    `json:"weights"`
	WinRates          map[string]map[string]BucketStat `json:"win_rates"`
	GlobalWinRate     float64                          `json:"global_win_rate"`
	ConsecutiveWins   int                              `json:"consecutive_wins"`
	ConsecutiveLosses int                              `json:"consecutive_losses"`
	PeakWinStreak     int                              `json:"peak_win_streak"`
	WorstLossStreak   int                              `json:"worst_loss_streak"`
	TotalBets         int                              `json:"total_bets"`
	Wins              int                              `json:"wins"`
	Losses            int                              `json:"losses"`
	TotalPnL          float64                          `json:"total_pnl"`
}

// StatusSnapshot is a point-in-time copy of the engine for observers.
type StatusSnapshot struct {
	Mode            string           `json:"mode"`
	Balance         float64          `json:"balance"`
	Peak            float64          `json:"peak"`
	StartingBalance float64          `json:"starting_balance"`
	RealizedPnL     float64          `json:"realized_pnl"`
	Drawdown        float64          `json:"drawdown"`
	Countdown       time.Duration    `json:"countdown"`
	Cycle           int64            `json:"cycle"`
	OpenPositions   []Position       `json:"open_positions"`
	RecentOutcomes  []Outcome        `json:"recent_outcomes"`
	Correction      CorrectionStatus `json:"correction"`
	Events          []Event          `json:"events"`
	DroppedEvents   int64            `json:"dropped_events"`
	EmergencyUntil  time.Time        `json:"emergency_until"`
	Stopped         bool             `json:"stopped"`
	StopReason      string           `json:"stop_reason,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}
