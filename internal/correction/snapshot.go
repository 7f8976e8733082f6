package correction

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// SnapshotVersion is the current on-disk layout.
const SnapshotVersion = 1

// Snapshot is the durable form of the engine. Derived is informational;
// Restore recomputes it from the raw windows and counters.
type Snapshot struct {
	Version           int                          `json:"version"`
	SavedAt           time.Time                    `json:"saved_at"`
	Global            []bool                       `json:"global"`
	Buckets           map[string]map[string][]bool `json:"buckets"`
	ConsecutiveWins   int                          `json:"consecutive_wins"`
	ConsecutiveLosses int                          `json:"consecutive_losses"`
	PeakWinStreak     int                          `json:"peak_win_streak"`
	WorstLossStreak   int                          `json:"worst_loss_streak"`
	TotalBets         int                          `json:"total_bets"`
	Wins              int                          `json:"wins"`
	Losses            int                          `json:"losses"`
	TotalPnL          float64                      `json:"total_pnl"`
	History           []domain.Outcome             `json:"history"`
	Derived           domain.CorrectionStatus      `json:"derived"`
}

// Snapshot captures the raw state.
func (e *Engine) Snapshot(now time.Time) Snapshot {
	s := Snapshot{
		Version:           SnapshotVersion,
		SavedAt:           now.UTC(),
		Global:            e.global.Values(),
		Buckets:           make(map[string]map[string][]bool, len(e.buckets)),
		ConsecutiveWins:   e.consecWins,
		ConsecutiveLosses: e.consecLosses,
		PeakWinStreak:     e.peakWin,
		WorstLossStreak:   e.worstLoss,
		TotalBets:         e.total,
		Wins:              e.wins,
		Losses:            e.losses,
		TotalPnL:          e.totalPnL,
		History:           e.History(),
		Derived:           e.Status(),
	}
	for dim, byKey := range e.buckets {
		s.Buckets[dim] = make(map[string][]bool, len(byKey))
		for k, w := range byKey {
			s.Buckets[dim][k] = w.Values()
		}
	}
	return s
}

// MarshalSnapshot encodes the current state as JSON.
func (e *Engine) MarshalSnapshot(now time.Time) ([]byte, error) {
	data, err := json.Marshal(e.Snapshot(now))
	if err != nil {
		return nil, fmt.Errorf("correction: marshal snapshot: %w", err)
	}
	return data, nil
}

// Restore replaces the engine state with s and recomputes the derived
// multipliers.
func (e *Engine) Restore(s Snapshot) error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("correction: unsupported snapshot version %d", s.Version)
	}
	e.reset()
	e.global = windowFrom(e.cfg.WindowSize, s.Global)
	for dim, byKey := range s.Buckets {
		if _, ok := e.buckets[dim]; !ok {
			e.buckets[dim] = make(map[string]*Window)
		}
		for k, vals := range byKey {
			e.buckets[dim][k] = windowFrom(e.cfg.WindowSize, vals)
		}
	}
	e.consecWins = s.ConsecutiveWins
	e.consecLosses = s.ConsecutiveLosses
	e.peakWin = s.PeakWinStreak
	e.worstLoss = s.WorstLossStreak
	e.total = s.TotalBets
	e.wins = s.Wins
	e.losses = s.Losses
	e.totalPnL = s.TotalPnL
	e.history = append([]domain.Outcome(nil), s.History...)
	if e.cfg.HistorySize > 0 && len(e.history) > e.cfg.HistorySize {
		e.history = e.history[len(e.history)-e.cfg.HistorySize:]
	}
	e.recompute()
	return nil
}

// RestoreJSON decodes data and restores it.
func (e *Engine) RestoreJSON(data []byte) error {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("correction: decode snapshot: %w", err)
	}
	return e.Restore(s)
}
