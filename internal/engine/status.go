package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

type statusBox struct {
	mu   sync.RWMutex
	snap domain.StatusSnapshot
}

func (b *statusBox) get() domain.StatusSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}

func (b *statusBox) set(s domain.StatusSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap = s
}

// publish copies the engine state into the shared snapshot.
func (s *Scheduler) publish(now time.Time) {
	st := s.state
	open := make([]domain.Position, 0, len(st.Positions))
	for _, p := range st.Positions {
		open = append(open, *p)
	}
	sort.Slice(open, func(i, j int) bool { return open[i].PlacedAt.Before(open[j].PlacedAt) })

	var countdown time.Duration
	if s.cfg.TimeLimit > 0 {
		countdown = max(s.cfg.TimeLimit-now.Sub(st.StartedAt), 0)
	}

	s.status.set(domain.StatusSnapshot{
		Mode:            s.cfg.Mode,
		Balance:         st.Balance,
		Peak:            st.Peak,
		StartingBalance: st.StartingBalance,
		RealizedPnL:     st.RealizedPnL,
		Drawdown:        st.Drawdown(),
		Countdown:       countdown,
		Cycle:           st.Cycle,
		OpenPositions:   open,
		RecentOutcomes:  append([]domain.Outcome(nil), st.Recent...),
		Correction:      s.corr.Status(),
		Events:          s.events.Recent(),
		DroppedEvents:   s.events.Dropped(),
		EmergencyUntil:  st.EmergencyUntil,
		Stopped:         st.Stopped,
		StopReason:      st.StopReason,
		UpdatedAt:       now.UTC(),
	})
}

// restore loads the correction snapshot. Absence is a cold start.
func (s *Scheduler) restore(ctx context.Context) {
	if s.snapshots == nil {
		return
	}
	data, err := s.snapshots.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.logger.InfoContext(ctx, "no correction snapshot, starting cold")
		return
	case err != nil:
		s.logger.WarnContext(ctx, "correction snapshot unreadable, starting cold",
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.corr.RestoreJSON(data); err != nil {
		s.logger.WarnContext(ctx, "correction snapshot rejected, starting cold",
			slog.String("error", err.Error()),
		)
		return
	}
	cs := s.corr.Status()
	s.logger.InfoContext(ctx, "correction snapshot restored",
		slog.String("regime", cs.Regime),
		slog.Int("total_bets", cs.TotalBets),
		slog.Float64("edge_multiplier", cs.EdgeMultiplier),
	)
}

func (s *Scheduler) maybeSnapshot(ctx context.Context, now time.Time) {
	if s.cfg.SnapshotInterval <= 0 || now.Sub(s.lastSnapshot) < s.cfg.SnapshotInterval {
		return
	}
	s.saveSnapshot(ctx, now)
}

func (s *Scheduler) saveSnapshot(ctx context.Context, now time.Time) {
	if s.snapshots == nil {
		return
	}
	data, err := s.corr.MarshalSnapshot(now)
	if err != nil {
		s.logger.ErrorContext(ctx, "correction snapshot encode failed", slog.String("error", err.Error()))
		return
	}
	if err := s.snapshots.Save(ctx, data); err != nil {
		s.logger.WarnContext(ctx, "correction snapshot save failed", slog.String("error", err.Error()))
		return
	}
	s.lastSnapshot = now
}
