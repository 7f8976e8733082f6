// Package engine runs the trading cycle: balance refresh, position
// management, discovery, scoring, sizing and placement.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
	"github.com/alanyoungcy/kalshiedge/internal/risk"
)

// Stop reasons.
const (
	StopTimeLimit = "time_limit"
	StopTarget    = "target_hit"
	StopShutdown  = "shutdown"
)

// SignalSource supplies reference asset snapshots.
type SignalSource interface {
	Snapshot(ctx context.Context) (domain.SignalSnapshot, error)
}

// Scorer turns a contract into an opportunity. edge.Model implements it.
type Scorer interface {
	Score(c domain.Contract, sig domain.SignalSnapshot, now time.Time) (*domain.Opportunity, error)
}

// Sizer bounds a stake. risk.Sizer implements it.
type Sizer interface {
	Size(opp domain.Opportunity, balance, drawdown, stakeMult float64) (risk.Stake, error)
}

// Lifecycle places and manages positions. lifecycle.Manager implements it.
type Lifecycle interface {
	Place(ctx context.Context, state *domain.EngineState, opp domain.Opportunity, stake risk.Stake, now time.Time) (*domain.Position, error)
	Process(ctx context.Context, state *domain.EngineState, now time.Time)
}

// Corrector is the slice of the correction engine the scheduler needs.
type Corrector interface {
	StakeMultiplier() float64
	Status() domain.CorrectionStatus
	MarshalSnapshot(now time.Time) ([]byte, error)
	RestoreJSON(data []byte) error
}

// Config holds scheduler settings.
type Config struct {
	Mode             string
	Account          string
	CycleInterval    time.Duration
	TimeLimit        time.Duration
	TargetBalance    float64
	Series           []string
	MinMinutes       float64
	MaxMinutes       float64
	MaxPositions     int
	MaxPerTicker     int
	CandidateDelay   time.Duration
	SnapshotInterval time.Duration
}

// Scheduler owns the engine state. Tick is called from a single goroutine;
// Status and Events are safe from any goroutine.
type Scheduler struct {
	cfg       Config
	venue     domain.Venue
	signals   SignalSource
	model     Scorer
	sizer     Sizer
	lifecycle Lifecycle
	corr      Corrector
	events    *Emitter
	snapshots domain.SnapshotStore
	locks     domain.LockManager
	logger    *slog.Logger
	now       func() time.Time

	state        *domain.EngineState
	lastSnapshot time.Time
	status       statusBox
}

// Deps groups the scheduler's collaborators. Snapshots and Locks are
// optional.
type Deps struct {
	Venue     domain.Venue
	Signals   SignalSource
	Model     Scorer
	Sizer     Sizer
	Lifecycle Lifecycle
	Corrector Corrector
	Events    *Emitter
	Snapshots domain.SnapshotStore
	Locks     domain.LockManager
	Now       func() time.Time
}

// New creates a scheduler.
func New(cfg Config, d Deps, logger *slog.Logger) *Scheduler {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		cfg:       cfg,
		venue:     d.Venue,
		signals:   d.Signals,
		model:     d.Model,
		sizer:     d.Sizer,
		lifecycle: d.Lifecycle,
		corr:      d.Corrector,
		events:    d.Events,
		snapshots: d.Snapshots,
		locks:     d.Locks,
		logger:    logger.With(slog.String("component", "scheduler")),
		now:       now,
	}
}

// Events is the outbound event stream.
func (s *Scheduler) Events() <-chan domain.Event { return s.events.Events() }

// Status returns the last published snapshot.
func (s *Scheduler) Status() domain.StatusSnapshot { return s.status.get() }

// State exposes the engine state to the tick goroutine's collaborators and
// tests. It must not be touched from other goroutines while Run is active.
func (s *Scheduler) State() *domain.EngineState { return s.state }

// Start restores the correction snapshot and seeds the bankroll.
func (s *Scheduler) Start(ctx context.Context) error {
	s.restore(ctx)

	now := s.now()
	balance, err := s.venue.GetBalance(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "initial balance unavailable",
			slog.String("error", err.Error()),
		)
	}
	s.state = domain.NewEngineState(balance, now)
	s.lastSnapshot = now

	s.logger.InfoContext(ctx, "engine started",
		slog.String("mode", s.cfg.Mode),
		slog.Float64("balance", balance),
		slog.Any("series", s.cfg.Series),
		slog.Duration("interval", s.cfg.CycleInterval),
	)
	s.emit(domain.EventEngineStarted, map[string]any{
		"mode":    s.cfg.Mode,
		"balance": balance,
		"series":  s.cfg.Series,
	})
	s.publish(now)
	return nil
}

// Run ticks until a terminal condition or ctx cancellation. It returns nil in
// both cases and writes a final snapshot.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.state == nil {
		if err := s.Start(ctx); err != nil {
			return err
		}
	}
	defer s.shutdown()

	interval := s.cfg.CycleInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if s.Tick(ctx, s.now()) {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one cycle and reports whether the engine reached a terminal
// state. Panics are recovered and reported as tick_error.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (stopped bool) {
	if s.state.Stopped {
		return true
	}
	s.state.Cycle++

	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "tick panicked",
				slog.Int64("cycle", s.state.Cycle),
				slog.String("error", fmt.Sprint(r)),
			)
			s.emit(domain.EventTickError, map[string]any{"error": fmt.Sprint(r)})
			s.publish(now)
			stopped = false
		}
	}()

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "tick:"+s.cfg.Account, 3*s.cfg.CycleInterval)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			s.logger.InfoContext(ctx, "tick skipped, another instance holds the lock")
			return false
		case err != nil:
			s.logger.WarnContext(ctx, "tick lock unavailable, continuing",
				slog.String("error", err.Error()),
			)
		default:
			defer unlock()
		}
	}

	if reason, ok := s.terminal(now); ok {
		s.stop(ctx, reason, now)
		return true
	}

	// Settlement credit may already be in venue cash while the settled
	// position is still counted as exposure, so resolve first and read the
	// venue afterwards.
	s.lifecycle.Process(ctx, s.state, now)
	s.refreshBalance(ctx)

	switch {
	case s.state.InEmergency(now):
		s.logger.DebugContext(ctx, "emergency pause, discovery skipped",
			slog.Time("until", s.state.EmergencyUntil),
		)
	case s.state.Liquidating:
		s.logger.DebugContext(ctx, "emergency liquidation in progress, discovery skipped",
			slog.Int("open", s.state.OpenCount()),
		)
	case !s.state.EmergencyUntil.IsZero():
		s.logger.InfoContext(ctx, "emergency pause elapsed")
		s.emit(domain.EventEmergencyExited, map[string]any{"until": s.state.EmergencyUntil})
		s.state.EmergencyUntil = time.Time{}
		s.seek(ctx, now)
	default:
		s.seek(ctx, now)
	}

	s.emit(domain.EventHeartbeat, map[string]any{
		"balance":  s.state.Balance,
		"open":     s.state.OpenCount(),
		"drawdown": s.state.Drawdown(),
	})
	s.publish(now)
	s.maybeSnapshot(ctx, now)
	return false
}

// seek discovers, scores, sizes and places up to the free position slots.
func (s *Scheduler) seek(ctx context.Context, now time.Time) {
	slots := s.cfg.MaxPositions - s.state.OpenCount()
	if s.cfg.MaxPositions > 0 && slots <= 0 {
		s.logger.DebugContext(ctx, "position limit reached, discovery skipped")
		return
	}

	sig, err := s.signals.Snapshot(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "signal unavailable, discovery skipped",
			slog.String("error", err.Error()),
		)
		return
	}

	opps := s.candidates(s.discover(ctx), sig, now)
	placed := 0
	for _, opp := range opps {
		if s.cfg.MaxPositions > 0 && placed >= slots {
			break
		}
		if placed > 0 && s.cfg.CandidateDelay > 0 {
			if err := sleepCtx(ctx, s.cfg.CandidateDelay); err != nil {
				return
			}
		}
		stake, err := s.sizer.Size(opp, s.state.Balance, s.state.Drawdown(), s.corr.StakeMultiplier())
		if err != nil {
			s.logger.InfoContext(ctx, "candidate not sized",
				slog.String("ticker", opp.Contract.Ticker),
				slog.String("error", err.Error()),
			)
			continue
		}
		if _, err := s.lifecycle.Place(ctx, s.state, opp, stake, now); err != nil {
			s.logger.WarnContext(ctx, "placement failed",
				slog.String("ticker", opp.Contract.Ticker),
				slog.String("phase", "place"),
				slog.String("error", err.Error()),
			)
			if errors.Is(err, domain.ErrPositionLimit) && s.state.OpenCount() >= s.cfg.MaxPositions {
				return
			}
			continue
		}
		placed++
	}
}

func (s *Scheduler) terminal(now time.Time) (string, bool) {
	if s.cfg.TimeLimit > 0 && now.Sub(s.state.StartedAt) > s.cfg.TimeLimit {
		return StopTimeLimit, true
	}
	if s.cfg.TargetBalance > 0 && s.state.Balance >= s.cfg.TargetBalance {
		return StopTarget, true
	}
	return "", false
}

func (s *Scheduler) stop(ctx context.Context, reason string, now time.Time) {
	s.state.Stopped = true
	s.state.StopReason = reason
	s.logger.InfoContext(ctx, "engine stopping",
		slog.String("reason", reason),
		slog.Float64("balance", s.state.Balance),
		slog.Float64("realized_pnl", s.state.RealizedPnL),
	)
	payload := map[string]any{"reason": reason, "balance": s.state.Balance}
	if reason == StopTarget {
		s.emit(domain.EventTargetHit, payload)
	}
	s.emit(domain.EventEngineStopped, payload)
	s.publish(now)
}

// refreshBalance sets the bankroll to venue cash plus the cost of positions
// still live after the lifecycle pass. On failure the balance adjusted by
// this tick's resolutions stands.
func (s *Scheduler) refreshBalance(ctx context.Context) {
	cash, err := s.venue.GetBalance(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "balance refresh failed",
			slog.String("error", err.Error()),
		)
		return
	}
	s.state.Balance = cash + s.state.Exposure()
	s.state.UpdatePeak()
}

func (s *Scheduler) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	now := s.now()
	if !s.state.Stopped {
		s.state.Stopped = true
		s.state.StopReason = StopShutdown
		s.emit(domain.EventEngineStopped, map[string]any{"reason": StopShutdown, "balance": s.state.Balance})
	}
	s.publish(now)
	s.saveSnapshot(ctx, now)
}

func (s *Scheduler) emit(t domain.EventType, payload map[string]any) {
	var cycle int64
	if s.state != nil {
		cycle = s.state.Cycle
	}
	s.events.Emit(t, cycle, payload)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
