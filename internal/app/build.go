package app

import (
	"github.com/alanyoungcy/kalshiedge/internal/config"
	"github.com/alanyoungcy/kalshiedge/internal/correction"
	"github.com/alanyoungcy/kalshiedge/internal/edge"
	"github.com/alanyoungcy/kalshiedge/internal/engine"
	"github.com/alanyoungcy/kalshiedge/internal/lifecycle"
	"github.com/alanyoungcy/kalshiedge/internal/risk"
)

// core is the trading engine assembled from config and dependencies.
type core struct {
	scheduler *engine.Scheduler
	events    *engine.Emitter
}

// buildCore wires correction, edge, risk and lifecycle into a scheduler.
func (a *App) buildCore(deps *Dependencies) *core {
	cfg := a.cfg
	events := engine.NewEmitter(cfg.Engine.EventBuffer, cfg.Engine.EventLogSize)
	corr := correction.New(correctionConfig(cfg))

	var opts []lifecycle.Option
	if deps.Outcomes != nil {
		opts = append(opts, lifecycle.WithOutcomeStore(deps.Outcomes))
	}
	if deps.Audit != nil {
		opts = append(opts, lifecycle.WithAuditStore(deps.Audit))
	}
	if deps.RateLimiter != nil {
		opts = append(opts, lifecycle.WithRateLimiter(deps.RateLimiter))
	}
	manager := lifecycle.NewManager(lifecycleConfig(cfg), deps.Venue, corr, events, a.logger, opts...)

	sched := engine.New(engine.Config{
		Mode:             deps.Mode,
		Account:          cfg.Engine.Account,
		CycleInterval:    cfg.Engine.CycleInterval.Duration,
		TimeLimit:        cfg.Engine.TimeLimit.Duration,
		TargetBalance:    cfg.Engine.TargetBalance,
		Series:           cfg.Engine.Series,
		MinMinutes:       cfg.Engine.MinMinutes,
		MaxMinutes:       cfg.Engine.MaxMinutes,
		MaxPositions:     cfg.Engine.MaxPositions,
		MaxPerTicker:     cfg.Engine.MaxPerTicker,
		CandidateDelay:   cfg.Engine.CandidateDelay.Duration,
		SnapshotInterval: cfg.Engine.SnapshotInterval.Duration,
	}, engine.Deps{
		Venue:     deps.Venue,
		Signals:   deps.Signals,
		Model:     edge.NewModel(edgeConfig(cfg), corr),
		Sizer:     risk.NewSizer(riskConfig(cfg)),
		Lifecycle: manager,
		Corrector: corr,
		Events:    events,
		Snapshots: deps.Snapshots,
		Locks:     deps.LockManager,
	}, a.logger)

	return &core{scheduler: sched, events: events}
}

func edgeConfig(cfg *config.Config) edge.Config {
	e := cfg.Edge
	return edge.Config{
		BaseMinEdge:       e.BaseMinEdge,
		MinNetPayoutCents: e.MinNetPayoutCents,
		VolFloor:          e.VolFloor,
		VolLow:            e.VolLow,
		VolHigh:           e.VolHigh,
		MicroEnabled:      e.MicroEnabled,
		MicroEdgeCeiling:  e.MicroEdgeCeiling,
		MomentumWeight:    e.MomentumWeight,
		MomentumClip:      e.MomentumClip,
		OscillatorWeight:  e.OscillatorWeight,
		OscillatorClip:    e.OscillatorClip,
		OscillatorExtreme: e.OscillatorExtreme,
		TrendStrong:       e.TrendStrong,
		TrendWeak:         e.TrendWeak,
		TrendClip:         e.TrendClip,
		ExpiryAmplify:     e.ExpiryAmplify,
		MaxMinutes:        cfg.Engine.MaxMinutes,
		ProbMin:           e.ProbMin,
		ProbMax:           e.ProbMax,
	}
}

func riskConfig(cfg *config.Config) risk.Config {
	r := cfg.Risk
	tiers := make([]risk.MicroTier, 0, len(r.MicroTiers))
	for _, t := range r.MicroTiers {
		tiers = append(tiers, risk.MicroTier{MinEdge: t.MinEdge, Contracts: t.Contracts})
	}
	return risk.Config{
		KellyCap:          r.KellyCap,
		KellyDamping:      r.KellyDamping,
		MaxTradeFraction:  r.MaxTradeFraction,
		CeilingFraction:   r.CeilingFraction,
		MicroRiskFraction: r.MicroRiskFraction,
		MicroTiers:        tiers,
		DrawdownSoft:      r.DrawdownSoft,
		DrawdownHard:      r.DrawdownHard,
		DrawdownSoftMult:  r.DrawdownSoftMult,
		DrawdownHardMult:  r.DrawdownHardMult,
	}
}

func correctionConfig(cfg *config.Config) correction.Config {
	c := cfg.Correction
	return correction.Config{
		WindowSize:       c.WindowSize,
		MinSamples:       c.MinSamples,
		BucketMinSamples: c.BucketMinSamples,
		WinRatePivot:     c.WinRatePivot,
		WinRateSlope:     c.WinRateSlope,
		EdgeMultMin:      c.EdgeMultMin,
		EdgeMultMax:      c.EdgeMultMax,
		WeightSlope:      c.WeightSlope,
		WeightMin:        c.WeightMin,
		WeightMax:        c.WeightMax,
		AvoidMinSamples:  c.AvoidMinSamples,
		AvoidWinRate:     c.AvoidWinRate,
		HistorySize:      cfg.Engine.HistorySize,
	}
}

func lifecycleConfig(cfg *config.Config) lifecycle.Config {
	e, x := cfg.Engine, cfg.Exit
	return lifecycle.Config{
		MaxPositions:      e.MaxPositions,
		MaxPerTicker:      e.MaxPerTicker,
		StaleOrderAge:     e.StaleOrderAge.Duration,
		EmergencyCooldown: e.EmergencyCooldown.Duration,
		HistorySize:       e.HistorySize,
		OrderRateKey:      "orders:" + e.Account,
		OrderRateLimit:    e.OrderRateLimit,
		OrderRateWindow:   e.OrderRateWindow.Duration,
		Exit: lifecycle.ExitConfig{
			TakeProfit:         x.TakeProfit,
			StopLoss:           x.StopLoss,
			StopLossTightening: x.StopLossTightening,
			StopLossMin:        x.StopLossMin,
			TimeDecayMinutes:   x.TimeDecayMinutes,
			FairValueBand:      x.FairValueBand,
			EmergencyDrawdown:  x.EmergencyDrawdown,
		},
	}
}
