package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// discover lists every configured series concurrently. Each goroutine writes
// only its own slot; a failing series is logged and skipped.
func (s *Scheduler) discover(ctx context.Context) []domain.Contract {
	results := make([][]domain.Contract, len(s.cfg.Series))
	g, gctx := errgroup.WithContext(ctx)
	for i, series := range s.cfg.Series {
		g.Go(func() error {
			cs, err := s.venue.ListOpenContracts(gctx, domain.ContractFilter{
				Series:     series,
				MinMinutes: s.cfg.MinMinutes,
				MaxMinutes: s.cfg.MaxMinutes,
			})
			if err != nil {
				s.logger.WarnContext(gctx, "discovery failed",
					slog.String("series", series),
					slog.String("error", err.Error()),
				)
				return nil
			}
			results[i] = cs
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	var out []domain.Contract
	for _, cs := range results {
		for _, c := range cs {
			if seen[c.Ticker] {
				continue
			}
			seen[c.Ticker] = true
			out = append(out, c)
		}
	}
	return out
}

// candidates filters and scores contracts, best expected value first.
func (s *Scheduler) candidates(contracts []domain.Contract, sig domain.SignalSnapshot, now time.Time) []domain.Opportunity {
	window := domain.ContractFilter{MinMinutes: s.cfg.MinMinutes, MaxMinutes: s.cfg.MaxMinutes}

	var opps []domain.Opportunity
	for _, c := range contracts {
		if !window.Matches(c) {
			continue
		}
		if s.cfg.MaxPerTicker > 0 && s.state.CountByTicker(c.Ticker) >= s.cfg.MaxPerTicker {
			continue
		}
		opp, err := s.model.Score(c, sig, now)
		if err != nil {
			s.logger.Debug("contract not scored",
				slog.String("ticker", c.Ticker),
				slog.String("error", err.Error()),
			)
			continue
		}
		if opp != nil {
			opps = append(opps, *opp)
		}
	}
	sort.SliceStable(opps, func(i, j int) bool { return opps[i].EV > opps[j].EV })
	return opps
}
