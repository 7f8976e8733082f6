package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// FallbackSource asks providers in priority order, each under its own
// timeout, and derives the snapshot from the shared Tracker. The first
// provider to answer wins; when all fail the result is
// domain.ErrSignalUnavailable.
type FallbackSource struct {
	asset     string
	providers []Provider
	tracker   *Tracker
	cache     domain.PriceCache
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// SourceOption configures a FallbackSource.
type SourceOption func(*FallbackSource)

// WithPriceCache writes every live price back to cache so other processes
// (and the cache provider after a restart) can use it.
func WithPriceCache(cache domain.PriceCache) SourceOption {
	return func(s *FallbackSource) { s.cache = cache }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) SourceOption {
	return func(s *FallbackSource) { s.now = now }
}

// NewFallbackSource creates a source over providers, highest priority first.
func NewFallbackSource(asset string, tracker *Tracker, timeout time.Duration, logger *slog.Logger, providers []Provider, opts ...SourceOption) *FallbackSource {
	s := &FallbackSource{
		asset:     asset,
		providers: providers,
		tracker:   tracker,
		timeout:   timeout,
		logger:    logger.With(slog.String("component", "signal")),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Snapshot returns the current reference view.
func (s *FallbackSource) Snapshot(ctx context.Context) (domain.SignalSnapshot, error) {
	var errs []error
	for _, p := range s.providers {
		px, err := s.ask(ctx, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			s.logger.DebugContext(ctx, "price provider failed",
				slog.String("provider", p.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		now := s.now()
		s.tracker.Add(px, now)
		if s.cache != nil && p.Name() != "cache" {
			if err := s.cache.SetPrice(ctx, s.asset, px, now); err != nil {
				s.logger.WarnContext(ctx, "price cache write failed", slog.String("error", err.Error()))
			}
		}
		snap := s.tracker.Snapshot(now)
		snap.Asset = s.asset
		snap.ReferencePrice = px
		snap.Source = p.Name()
		return snap, nil
	}
	if ctx.Err() != nil {
		return domain.SignalSnapshot{}, ctx.Err()
	}
	return domain.SignalSnapshot{}, fmt.Errorf("signal: %w: %w", domain.ErrSignalUnavailable, errors.Join(errs...))
}

func (s *FallbackSource) ask(ctx context.Context, p Provider) (float64, error) {
	if s.timeout <= 0 {
		return p.Price(ctx)
	}
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return p.Price(pctx)
}

// Warmup seeds the tracker from historical one-minute bars so indicators
// are meaningful on the first tick.
func (s *FallbackSource) Warmup(ctx context.Context, rest *BinanceREST, bars int) error {
	pts, err := rest.Klines(ctx, bars)
	if err != nil {
		return err
	}
	now := s.now()
	for _, p := range pts {
		if p.At.After(now) {
			continue
		}
		s.tracker.Add(p.Price, p.At)
	}
	s.logger.InfoContext(ctx, "signal warmed up", slog.Int("bars", len(pts)))
	return nil
}
