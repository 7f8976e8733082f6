package kalshi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// BreakerSettings configures the venue circuit breaker.
type BreakerSettings struct {
	MaxRequests  uint32        // trial requests allowed while half-open
	Interval     time.Duration // closed-state count reset period
	Timeout      time.Duration // open-state duration
	MinRequests  uint32        // requests before the ratio is considered
	FailureRatio float64
}

// DefaultBreakerSettings returns conservative defaults.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// BreakerVenue wraps a domain.Venue with a circuit breaker. Answers that
// carry meaning (not found, rejected) do not count as failures.
type BreakerVenue struct {
	venue   domain.Venue
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerVenue wraps venue.
func NewBreakerVenue(venue domain.Venue, s BreakerSettings, logger *slog.Logger) *BreakerVenue {
	logger = logger.With(slog.String("component", "venue_breaker"))
	return &BreakerVenue{
		venue: venue,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "kalshi",
			MaxRequests: s.MaxRequests,
			Interval:    s.Interval,
			Timeout:     s.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests == 0 || counts.Requests < s.MinRequests {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
			},
			IsSuccessful: func(err error) bool {
				return err == nil ||
					errors.Is(err, domain.ErrNotFound) ||
					errors.Is(err, domain.ErrOrderRejected) ||
					errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					slog.String("name", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		}),
	}
}

// State reports the breaker state name.
func (b *BreakerVenue) State() string { return b.breaker.State().String() }

func execBreaker[T any](b *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := b.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("kalshi: circuit breaker: type assertion failed")
	}
	return v, nil
}

func (b *BreakerVenue) ListOpenContracts(ctx context.Context, f domain.ContractFilter) ([]domain.Contract, error) {
	return execBreaker(b.breaker, func() ([]domain.Contract, error) { return b.venue.ListOpenContracts(ctx, f) })
}

func (b *BreakerVenue) GetContract(ctx context.Context, ticker string) (domain.ContractStatus, error) {
	return execBreaker(b.breaker, func() (domain.ContractStatus, error) { return b.venue.GetContract(ctx, ticker) })
}

func (b *BreakerVenue) GetOrderbook(ctx context.Context, ticker string) (domain.Orderbook, error) {
	return execBreaker(b.breaker, func() (domain.Orderbook, error) { return b.venue.GetOrderbook(ctx, ticker) })
}

func (b *BreakerVenue) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderHandle, error) {
	return execBreaker(b.breaker, func() (domain.OrderHandle, error) { return b.venue.PlaceOrder(ctx, req) })
}

func (b *BreakerVenue) GetOrder(ctx context.Context, orderID string) (domain.OrderHandle, error) {
	return execBreaker(b.breaker, func() (domain.OrderHandle, error) { return b.venue.GetOrder(ctx, orderID) })
}

func (b *BreakerVenue) CancelOrder(ctx context.Context, orderID string) error {
	_, err := execBreaker(b.breaker, func() (struct{}, error) { return struct{}{}, b.venue.CancelOrder(ctx, orderID) })
	return err
}

func (b *BreakerVenue) GetBalance(ctx context.Context) (float64, error) {
	return execBreaker(b.breaker, func() (float64, error) { return b.venue.GetBalance(ctx) })
}

func (b *BreakerVenue) ListFills(ctx context.Context, f domain.FillFilter) ([]domain.Fill, error) {
	return execBreaker(b.breaker, func() ([]domain.Fill, error) { return b.venue.ListFills(ctx, f) })
}

var _ domain.Venue = (*BreakerVenue)(nil)
