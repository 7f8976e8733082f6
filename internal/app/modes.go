package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshiedge/internal/cache/redis"
	"github.com/alanyoungcy/kalshiedge/internal/domain"
	"github.com/alanyoungcy/kalshiedge/internal/report"
	"github.com/alanyoungcy/kalshiedge/internal/server"
	"github.com/alanyoungcy/kalshiedge/internal/server/handler"
	"github.com/alanyoungcy/kalshiedge/internal/server/ws"
)

const (
	warmupTimeout   = 15 * time.Second
	dispatchTimeout = 5 * time.Second
	archivePageSize = 500
)

// runEngine starts the scheduler plus its satellites: event dispatcher,
// status server, trade stream and outcome archiver. It returns when the
// engine reaches a terminal state or ctx is cancelled.
func (a *App) runEngine(ctx context.Context, deps *Dependencies) error {
	c := a.buildCore(deps)

	if deps.BinanceREST != nil && a.cfg.Signal.WarmupBars > 0 {
		wctx, cancel := context.WithTimeout(ctx, warmupTimeout)
		if err := deps.Signals.Warmup(wctx, deps.BinanceREST, a.cfg.Signal.WarmupBars); err != nil {
			a.logger.WarnContext(ctx, "signal warmup failed, indicators start cold",
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}

	if err := c.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("app: start engine: %w", err)
	}
	if deps.Degraded {
		a.logger.WarnContext(ctx, "running degraded dry run; orders are simulated")
	}

	// Satellites stop when the scheduler does.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var bus domain.SignalBus
	if deps.EventBus != nil {
		bus = deps.EventBus
	}
	hub := ws.NewHub(c.scheduler, bus, redis.EventsChannel, a.logger)
	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		err := c.scheduler.Run(gctx)
		c.events.Close()
		cancel()
		return err
	})

	var console *report.Console
	if a.cfg.Report.EveryCycles > 0 {
		console = report.NewConsole(os.Stderr, a.cfg.Report.Outcomes)
	}
	g.Go(func() error {
		a.dispatch(context.WithoutCancel(ctx), c, deps, hub, console)
		return nil
	})

	if deps.Stream != nil {
		g.Go(func() error {
			return deps.Stream.Run(gctx)
		})
	}

	if deps.Archiver != nil && deps.Outcomes != nil && a.cfg.S3.ArchiveInterval.Duration > 0 {
		g.Go(func() error {
			return a.archiveLoop(gctx, deps, a.cfg.S3.ArchiveInterval.Duration)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(gctx, g, deps, c, hub)
	}

	return g.Wait()
}

// dispatch drains the engine's event stream until the emitter closes. Each
// event goes to the Redis bus (which the hub relays) or straight to the hub,
// then to the notifier; heartbeats drive the periodic console report.
func (a *App) dispatch(ctx context.Context, c *core, deps *Dependencies, hub *ws.Hub, console *report.Console) {
	for ev := range c.events.Events() {
		sctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
		if deps.EventBus != nil {
			if err := deps.EventBus.PublishEvent(sctx, ev); err != nil {
				a.logger.WarnContext(sctx, "event publish failed, broadcasting locally",
					slog.String("type", string(ev.Type)),
					slog.String("error", err.Error()),
				)
				hub.Broadcast(ev)
			}
		} else {
			hub.Broadcast(ev)
		}
		if err := deps.Notifier.NotifyEvent(sctx, ev); err != nil {
			a.logger.WarnContext(sctx, "event notification failed",
				slog.String("type", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
		cancel()

		if console != nil && ev.Type == domain.EventHeartbeat && ev.Cycle%int64(a.cfg.Report.EveryCycles) == 0 {
			console.Print(c.scheduler.Status())
		}
	}
	if console != nil {
		console.Print(c.scheduler.Status())
	}
}

// archiveLoop copies outcomes resolved since the previous run to object
// storage every interval, plus once more on shutdown.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies, interval time.Duration) error {
	last := time.Now().UTC()
	run := func(ctx context.Context, now time.Time) {
		outcomes, err := listOutcomes(ctx, deps.Outcomes, last, now)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive: list outcomes failed", slog.String("error", err.Error()))
			return
		}
		key, err := deps.Archiver.ArchiveOutcomes(ctx, outcomes, now)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive: upload failed", slog.String("error", err.Error()))
			// A key means the object landed and only the audit row failed.
			if key == "" {
				return
			}
		}
		if key != "" {
			a.logger.InfoContext(ctx, "archive: outcomes uploaded",
				slog.String("key", key),
				slog.Int("count", len(outcomes)),
			)
		}
		last = now
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			run(fctx, time.Now().UTC())
			cancel()
			return nil
		case now := <-ticker.C:
			run(ctx, now.UTC())
		}
	}
}

func listOutcomes(ctx context.Context, store domain.OutcomeStore, since, until time.Time) ([]domain.Outcome, error) {
	var all []domain.Outcome
	for offset := 0; ; offset += archivePageSize {
		page, err := store.List(ctx, domain.ListOpts{
			Limit:  archivePageSize,
			Offset: offset,
			Since:  &since,
			Until:  &until,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < archivePageSize {
			return all, nil
		}
	}
}

// startHTTPServer registers the status API and runs it until ctx ends.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core, hub *ws.Hub) {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Checks, a.logger),
		Status: handler.NewStatusHandler(c.scheduler),
	}
	if deps.Outcomes != nil {
		handlers.Outcomes = handler.NewOutcomeHandler(deps.Outcomes, a.logger)
	}
	srv := server.NewServer(server.Config{
		Addr:            fmt.Sprintf(":%d", a.cfg.Server.Port),
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
