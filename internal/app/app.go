// Package app owns the process lifecycle of the trading engine. It wires
// ledgers, caches, blob storage, the venue and the signal providers, then
// runs the scheduler with its satellites until a terminal state or shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/kalshiedge/internal/config"
)

// App is the root application object. Cleanup functions run in reverse
// registration order on Close.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies and blocks until the engine stops or ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
		slog.Any("config", config.Summary(a.cfg)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(deps.Mode) {
	case config.ModeLive, config.ModeDryRun:
		if deps.Degraded {
			a.logger.WarnContext(ctx, "live trading unavailable, fell back to dry run",
				slog.String("requested_mode", a.cfg.Mode),
			)
		}
		return a.runEngine(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", deps.Mode)
	}
}

// Close tears down all resources. Subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
