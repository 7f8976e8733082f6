package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	s3blob "github.com/alanyoungcy/kalshiedge/internal/blob/s3"
	"github.com/alanyoungcy/kalshiedge/internal/cache/redis"
	"github.com/alanyoungcy/kalshiedge/internal/config"
	"github.com/alanyoungcy/kalshiedge/internal/crypto"
	"github.com/alanyoungcy/kalshiedge/internal/domain"
	"github.com/alanyoungcy/kalshiedge/internal/notify"
	"github.com/alanyoungcy/kalshiedge/internal/platform/kalshi"
	"github.com/alanyoungcy/kalshiedge/internal/platform/paper"
	"github.com/alanyoungcy/kalshiedge/internal/server/handler"
	"github.com/alanyoungcy/kalshiedge/internal/signal"
	"github.com/alanyoungcy/kalshiedge/internal/store/file"
	"github.com/alanyoungcy/kalshiedge/internal/store/postgres"
	"github.com/alanyoungcy/kalshiedge/internal/store/sqlite"
)

// Dependencies bundles everything the run loop needs. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Mode is the effective mode; a live config without a usable key runs as
	// a degraded dry run.
	Mode     string
	Degraded bool

	// Venue
	Venue   domain.Venue
	Breaker *kalshi.BreakerVenue

	// Reference price
	Signals     *signal.FallbackSource
	Tracker     *signal.Tracker
	Stream      *signal.TradeStream // nil when streaming is off
	BinanceREST *signal.BinanceREST

	// Stores
	Outcomes  domain.OutcomeStore
	Audit     domain.AuditStore
	Snapshots domain.SnapshotStore
	Archiver  domain.Archiver

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	EventBus    *redis.SignalBus

	// Notifications
	Notifier *notify.Notifier

	// Checks feeds /api/health.
	Checks map[string]handler.Check
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Mode:   strings.ToLower(cfg.Mode),
		Checks: make(map[string]handler.Check),
	}

	// --- PostgreSQL ledger, or the local SQLite journal ---
	switch {
	case cfg.Postgres.Enabled:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		pool := pgClient.Pool()
		deps.Outcomes = postgres.NewOutcomeStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pgClient.Ping

	case cfg.SQLite.Path != "":
		journal, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		closers = append(closers, func() { _ = journal.Close() })
		deps.Outcomes = journal
		deps.Audit = journal.Audit()
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Prefix:     cfg.Redis.Prefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.EventBus = redis.NewSignalBus(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 blob storage ---
	var (
		blobReader domain.BlobReader
		blobWriter domain.BlobWriter
	)
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		blobReader = s3blob.NewReader(s3Client)
		blobWriter = s3blob.NewWriter(s3Client)
		deps.Checks["s3"] = s3Client.Health
		if deps.Outcomes != nil {
			deps.Archiver = s3blob.NewArchiver(blobWriter, deps.Audit, archivePrefix(cfg.Engine.Account))
		}
	}

	// --- Correction snapshot ---
	switch cfg.Snapshot.Backend {
	case "s3":
		deps.Snapshots = s3blob.NewSnapshotStore(blobReader, blobWriter, cfg.Snapshot.S3Key)
	case "file":
		deps.Snapshots = file.NewSnapshotStore(cfg.Snapshot.Path)
	}

	// --- Venue ---
	wireVenue(ctx, cfg, deps, logger)

	// --- Reference price chain ---
	wireSignals(cfg, deps, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// wireVenue builds the market data client and, depending on mode and key
// health, either the live trading venue or the paper venue on top of it.
func wireVenue(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) {
	client := newKalshiClient(cfg)

	if deps.Mode == config.ModeLive {
		err := loadKey(cfg, client)
		if err == nil {
			venue := wrapBreaker(cfg, deps, kalshi.NewVenue(client, cfg.Kalshi.MaxPages), logger)
			_, balErr := venue.GetBalance(ctx)
			switch {
			case errors.Is(balErr, domain.ErrUnauthorized):
				err = balErr
			case balErr != nil:
				logger.WarnContext(ctx, "kalshi balance check failed, continuing live",
					slog.String("error", balErr.Error()),
				)
			}
			if err == nil {
				deps.Venue = venue
				return
			}
		}
		logger.WarnContext(ctx, "kalshi credentials unusable, falling back to dry run",
			slog.String("error", err.Error()),
		)
		deps.Mode = config.ModeDryRun
		deps.Degraded = true
		// Public market data only; never sign with a rejected key.
		client = newKalshiClient(cfg)
	}

	data := wrapBreaker(cfg, deps, kalshi.NewVenue(client, cfg.Kalshi.MaxPages), logger)
	deps.Venue = paper.NewVenue(data, cfg.Engine.PaperBalance, logger)
}

func newKalshiClient(cfg *config.Config) *kalshi.Client {
	return kalshi.NewClient(cfg.Kalshi.BaseURL, cfg.Kalshi.APIKeyID,
		kalshi.WithHTTPClient(&http.Client{Timeout: cfg.Kalshi.Timeout.Duration}),
		kalshi.WithRateLimit(cfg.Kalshi.RequestsPerSec, cfg.Kalshi.Burst),
	)
}

func wrapBreaker(cfg *config.Config, deps *Dependencies, venue domain.Venue, logger *slog.Logger) domain.Venue {
	if !cfg.Breaker.Enabled {
		return venue
	}
	deps.Breaker = kalshi.NewBreakerVenue(venue, kalshi.BreakerSettings{
		MaxRequests:  cfg.Breaker.MaxRequests,
		Interval:     cfg.Breaker.Interval.Duration,
		Timeout:      cfg.Breaker.Timeout.Duration,
		MinRequests:  cfg.Breaker.MinRequests,
		FailureRatio: cfg.Breaker.FailureRatio,
	}, logger)
	breaker := deps.Breaker
	deps.Checks["kalshi"] = func(context.Context) error {
		if state := breaker.State(); state == "open" {
			return fmt.Errorf("kalshi: circuit breaker %s", state)
		}
		return nil
	}
	return deps.Breaker
}

func loadKey(cfg *config.Config, client *kalshi.Client) error {
	pemBytes, err := crypto.LoadKey(crypto.KeyConfig{
		PEM:              cfg.Kalshi.PrivateKey,
		PEMPath:          cfg.Kalshi.PrivateKeyPath,
		EncryptedKeyPath: cfg.Kalshi.EncryptedKeyPath,
		KeyPassword:      cfg.Kalshi.KeyPassword,
	})
	if err != nil {
		return err
	}
	return client.SetRSAPrivateKey(pemBytes)
}

// wireSignals assembles the provider chain: trade stream, Binance REST,
// Coinbase REST, then the shared Redis price.
func wireSignals(cfg *config.Config, deps *Dependencies, logger *slog.Logger) {
	sc := cfg.Signal
	deps.Tracker = signal.NewTracker(signal.TrackerConfig{
		History:      sc.History.Duration,
		RSIPeriods:   sc.RSIPeriods,
		VolBars:      sc.VolBars,
		TrendStrong:  sc.TrendStrong,
		TrendWeak:    sc.TrendWeak,
		MomentumNorm: sc.MomentumNorm,
	})

	hc := &http.Client{Timeout: sc.ProviderTimeout.Duration}
	var providers []signal.Provider
	if sc.StreamEnabled && sc.BinanceWSURL != "" {
		deps.Stream = signal.NewTradeStream(sc.BinanceWSURL, deps.Tracker, sc.StreamStaleAfter.Duration, logger)
		providers = append(providers, deps.Stream)
	}
	if sc.BinanceRESTURL != "" {
		deps.BinanceREST = signal.NewBinanceREST(sc.BinanceRESTURL, sc.BinanceSymbol, hc)
		providers = append(providers, deps.BinanceREST)
	}
	if sc.CoinbaseURL != "" {
		providers = append(providers, signal.NewCoinbaseREST(sc.CoinbaseURL, sc.CoinbasePair, hc))
	}

	var opts []signal.SourceOption
	if deps.PriceCache != nil {
		providers = append(providers, signal.NewCachedPrice(deps.PriceCache, sc.Asset, sc.CacheMaxAge.Duration))
		opts = append(opts, signal.WithPriceCache(deps.PriceCache))
	}
	deps.Signals = signal.NewFallbackSource(sc.Asset, deps.Tracker, sc.ProviderTimeout.Duration, logger, providers, opts...)
}

// archivePrefix places outcome archives under the account so several
// engines can share one bucket.
func archivePrefix(account string) string {
	return path.Join("accounts", account)
}
