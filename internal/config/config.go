// Package config defines the top-level configuration for the edge bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure. Fields are populated from a TOML
// or YAML file and then optionally overridden by EDGEBOT_* environment
// variables.
type Config struct {
	Mode       string           `toml:"mode" yaml:"mode"`
	LogLevel   string           `toml:"log_level" yaml:"log_level"`
	Kalshi     KalshiConfig     `toml:"kalshi" yaml:"kalshi"`
	Breaker    BreakerConfig    `toml:"breaker" yaml:"breaker"`
	Signal     SignalConfig     `toml:"signal" yaml:"signal"`
	Engine     EngineConfig     `toml:"engine" yaml:"engine"`
	Edge       EdgeConfig       `toml:"edge" yaml:"edge"`
	Risk       RiskConfig       `toml:"risk" yaml:"risk"`
	Exit       ExitConfig       `toml:"exit" yaml:"exit"`
	Correction CorrectionConfig `toml:"correction" yaml:"correction"`
	Snapshot   SnapshotConfig   `toml:"snapshot" yaml:"snapshot"`
	Postgres   PostgresConfig   `toml:"postgres" yaml:"postgres"`
	SQLite     SQLiteConfig     `toml:"sqlite" yaml:"sqlite"`
	Redis      RedisConfig      `toml:"redis" yaml:"redis"`
	S3         S3Config         `toml:"s3" yaml:"s3"`
	Server     ServerConfig     `toml:"server" yaml:"server"`
	Notify     NotifyConfig     `toml:"notify" yaml:"notify"`
	Report     ReportConfig     `toml:"report" yaml:"report"`
}

// KalshiConfig holds exchange endpoints and the RSA key sources. The first
// non-empty of private_key, private_key_path and encrypted_key_path wins.
type KalshiConfig struct {
	BaseURL          string   `toml:"base_url" yaml:"base_url"`
	APIKeyID         string   `toml:"api_key_id" yaml:"api_key_id"`
	PrivateKey       string   `toml:"private_key" yaml:"private_key"`
	PrivateKeyPath   string   `toml:"private_key_path" yaml:"private_key_path"`
	EncryptedKeyPath string   `toml:"encrypted_key_path" yaml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password" yaml:"key_password"`
	RequestsPerSec   float64  `toml:"requests_per_sec" yaml:"requests_per_sec"`
	Burst            int      `toml:"burst" yaml:"burst"`
	MaxPages         int      `toml:"max_pages" yaml:"max_pages"`
	Timeout          Duration `toml:"timeout" yaml:"timeout"`
}

// BreakerConfig tunes the venue circuit breaker.
type BreakerConfig struct {
	Enabled      bool     `toml:"enabled" yaml:"enabled"`
	MaxRequests  uint32   `toml:"max_requests" yaml:"max_requests"`
	Interval     Duration `toml:"interval" yaml:"interval"`
	Timeout      Duration `toml:"timeout" yaml:"timeout"`
	MinRequests  uint32   `toml:"min_requests" yaml:"min_requests"`
	FailureRatio float64  `toml:"failure_ratio" yaml:"failure_ratio"`
}

// SignalConfig selects the reference price providers and indicator windows.
type SignalConfig struct {
	Asset            string   `toml:"asset" yaml:"asset"`
	StreamEnabled    bool     `toml:"stream_enabled" yaml:"stream_enabled"`
	BinanceWSURL     string   `toml:"binance_ws_url" yaml:"binance_ws_url"`
	BinanceRESTURL   string   `toml:"binance_rest_url" yaml:"binance_rest_url"`
	BinanceSymbol    string   `toml:"binance_symbol" yaml:"binance_symbol"`
	CoinbaseURL      string   `toml:"coinbase_url" yaml:"coinbase_url"`
	CoinbasePair     string   `toml:"coinbase_pair" yaml:"coinbase_pair"`
	ProviderTimeout  Duration `toml:"provider_timeout" yaml:"provider_timeout"`
	StreamStaleAfter Duration `toml:"stream_stale_after" yaml:"stream_stale_after"`
	CacheMaxAge      Duration `toml:"cache_max_age" yaml:"cache_max_age"`
	WarmupBars       int      `toml:"warmup_bars" yaml:"warmup_bars"`
	History          Duration `toml:"history" yaml:"history"`
	RSIPeriods       int      `toml:"rsi_periods" yaml:"rsi_periods"`
	VolBars          int      `toml:"vol_bars" yaml:"vol_bars"`
	TrendStrong      float64  `toml:"trend_strong" yaml:"trend_strong"`
	TrendWeak        float64  `toml:"trend_weak" yaml:"trend_weak"`
	MomentumNorm     float64  `toml:"momentum_norm" yaml:"momentum_norm"`
}

// EngineConfig drives the cycle scheduler and position limits.
type EngineConfig struct {
	Account           string   `toml:"account" yaml:"account"`
	CycleInterval     Duration `toml:"cycle_interval" yaml:"cycle_interval"`
	TimeLimit         Duration `toml:"time_limit" yaml:"time_limit"`
	TargetBalance     float64  `toml:"target_balance" yaml:"target_balance"`
	Series            []string `toml:"series" yaml:"series"`
	MinMinutes        float64  `toml:"min_minutes" yaml:"min_minutes"`
	MaxMinutes        float64  `toml:"max_minutes" yaml:"max_minutes"`
	MaxPositions      int      `toml:"max_positions" yaml:"max_positions"`
	MaxPerTicker      int      `toml:"max_per_ticker" yaml:"max_per_ticker"`
	CandidateDelay    Duration `toml:"candidate_delay" yaml:"candidate_delay"`
	StaleOrderAge     Duration `toml:"stale_order_age" yaml:"stale_order_age"`
	EmergencyCooldown Duration `toml:"emergency_cooldown" yaml:"emergency_cooldown"`
	SnapshotInterval  Duration `toml:"snapshot_interval" yaml:"snapshot_interval"`
	HistorySize       int      `toml:"history_size" yaml:"history_size"`
	EventBuffer       int      `toml:"event_buffer" yaml:"event_buffer"`
	EventLogSize      int      `toml:"event_log_size" yaml:"event_log_size"`
	OrderRateLimit    int      `toml:"order_rate_limit" yaml:"order_rate_limit"`
	OrderRateWindow   Duration `toml:"order_rate_window" yaml:"order_rate_window"`
	PaperBalance      float64  `toml:"paper_balance" yaml:"paper_balance"`
}

// EdgeConfig mirrors the edge model constants.
type EdgeConfig struct {
	BaseMinEdge       float64 `toml:"base_min_edge" yaml:"base_min_edge"`
	MinNetPayoutCents float64 `toml:"min_net_payout_cents" yaml:"min_net_payout_cents"`
	VolFloor          float64 `toml:"vol_floor" yaml:"vol_floor"`
	VolLow            float64 `toml:"vol_low" yaml:"vol_low"`
	VolHigh           float64 `toml:"vol_high" yaml:"vol_high"`
	MicroEnabled      bool    `toml:"micro_enabled" yaml:"micro_enabled"`
	MicroEdgeCeiling  float64 `toml:"micro_edge_ceiling" yaml:"micro_edge_ceiling"`
	MomentumWeight    float64 `toml:"momentum_weight" yaml:"momentum_weight"`
	MomentumClip      float64 `toml:"momentum_clip" yaml:"momentum_clip"`
	OscillatorWeight  float64 `toml:"oscillator_weight" yaml:"oscillator_weight"`
	OscillatorClip    float64 `toml:"oscillator_clip" yaml:"oscillator_clip"`
	OscillatorExtreme float64 `toml:"oscillator_extreme" yaml:"oscillator_extreme"`
	TrendStrong       float64 `toml:"trend_strong" yaml:"trend_strong"`
	TrendWeak         float64 `toml:"trend_weak" yaml:"trend_weak"`
	TrendClip         float64 `toml:"trend_clip" yaml:"trend_clip"`
	ExpiryAmplify     float64 `toml:"expiry_amplify" yaml:"expiry_amplify"`
	ProbMin           float64 `toml:"prob_min" yaml:"prob_min"`
	ProbMax           float64 `toml:"prob_max" yaml:"prob_max"`
}

// MicroTier maps a minimum edge to a fixed contract count.
type MicroTier struct {
	MinEdge   float64 `toml:"min_edge" yaml:"min_edge"`
	Contracts int     `toml:"contracts" yaml:"contracts"`
}

// RiskConfig mirrors the sizer constants.
type RiskConfig struct {
	KellyCap          float64     `toml:"kelly_cap" yaml:"kelly_cap"`
	KellyDamping      float64     `toml:"kelly_damping" yaml:"kelly_damping"`
	MaxTradeFraction  float64     `toml:"max_trade_fraction" yaml:"max_trade_fraction"`
	CeilingFraction   float64     `toml:"ceiling_fraction" yaml:"ceiling_fraction"`
	MicroRiskFraction float64     `toml:"micro_risk_fraction" yaml:"micro_risk_fraction"`
	MicroTiers        []MicroTier `toml:"micro_tiers" yaml:"micro_tiers"`
	DrawdownSoft      float64     `toml:"drawdown_soft" yaml:"drawdown_soft"`
	DrawdownHard      float64     `toml:"drawdown_hard" yaml:"drawdown_hard"`
	DrawdownSoftMult  float64     `toml:"drawdown_soft_mult" yaml:"drawdown_soft_mult"`
	DrawdownHardMult  float64     `toml:"drawdown_hard_mult" yaml:"drawdown_hard_mult"`
}

// ExitConfig holds the exit rule thresholds. Prices are cents.
type ExitConfig struct {
	TakeProfit         int     `toml:"take_profit" yaml:"take_profit"`
	StopLoss           float64 `toml:"stop_loss" yaml:"stop_loss"`
	StopLossTightening float64 `toml:"stop_loss_tightening" yaml:"stop_loss_tightening"`
	StopLossMin        float64 `toml:"stop_loss_min" yaml:"stop_loss_min"`
	TimeDecayMinutes   float64 `toml:"time_decay_minutes" yaml:"time_decay_minutes"`
	FairValueBand      int     `toml:"fair_value_band" yaml:"fair_value_band"`
	EmergencyDrawdown  float64 `toml:"emergency_drawdown" yaml:"emergency_drawdown"`
}

// CorrectionConfig mirrors the correction engine constants.
type CorrectionConfig struct {
	WindowSize       int     `toml:"window_size" yaml:"window_size"`
	MinSamples       int     `toml:"min_samples" yaml:"min_samples"`
	BucketMinSamples int     `toml:"bucket_min_samples" yaml:"bucket_min_samples"`
	WinRatePivot     float64 `toml:"win_rate_pivot" yaml:"win_rate_pivot"`
	WinRateSlope     float64 `toml:"win_rate_slope" yaml:"win_rate_slope"`
	EdgeMultMin      float64 `toml:"edge_mult_min" yaml:"edge_mult_min"`
	EdgeMultMax      float64 `toml:"edge_mult_max" yaml:"edge_mult_max"`
	WeightSlope      float64 `toml:"weight_slope" yaml:"weight_slope"`
	WeightMin        float64 `toml:"weight_min" yaml:"weight_min"`
	WeightMax        float64 `toml:"weight_max" yaml:"weight_max"`
	AvoidMinSamples  int     `toml:"avoid_min_samples" yaml:"avoid_min_samples"`
	AvoidWinRate     float64 `toml:"avoid_win_rate" yaml:"avoid_win_rate"`
}

// SnapshotConfig selects where the correction snapshot lives: "file", "s3"
// or "none".
type SnapshotConfig struct {
	Backend string `toml:"backend" yaml:"backend"`
	Path    string `toml:"path" yaml:"path"`
	S3Key   string `toml:"s3_key" yaml:"s3_key"`
}

// PostgresConfig holds PostgreSQL connection parameters for the outcome
// ledger.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled" yaml:"enabled"`
	DSN           string `toml:"dsn" yaml:"dsn"`
	Host          string `toml:"host" yaml:"host"`
	Port          int    `toml:"port" yaml:"port"`
	Database      string `toml:"database" yaml:"database"`
	User          string `toml:"user" yaml:"user"`
	Password      string `toml:"password" yaml:"password"`
	SSLMode       string `toml:"ssl_mode" yaml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns" yaml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns" yaml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations" yaml:"run_migrations"`
}

// SQLiteConfig holds the local journal used when Postgres is disabled. An
// empty path disables the journal.
type SQLiteConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled" yaml:"enabled"`
	Addr       string `toml:"addr" yaml:"addr"`
	Password   string `toml:"password" yaml:"password"`
	DB         int    `toml:"db" yaml:"db"`
	PoolSize   int    `toml:"pool_size" yaml:"pool_size"`
	MaxRetries int    `toml:"max_retries" yaml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled" yaml:"tls_enabled"`
	Prefix     string `toml:"prefix" yaml:"prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled         bool     `toml:"enabled" yaml:"enabled"`
	Endpoint        string   `toml:"endpoint" yaml:"endpoint"`
	Region          string   `toml:"region" yaml:"region"`
	Bucket          string   `toml:"bucket" yaml:"bucket"`
	AccessKey       string   `toml:"access_key" yaml:"access_key"`
	SecretKey       string   `toml:"secret_key" yaml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl" yaml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style" yaml:"force_path_style"`
	Prefix          string   `toml:"prefix" yaml:"prefix"`
	ArchiveInterval Duration `toml:"archive_interval" yaml:"archive_interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled" yaml:"enabled"`
	Port            int      `toml:"port" yaml:"port"`
	CORSOrigins     []string `toml:"cors_origins" yaml:"cors_origins"`
	APIKey          string   `toml:"api_key" yaml:"api_key"`
	RateLimit       int      `toml:"rate_limit" yaml:"rate_limit"`
	RateLimitWindow Duration `toml:"rate_limit_window" yaml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token" yaml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id" yaml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url" yaml:"discord_webhook_url"`
	Events            []string `toml:"events" yaml:"events"`
}

// ReportConfig controls the periodic console table. Zero disables it.
type ReportConfig struct {
	EveryCycles int `toml:"every_cycles" yaml:"every_cycles"`
	Outcomes    int `toml:"outcomes" yaml:"outcomes"`
}

// Duration wraps time.Duration so TOML, YAML and env values can be written
// as "5m" or "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

func dur(d time.Duration) Duration { return Duration{d} }

// Defaults returns a Config populated with the tuned default values. These
// match config.example.toml.
func Defaults() Config {
	return Config{
		Mode:     ModeDryRun,
		LogLevel: "info",
		Kalshi: KalshiConfig{
			BaseURL:        "https://api.elections.kalshi.com/trade-api/v2",
			RequestsPerSec: 10,
			Burst:          10,
			MaxPages:       5,
			Timeout:        dur(15 * time.Second),
		},
		Breaker: BreakerConfig{
			Enabled:      true,
			MaxRequests:  3,
			Interval:     dur(60 * time.Second),
			Timeout:      dur(30 * time.Second),
			MinRequests:  5,
			FailureRatio: 0.6,
		},
		Signal: SignalConfig{
			Asset:            "BTC",
			StreamEnabled:    true,
			BinanceWSURL:     "wss://stream.binance.com:9443/ws/btcusdt@trade",
			BinanceRESTURL:   "https://api.binance.com",
			BinanceSymbol:    "BTCUSDT",
			CoinbaseURL:      "https://api.coinbase.com",
			CoinbasePair:     "BTC-USD",
			ProviderTimeout:  dur(3 * time.Second),
			StreamStaleAfter: dur(10 * time.Second),
			CacheMaxAge:      dur(30 * time.Second),
			WarmupBars:       45,
			History:          dur(45 * time.Minute),
			RSIPeriods:       14,
			VolBars:          30,
			TrendStrong:      0.30,
			TrendWeak:        0.08,
			MomentumNorm:     0.20,
		},
		Engine: EngineConfig{
			Account:           "default",
			CycleInterval:     dur(10 * time.Second),
			TimeLimit:         dur(24 * time.Hour),
			Series:            []string{"KXBTC15M"},
			MinMinutes:        0.3,
			MaxMinutes:        15,
			MaxPositions:      3,
			MaxPerTicker:      1,
			CandidateDelay:    dur(250 * time.Millisecond),
			StaleOrderAge:     dur(5 * time.Minute),
			EmergencyCooldown: dur(30 * time.Minute),
			SnapshotInterval:  dur(time.Minute),
			HistorySize:       200,
			EventBuffer:       256,
			EventLogSize:      200,
			OrderRateLimit:    10,
			OrderRateWindow:   dur(time.Minute),
			PaperBalance:      100,
		},
		Edge: EdgeConfig{
			BaseMinEdge:       0.05,
			MinNetPayoutCents: 2,
			VolFloor:          0.02,
			VolLow:            0.05,
			VolHigh:           0.20,
			MicroEnabled:      true,
			MicroEdgeCeiling:  0.07,
			MomentumWeight:    0.10,
			MomentumClip:      0.05,
			OscillatorWeight:  0.05,
			OscillatorClip:    0.03,
			OscillatorExtreme: 20,
			TrendStrong:       0.03,
			TrendWeak:         0.015,
			TrendClip:         0.03,
			ExpiryAmplify:     0.15,
			ProbMin:           0.02,
			ProbMax:           0.98,
		},
		Risk: RiskConfig{
			KellyCap:          0.25,
			KellyDamping:      0.5,
			MaxTradeFraction:  0.10,
			CeilingFraction:   0.15,
			MicroRiskFraction: 0.03,
			MicroTiers: []MicroTier{
				{MinEdge: 0, Contracts: 1},
				{MinEdge: 0.03, Contracts: 2},
				{MinEdge: 0.05, Contracts: 3},
			},
			DrawdownSoft:     0.30,
			DrawdownHard:     0.50,
			DrawdownSoftMult: 0.5,
			DrawdownHardMult: 0.25,
		},
		Exit: ExitConfig{
			TakeProfit:         6,
			StopLoss:           15,
			StopLossTightening: 1.0,
			StopLossMin:        5,
			TimeDecayMinutes:   2,
			FairValueBand:      3,
			EmergencyDrawdown:  0.60,
		},
		Correction: CorrectionConfig{
			WindowSize:       50,
			MinSamples:       10,
			BucketMinSamples: 5,
			WinRatePivot:     0.55,
			WinRateSlope:     2.0,
			EdgeMultMin:      0.55,
			EdgeMultMax:      1.70,
			WeightSlope:      1.0,
			WeightMin:        0.7,
			WeightMax:        1.3,
			AvoidMinSamples:  5,
			AvoidWinRate:     0.20,
		},
		Snapshot: SnapshotConfig{
			Backend: "file",
			Path:    "data/correction.json",
			S3Key:   "state/correction.json",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		SQLite: SQLiteConfig{
			Path: "data/journal.db",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			Prefix:     "edgebot:",
		},
		S3: S3Config{
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "edgebot-data",
			ForcePathStyle:  true,
			ArchiveInterval: dur(time.Hour),
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: dur(time.Minute),
		},
		Notify: NotifyConfig{
			Events: []string{"bet_resolved", "position_abandoned", "emergency_entered", "engine_stopped", "target_hit"},
		},
		Report: ReportConfig{
			EveryCycles: 30,
			Outcomes:    10,
		},
	}
}

// Operating modes.
const (
	ModeLive   = "live"
	ModeDryRun = "dryrun"
)

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	ModeLive:   true,
	ModeDryRun: true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSnapshotBackends = map[string]bool{
	"file": true,
	"s3":   true,
	"none": true,
}

// KeyConfigured reports whether any Kalshi private key source is set.
func (c *Config) KeyConfigured() bool {
	k := c.Kalshi
	return k.PrivateKey != "" || k.PrivateKeyPath != "" || k.EncryptedKeyPath != ""
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found. A dry run without
// credentials is valid; a live run is not.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	if !validModes[strings.ToLower(c.Mode)] {
		add("unknown mode %q (valid: live, dryrun)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Kalshi
	if c.Kalshi.BaseURL == "" {
		add("kalshi: base_url must not be empty")
	}
	if strings.EqualFold(c.Mode, ModeLive) {
		if c.Kalshi.APIKeyID == "" {
			add("kalshi: api_key_id is required for mode live")
		}
		if !c.KeyConfigured() {
			add("kalshi: one of private_key, private_key_path or encrypted_key_path is required for mode live")
		}
	}
	if c.Kalshi.EncryptedKeyPath != "" && c.Kalshi.KeyPassword == "" {
		add("kalshi: key_password is required when encrypted_key_path is set")
	}
	if c.Kalshi.RequestsPerSec <= 0 {
		add("kalshi: requests_per_sec must be > 0")
	}

	// Breaker
	if c.Breaker.Enabled && (c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1) {
		add("breaker: failure_ratio must be in (0, 1], got %g", c.Breaker.FailureRatio)
	}

	// Signal
	if c.Signal.Asset == "" {
		add("signal: asset must not be empty")
	}
	if c.Signal.ProviderTimeout.Duration <= 0 {
		add("signal: provider_timeout must be > 0")
	}
	if c.Signal.RSIPeriods < 1 {
		add("signal: rsi_periods must be >= 1")
	}

	// Engine
	e := c.Engine
	if e.CycleInterval.Duration <= 0 {
		add("engine: cycle_interval must be > 0")
	}
	if len(e.Series) == 0 {
		add("engine: series must list at least one series ticker")
	}
	if e.MinMinutes < 0 || e.MaxMinutes <= e.MinMinutes {
		add("engine: need 0 <= min_minutes < max_minutes, got %g and %g", e.MinMinutes, e.MaxMinutes)
	}
	if e.MaxPositions < 1 {
		add("engine: max_positions must be >= 1")
	}
	if e.MaxPerTicker < 1 {
		add("engine: max_per_ticker must be >= 1")
	}
	if e.TargetBalance < 0 {
		add("engine: target_balance must be >= 0")
	}
	if strings.EqualFold(c.Mode, ModeDryRun) && e.PaperBalance <= 0 {
		add("engine: paper_balance must be > 0 for mode dryrun")
	}

	// Edge
	if c.Edge.BaseMinEdge <= 0 || c.Edge.BaseMinEdge >= 1 {
		add("edge: base_min_edge must be in (0, 1), got %g", c.Edge.BaseMinEdge)
	}
	if c.Edge.ProbMin <= 0 || c.Edge.ProbMax >= 1 || c.Edge.ProbMin >= c.Edge.ProbMax {
		add("edge: need 0 < prob_min < prob_max < 1")
	}

	// Risk
	if c.Risk.KellyCap <= 0 || c.Risk.KellyCap > 1 {
		add("risk: kelly_cap must be in (0, 1], got %g", c.Risk.KellyCap)
	}
	if c.Risk.MaxTradeFraction <= 0 || c.Risk.CeilingFraction < c.Risk.MaxTradeFraction {
		add("risk: need 0 < max_trade_fraction <= ceiling_fraction")
	}
	for i, t := range c.Risk.MicroTiers {
		if t.Contracts < 1 {
			add("risk: micro_tiers[%d].contracts must be >= 1", i)
		}
	}

	// Exit
	if c.Exit.TakeProfit < 1 {
		add("exit: take_profit must be >= 1 cent")
	}
	if c.Exit.StopLossMin <= 0 || c.Exit.StopLoss < c.Exit.StopLossMin {
		add("exit: need 0 < stop_loss_min <= stop_loss")
	}
	if c.Exit.EmergencyDrawdown < 0 || c.Exit.EmergencyDrawdown >= 1 {
		add("exit: emergency_drawdown must be in [0, 1), got %g", c.Exit.EmergencyDrawdown)
	}

	// Correction
	if c.Correction.WindowSize < 1 {
		add("correction: window_size must be >= 1")
	}
	if c.Correction.WeightMin > c.Correction.WeightMax {
		add("correction: weight_min must not exceed weight_max")
	}
	if c.Correction.EdgeMultMin > c.Correction.EdgeMultMax {
		add("correction: edge_mult_min must not exceed edge_mult_max")
	}

	// Snapshot
	if !validSnapshotBackends[c.Snapshot.Backend] {
		add("snapshot: unknown backend %q (valid: file, s3, none)", c.Snapshot.Backend)
	}
	if c.Snapshot.Backend == "file" && c.Snapshot.Path == "" {
		add("snapshot: path must be set for backend file")
	}
	if c.Snapshot.Backend == "s3" && !c.S3.Enabled {
		add("snapshot: backend s3 requires s3.enabled")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			add("s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			add("server: rate_limit_window must be > 0 when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		add("notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
