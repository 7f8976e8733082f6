package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file at path, merges it on top of the built-in
// defaults, applies EDGEBOT_* environment variable overrides, and returns the
// final Config. Files ending in .yaml or .yml are decoded as YAML, anything
// else as TOML. An empty path skips the file. The returned Config has NOT
// been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("config: decoding %s: %w", path, err)
		}
	default:
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("config: decoding %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}
	return nil
}

// applyEnvOverrides reads well-known EDGEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the config file.
func applyEnvOverrides(cfg *Config) {
	// ── Kalshi ──
	setStr(&cfg.Kalshi.BaseURL, "EDGEBOT_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.APIKeyID, "EDGEBOT_KALSHI_API_KEY_ID")
	setStr(&cfg.Kalshi.PrivateKey, "EDGEBOT_KALSHI_PRIVATE_KEY")
	setStr(&cfg.Kalshi.PrivateKeyPath, "EDGEBOT_KALSHI_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.EncryptedKeyPath, "EDGEBOT_KALSHI_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Kalshi.KeyPassword, "EDGEBOT_KALSHI_KEY_PASSWORD")
	setFloat64(&cfg.Kalshi.RequestsPerSec, "EDGEBOT_KALSHI_REQUESTS_PER_SEC")

	// ── Signal ──
	setStr(&cfg.Signal.Asset, "EDGEBOT_SIGNAL_ASSET")
	setBool(&cfg.Signal.StreamEnabled, "EDGEBOT_SIGNAL_STREAM_ENABLED")
	setStr(&cfg.Signal.BinanceWSURL, "EDGEBOT_SIGNAL_BINANCE_WS_URL")
	setStr(&cfg.Signal.BinanceRESTURL, "EDGEBOT_SIGNAL_BINANCE_REST_URL")
	setStr(&cfg.Signal.CoinbaseURL, "EDGEBOT_SIGNAL_COINBASE_URL")

	// ── Engine ──
	setStr(&cfg.Engine.Account, "EDGEBOT_ENGINE_ACCOUNT")
	setDuration(&cfg.Engine.CycleInterval, "EDGEBOT_ENGINE_CYCLE_INTERVAL")
	setDuration(&cfg.Engine.TimeLimit, "EDGEBOT_ENGINE_TIME_LIMIT")
	setFloat64(&cfg.Engine.TargetBalance, "EDGEBOT_ENGINE_TARGET_BALANCE")
	setStringSlice(&cfg.Engine.Series, "EDGEBOT_ENGINE_SERIES")
	setInt(&cfg.Engine.MaxPositions, "EDGEBOT_ENGINE_MAX_POSITIONS")
	setFloat64(&cfg.Engine.PaperBalance, "EDGEBOT_ENGINE_PAPER_BALANCE")

	// ── Edge / exit ──
	setFloat64(&cfg.Edge.BaseMinEdge, "EDGEBOT_EDGE_BASE_MIN_EDGE")
	setBool(&cfg.Edge.MicroEnabled, "EDGEBOT_EDGE_MICRO_ENABLED")
	setFloat64(&cfg.Exit.EmergencyDrawdown, "EDGEBOT_EXIT_EMERGENCY_DRAWDOWN")

	// ── Snapshot ──
	setStr(&cfg.Snapshot.Backend, "EDGEBOT_SNAPSHOT_BACKEND")
	setStr(&cfg.Snapshot.Path, "EDGEBOT_SNAPSHOT_PATH")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "EDGEBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "EDGEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "EDGEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "EDGEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "EDGEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "EDGEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "EDGEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "EDGEBOT_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "EDGEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── SQLite ──
	setStr(&cfg.SQLite.Path, "EDGEBOT_SQLITE_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "EDGEBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "EDGEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "EDGEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "EDGEBOT_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "EDGEBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "EDGEBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "EDGEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "EDGEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "EDGEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "EDGEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "EDGEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "EDGEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "EDGEBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "EDGEBOT_S3_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "EDGEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "EDGEBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "EDGEBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "EDGEBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "EDGEBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "EDGEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "EDGEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "EDGEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "EDGEBOT_NOTIFY_EVENTS")

	// ── Report ──
	setInt(&cfg.Report.EveryCycles, "EDGEBOT_REPORT_EVERY_CYCLES")

	// ── Top-level ──
	setStr(&cfg.Mode, "EDGEBOT_MODE")
	setStr(&cfg.LogLevel, "EDGEBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
