package config

import "slices"

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Kalshi.PrivateKey)
	redact(&out.Kalshi.KeyPassword)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Server.APIKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Engine.Series = slices.Clone(cfg.Engine.Series)
	out.Risk.MicroTiers = slices.Clone(cfg.Risk.MicroTiers)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)

	return out
}

// Summary is a flat view of the redacted config suitable for a single
// structured log line.
func Summary(cfg *Config) map[string]any {
	r := RedactedConfig(cfg)
	return map[string]any{
		"mode":                  r.Mode,
		"series":                r.Engine.Series,
		"cycle_interval":        r.Engine.CycleInterval.String(),
		"kalshi_base_url":       r.Kalshi.BaseURL,
		"kalshi_key_configured": cfg.KeyConfigured(),
		"snapshot_backend":      r.Snapshot.Backend,
		"postgres":              r.Postgres.Enabled,
		"redis":                 r.Redis.Enabled,
		"s3":                    r.S3.Enabled,
		"server":                r.Server.Enabled,
	}
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
