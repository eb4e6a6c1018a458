package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.JWTSecret)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.SMTP.Password)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Binary.Markets = append([]MarketConfig(nil), cfg.Binary.Markets...)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
