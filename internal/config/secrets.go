package config

import "maps"

// RedactedConfig returns a copy of cfg with secrets replaced by "***", for
// logging the active configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Binance.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Slices and maps are copied so the redacted value cannot alias cfg.
	out.Ingest.Symbols = append([]string(nil), cfg.Ingest.Symbols...)
	out.Arbitrage.Symbols = append([]string(nil), cfg.Arbitrage.Symbols...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Transport.RetryableStatusCodes = append([]int(nil), cfg.Transport.RetryableStatusCodes...)
	out.Openbook.Markets = maps.Clone(cfg.Openbook.Markets)

	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
