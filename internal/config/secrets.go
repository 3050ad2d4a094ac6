package config

// Redacted returns a copy of cfg with sensitive fields replaced by "***".
// Use this when logging the active configuration.
func Redacted(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.KeyPassphrase)
	redact(&out.DexHunter.PartnerID)
	redact(&out.Blockfrost.ProjectID)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Server.JWTSecret)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy reference types so callers cannot mutate the original through the
	// redacted copy.
	out.Venues.List = append([]VenueConfig(nil), cfg.Venues.List...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	if cfg.Tokens != nil {
		out.Tokens = make(map[string]string, len(cfg.Tokens))
		for k, v := range cfg.Tokens {
			out.Tokens[k] = v
		}
	}

	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
