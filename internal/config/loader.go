package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBSCAN_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBSCAN_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.Signer, "ARBSCAN_WALLET_SIGNER")
	setStr(&cfg.Wallet.Address, "ARBSCAN_WALLET_ADDRESS")
	setStr(&cfg.Wallet.KeyPath, "ARBSCAN_WALLET_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassphrase, "ARBSCAN_WALLET_KEY_PASSPHRASE")
	setDuration(&cfg.Wallet.SignTimeout, "ARBSCAN_WALLET_SIGN_TIMEOUT")

	// ── Quotes ──
	setDuration(&cfg.Quotes.RefreshInterval, "ARBSCAN_QUOTES_REFRESH_INTERVAL")
	setDuration(&cfg.Quotes.CacheTTL, "ARBSCAN_QUOTES_CACHE_TTL")
	setDuration(&cfg.Quotes.StaleAfter, "ARBSCAN_QUOTES_STALE_AFTER")
	setBool(&cfg.Venues.DemoFallback, "ARBSCAN_VENUES_DEMO_FALLBACK")

	// ── Engine ──
	setFloat64(&cfg.Engine.FixedPerSwap, "ARBSCAN_ENGINE_FIXED_PER_SWAP")
	setFloat64(&cfg.Engine.AggregatorPct, "ARBSCAN_ENGINE_AGGREGATOR_PCT")
	setFloat64(&cfg.Engine.HighThreshold, "ARBSCAN_ENGINE_HIGH_THRESHOLD")
	setFloat64(&cfg.Engine.ScanTradeSize, "ARBSCAN_ENGINE_SCAN_TRADE_SIZE")
	setUint64(&cfg.Engine.JitterSeed, "ARBSCAN_ENGINE_JITTER_SEED")

	// ── Trading ──
	setFloat64(&cfg.Trading.TradeSize, "ARBSCAN_TRADING_TRADE_SIZE")
	setFloat64(&cfg.Trading.MinSpreadPct, "ARBSCAN_TRADING_MIN_SPREAD_PCT")
	setFloat64(&cfg.Trading.MaxSlippagePct, "ARBSCAN_TRADING_MAX_SLIPPAGE_PCT")
	setStr(&cfg.Trading.RiskLevel, "ARBSCAN_TRADING_RISK_LEVEL")
	setFloat64(&cfg.Trading.DailyLossLimit, "ARBSCAN_TRADING_DAILY_LOSS_LIMIT")
	setBool(&cfg.Trading.DryRun, "ARBSCAN_TRADING_DRY_RUN")
	setBool(&cfg.Trading.AutoTrade, "ARBSCAN_TRADING_AUTO_TRADE")
	setInt(&cfg.Trading.CooldownSeconds, "ARBSCAN_TRADING_COOLDOWN_SECONDS")

	// ── Swap pipeline ──
	setStr(&cfg.DexHunter.BaseURL, "ARBSCAN_DEXHUNTER_BASE_URL")
	setStr(&cfg.DexHunter.PartnerID, "ARBSCAN_DEXHUNTER_PARTNER_ID")
	setStr(&cfg.DexHunter.FallbackURL, "ARBSCAN_DEXHUNTER_FALLBACK_URL")
	setStr(&cfg.Blockfrost.BaseURL, "ARBSCAN_BLOCKFROST_BASE_URL")
	setStr(&cfg.Blockfrost.ProjectID, "ARBSCAN_BLOCKFROST_PROJECT_ID")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBSCAN_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBSCAN_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARBSCAN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBSCAN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBSCAN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBSCAN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBSCAN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBSCAN_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "ARBSCAN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBSCAN_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBSCAN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBSCAN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBSCAN_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "ARBSCAN_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBSCAN_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBSCAN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBSCAN_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBSCAN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBSCAN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBSCAN_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "ARBSCAN_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBSCAN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBSCAN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBSCAN_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBSCAN_SERVER_API_KEY")
	setStr(&cfg.Server.JWTSecret, "ARBSCAN_JWT_SECRET")
	setInt(&cfg.Server.RateLimit, "ARBSCAN_SERVER_RATE_LIMIT")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "ARBSCAN_METRICS_ENABLED")
	setStr(&cfg.Metrics.Addr, "ARBSCAN_METRICS_ADDR")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBSCAN_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBSCAN_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBSCAN_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBSCAN_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBSCAN_MODE")
	setStr(&cfg.LogLevel, "ARBSCAN_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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

func setDuration(dst *duration, key string) {
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
