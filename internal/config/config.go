// Package config defines the top-level configuration for the arbitrage
// scanner and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBSCAN_* environment variables.
type Config struct {
	Wallet     WalletConfig      `toml:"wallet"`
	Venues     VenuesConfig      `toml:"venues"`
	Quotes     QuotesConfig      `toml:"quotes"`
	Engine     EngineConfig      `toml:"engine"`
	Risk       RiskConfig        `toml:"risk"`
	Execution  ExecutionConfig   `toml:"execution"`
	Trading    TradingConfig     `toml:"trading"`
	DexHunter  DexHunterConfig   `toml:"dexhunter"`
	Blockfrost BlockfrostConfig  `toml:"blockfrost"`
	Tokens     map[string]string `toml:"tokens"`
	Postgres   PostgresConfig    `toml:"postgres"`
	Redis      RedisConfig       `toml:"redis"`
	S3         S3Config          `toml:"s3"`
	Ledger     LedgerConfig      `toml:"ledger"`
	Server     ServerConfig      `toml:"server"`
	Metrics    MetricsConfig     `toml:"metrics"`
	Notify     NotifyConfig      `toml:"notify"`
	Mode       string            `toml:"mode"`
	LogLevel   string            `toml:"log_level"`
}

// WalletConfig selects the signing backend. "browser" relays sign requests
// to a connected dashboard; "hot" signs with a server-held key file.
type WalletConfig struct {
	Signer        string   `toml:"signer"`
	Address       string   `toml:"address"`
	KeyPath       string   `toml:"key_path"`
	KeyPassphrase string   `toml:"key_passphrase"`
	SignTimeout   duration `toml:"sign_timeout"`
}

// VenueConfig describes one DEX price source.
type VenueConfig struct {
	Name       string  `toml:"name"`
	URL        string  `toml:"url"`
	PoolFee    float64 `toml:"pool_fee"`
	Enabled    bool    `toml:"enabled"`
	RatePerSec float64 `toml:"rate_per_sec"`
}

// VenuesConfig holds the venue list and shared fetch parameters.
type VenuesConfig struct {
	List           []VenueConfig `toml:"list"`
	RequestTimeout duration      `toml:"request_timeout"`
	DemoFallback   bool          `toml:"demo_fallback"`
}

// QuotesConfig holds refresh and cache thresholds.
type QuotesConfig struct {
	RefreshInterval duration `toml:"refresh_interval"`
	CacheTTL        duration `toml:"cache_ttl"`
	StaleAfter      duration `toml:"stale_after"`
}

// EngineConfig holds the opportunity engine's fee model and filters.
type EngineConfig struct {
	FixedPerSwap     float64 `toml:"fixed_per_swap"`
	AggregatorPct    float64 `toml:"aggregator_pct"`
	DefaultPoolFee   float64 `toml:"default_pool_fee"`
	HighThreshold    float64 `toml:"high_threshold"`
	ScanTradeSize    float64 `toml:"scan_trade_size"`
	TriangularMinPct float64 `toml:"triangular_min_pct"`
	TriangularMaxPct float64 `toml:"triangular_max_pct"`
	TriangularTopN   int     `toml:"triangular_top_n"`
	// JitterSeed fixes the triangular jitter source when non-zero.
	JitterSeed uint64 `toml:"jitter_seed"`
}

// RiskConfig holds the platform-wide safety rails.
type RiskConfig struct {
	Reserve           float64 `toml:"reserve"`
	MaxTradeSize      float64 `toml:"max_trade_size"`
	MinProfitBase     float64 `toml:"min_profit_base"`
	MinProfitFraction float64 `toml:"min_profit_fraction"`
}

// ExecutionConfig holds orchestrator timings.
type ExecutionConfig struct {
	PollInterval  duration `toml:"poll_interval"`
	MaxWait       duration `toml:"max_wait"`
	DryRunDelay   duration `toml:"dry_run_delay"`
	DefaultLegFee float64  `toml:"default_leg_fee"`
	KillGuard     duration `toml:"kill_guard"`
	LockTTL       duration `toml:"lock_ttl"`
}

// TradingConfig holds the default trade settings used until the operator
// saves their own.
type TradingConfig struct {
	TradeSize       float64 `toml:"trade_size"`
	MinSpreadPct    float64 `toml:"min_spread_pct"`
	MaxSlippagePct  float64 `toml:"max_slippage_pct"`
	RiskLevel       string  `toml:"risk_level"`
	DailyLossLimit  float64 `toml:"daily_loss_limit"`
	DryRun          bool    `toml:"dry_run"`
	AutoTrade       bool    `toml:"auto_trade"`
	CooldownSeconds int     `toml:"cooldown_seconds"`
}

// DexHunterConfig holds the swap aggregator endpoint.
type DexHunterConfig struct {
	BaseURL     string   `toml:"base_url"`
	PartnerID   string   `toml:"partner_id"`
	Timeout     duration `toml:"timeout"`
	FallbackURL string   `toml:"fallback_url"`
}

// BlockfrostConfig holds chain query and submit parameters.
type BlockfrostConfig struct {
	BaseURL   string   `toml:"base_url"`
	ProjectID string   `toml:"project_id"`
	Timeout   duration `toml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters. When disabled the
// ledger and settings live in memory.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// APIRateLimit caps swap-builder calls per minute across processes.
	APIRateLimit int `toml:"api_rate_limit"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// LedgerConfig holds trade history retention.
type LedgerConfig struct {
	HistoryLimit  int    `toml:"history_limit"`
	ArchivePrefix string `toml:"archive_prefix"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	JWTSecret   string   `toml:"jwt_secret"`
	// RateLimit caps API requests per client IP per minute when Redis is
	// enabled.
	RateLimit int `toml:"rate_limit"`
}

// MetricsConfig holds the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Wallet: WalletConfig{
			Signer:      "browser",
			SignTimeout: duration{2 * time.Minute},
		},
		Venues: VenuesConfig{
			List: []VenueConfig{
				{Name: "Minswap", URL: "https://api-mainnet-prod.minswap.org/commerce/pools?page=1&limit=20", PoolFee: 0.003, Enabled: true, RatePerSec: 1},
				{Name: "SundaeSwap", URL: "https://stats.sundaeswap.finance/api/v1/pools", PoolFee: 0.003, Enabled: true, RatePerSec: 1},
				{Name: "WingRiders", URL: "https://api.wingriders.com/graphql", PoolFee: 0.0035, Enabled: true, RatePerSec: 1},
				{Name: "MuesliSwap", URL: "https://api.muesliswap.com/price", PoolFee: 0.003, Enabled: true, RatePerSec: 1},
			},
			RequestTimeout: duration{5 * time.Second},
			DemoFallback:   true,
		},
		Quotes: QuotesConfig{
			RefreshInterval: duration{15 * time.Second},
			CacheTTL:        duration{12 * time.Second},
			StaleAfter:      duration{30 * time.Second},
		},
		Engine: EngineConfig{
			// 0.3 ADA network fee + 2 ADA batcher fee.
			FixedPerSwap:     2.3,
			AggregatorPct:    0.001,
			DefaultPoolFee:   0.003,
			HighThreshold:    2,
			ScanTradeSize:    1000,
			TriangularMinPct: -1,
			TriangularMaxPct: 5,
			TriangularTopN:   20,
		},
		Risk: RiskConfig{
			Reserve:           10,
			MaxTradeSize:      200,
			MinProfitBase:     0.5,
			MinProfitFraction: 0.01,
		},
		Execution: ExecutionConfig{
			PollInterval:  duration{5 * time.Second},
			MaxWait:       duration{120 * time.Second},
			DryRunDelay:   duration{1500 * time.Millisecond},
			DefaultLegFee: 0.2,
			KillGuard:     duration{30 * time.Second},
			LockTTL:       duration{5 * time.Minute},
		},
		Trading: TradingConfig{
			TradeSize:       200,
			MinSpreadPct:    2,
			MaxSlippagePct:  1.5,
			RiskLevel:       "moderate",
			DailyLossLimit:  50,
			DryRun:          true,
			AutoTrade:       false,
			CooldownSeconds: 60,
		},
		DexHunter: DexHunterConfig{
			BaseURL: "https://api-us.dexhunterv3.app",
			Timeout: duration{15 * time.Second},
		},
		Blockfrost: BlockfrostConfig{
			BaseURL: "https://cardano-mainnet.blockfrost.io/api/v0",
			Timeout: duration{10 * time.Second},
		},
		Tokens: DefaultTokens(),
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "arbscanner",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			APIRateLimit: 30,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbscanner-history",
			ForcePathStyle: true,
		},
		Ledger: LedgerConfig{
			HistoryLimit:  500,
			ArchivePrefix: "trades",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9102",
		},
		Notify: NotifyConfig{
			Events: []string{"trade.completed", "trade.failed", "trade.dry_run", "kill_switch"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// DefaultTokens maps token symbols to their on-chain unit (policy id plus
// hex asset name). ADA is the special unit "lovelace".
func DefaultTokens() map[string]string {
	return map[string]string{
		"ADA":    "lovelace",
		"HOSKY":  "a0028f350aaabe0545fdcb56b039bfb08e4bb4d8c4d7c3c7d481c235484f534b59",
		"MIN":    "29d222ce763455e3d7a09a665ce554f00ac89d2e99a1a83d267170c64d494e",
		"SUNDAE": "9a9693a9a37912a5097918f97918d15240c92ab729a0b7c4aa144d7753554e444145",
		"SNEK":   "279c909f348e533da5808898f87f9a14bb2c3dfbbacccd631d927a3f534e454b",
		"WRT":    "c0ee29a85b13209423b10447d3c2e6a50641a15c57770e27cb9d507357696e67526964657273",
		"MILK":   "8a1cfae21368b8bebbbed9800fec304e95cce39a2a57dc35e2e3ebaa4d494c4b",
		"INDY":   "533bb94a8850ee3ccbe483106489399112b74c905342cb1571b714e2494e4459",
		"LENFI":  "8fef2d34078659493ce161a6c7fba4b56afefa8535296a5743f695874c454e4649",
		"DJED":   "8db269c3ec630e06ae29f74bc39edd1f87c819f1056206e879a1cd61446a65644d6963726f555344",
		"iUSD":   "f66d78b4a3cb3d37afa0ec36461e51ecbde00f26c8f0a68f94b6988069555344",
		"AGIX":   "f43a62fdc3965df486de8a0d32fe800963589c41b38946602a8dc8e041474958",
		"WMT":    "1d7f33bd23d85e1a25d87d86fac4f199c3197a2f7afeb662a0f34e1e776f726c646d6f62696c65746f6b656e",
	}
}

// PoolFees returns the per-venue pool fee table.
func (c *Config) PoolFees() map[string]float64 {
	out := make(map[string]float64, len(c.Venues.List))
	for _, v := range c.Venues.List {
		out[v.Name] = v.PoolFee
	}
	return out
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"scan":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSigners = map[string]bool{
	"browser": true,
	"hot":     true,
}

var validRiskLevels = map[string]bool{
	"conservative": true,
	"moderate":     true,
	"aggressive":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, scan)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet
	if !validSigners[c.Wallet.Signer] {
		errs = append(errs, fmt.Sprintf("wallet: unknown signer %q (valid: browser, hot)", c.Wallet.Signer))
	}
	if c.Wallet.Signer == "hot" {
		if c.Wallet.KeyPath == "" {
			errs = append(errs, "wallet: key_path is required for the hot signer")
		}
		if c.Wallet.KeyPassphrase == "" {
			errs = append(errs, "wallet: key_passphrase is required for the hot signer")
		}
		if c.Wallet.Address == "" {
			errs = append(errs, "wallet: address is required for the hot signer")
		}
	}

	// Venues
	enabled := 0
	for _, v := range c.Venues.List {
		if !v.Enabled {
			continue
		}
		enabled++
		if v.Name == "" || v.URL == "" {
			errs = append(errs, "venues: every enabled venue needs a name and url")
		}
		if v.PoolFee < 0 || v.PoolFee >= 0.1 {
			errs = append(errs, fmt.Sprintf("venues: %s pool_fee %.4f out of range [0, 0.1)", v.Name, v.PoolFee))
		}
	}
	if enabled == 0 {
		errs = append(errs, "venues: at least one venue must be enabled")
	}

	// Quotes
	if c.Quotes.CacheTTL.Duration <= 0 {
		errs = append(errs, "quotes: cache_ttl must be positive")
	}
	if c.Quotes.StaleAfter.Duration < c.Quotes.CacheTTL.Duration {
		errs = append(errs, "quotes: stale_after must be >= cache_ttl")
	}
	if c.Quotes.RefreshInterval.Duration <= 0 {
		errs = append(errs, "quotes: refresh_interval must be positive")
	}

	// Engine
	if c.Engine.FixedPerSwap < 0 || c.Engine.AggregatorPct < 0 || c.Engine.DefaultPoolFee < 0 {
		errs = append(errs, "engine: fees must not be negative")
	}
	if c.Engine.TriangularMinPct >= c.Engine.TriangularMaxPct {
		errs = append(errs, "engine: triangular_min_pct must be below triangular_max_pct")
	}
	if c.Engine.TriangularTopN <= 0 {
		errs = append(errs, "engine: triangular_top_n must be positive")
	}

	// Risk
	if c.Risk.MaxTradeSize <= 0 {
		errs = append(errs, "risk: max_trade_size must be positive")
	}
	if c.Risk.Reserve < 0 {
		errs = append(errs, "risk: reserve must not be negative")
	}

	// Execution
	if c.Execution.PollInterval.Duration <= 0 || c.Execution.MaxWait.Duration < c.Execution.PollInterval.Duration {
		errs = append(errs, "execution: poll_interval must be positive and not exceed max_wait")
	}

	// Trading defaults
	errs = append(errs, c.Trading.problems(c.Risk.MaxTradeSize)...)

	// Blockfrost is needed for anything live.
	if c.Mode == "serve" && !c.Trading.DryRun && c.Blockfrost.ProjectID == "" {
		errs = append(errs, "blockfrost: project_id is required when dry_run is off")
	}

	// Postgres
	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port %d out of range", c.Postgres.Port))
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}
	if c.Ledger.HistoryLimit <= 0 {
		errs = append(errs, "ledger: history_limit must be positive")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (t TradingConfig) problems(maxTrade float64) []string {
	var errs []string
	if t.TradeSize < 10 || t.TradeSize > maxTrade {
		errs = append(errs, fmt.Sprintf("trading: trade_size %.2f out of range [10, %.0f]", t.TradeSize, maxTrade))
	}
	if t.MinSpreadPct < 1 || t.MinSpreadPct > 10 {
		errs = append(errs, fmt.Sprintf("trading: min_spread_pct %.2f out of range [1, 10]", t.MinSpreadPct))
	}
	if t.MaxSlippagePct < 0.5 || t.MaxSlippagePct > 5 {
		errs = append(errs, fmt.Sprintf("trading: max_slippage_pct %.2f out of range [0.5, 5]", t.MaxSlippagePct))
	}
	if !validRiskLevels[t.RiskLevel] {
		errs = append(errs, fmt.Sprintf("trading: unknown risk_level %q", t.RiskLevel))
	}
	if t.DailyLossLimit <= 0 {
		errs = append(errs, "trading: daily_loss_limit must be positive")
	}
	if t.CooldownSeconds < 30 || t.CooldownSeconds > 300 {
		errs = append(errs, fmt.Sprintf("trading: cooldown_seconds %d out of range [30, 300]", t.CooldownSeconds))
	}
	return errs
}
