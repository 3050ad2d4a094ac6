package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/tlcaiagent-agent/cardano-arb-scanner/internal/blob/s3"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/cache/redis"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/config"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/notify"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/server/handler"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/store/memory"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/store/postgres"
)

// memoryStreamLen bounds the in-process trade event stream.
const memoryStreamLen = 1000

// Dependencies bundles the infrastructure the modes run on. Postgres, Redis
// and S3 are optional; their in-memory stand-ins are used when disabled.
type Dependencies struct {
	// Stores
	TradeStore    domain.TradeStore
	SettingsStore domain.SettingsStore
	AuditStore    domain.AuditStore

	// Caches
	SnapshotMirror domain.QuoteSnapshotCache
	RateLimiter    domain.RateLimiter
	LockManager    domain.LockManager
	SignalBus      domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Health probes for /api/health.
	Checks []handler.HealthCheck
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

	deps := &Dependencies{}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
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
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.TradeStore = postgres.NewTradeRecordStore(pool)
		deps.SettingsStore = postgres.NewSettingsStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Checks = append(deps.Checks, handler.HealthCheck{Name: "postgres", Check: pgClient.Health})
	} else {
		logger.Info("postgres disabled; trade history and settings are kept in memory")
		deps.TradeStore = memory.NewTradeStore()
		deps.SettingsStore = memory.NewSettingsStore()
		deps.AuditStore = memory.NewAuditStore()
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
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SnapshotMirror = redis.NewSnapshotCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Redis.APIRateLimit, time.Minute)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, int64(cfg.Ledger.HistoryLimit))
		deps.Checks = append(deps.Checks, handler.HealthCheck{Name: "redis", Check: redisClient.Ping})
	} else {
		deps.SignalBus = memory.NewSignalBus(memoryStreamLen)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(s3blob.ArchiverConfig{
			Writer: deps.BlobWriter,
			Audit:  deps.AuditStore,
			Prefix: cfg.Ledger.ArchivePrefix,
			Logger: logger,
		})
		deps.Checks = append(deps.Checks, handler.HealthCheck{Name: "s3", Check: s3Client.Health})
	}

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
