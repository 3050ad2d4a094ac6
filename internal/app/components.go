package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/arbitrage"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/config"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/executor"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/ledger"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/platform/blockfrost"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/platform/dexhunter"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/platform/venues"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/quotes"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/risk"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/server/ws"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/service"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/wallet"
)

// scanComponents is the read-only half of the system: quotes in, scan
// reports out.
type scanComponents struct {
	quotes   *quotes.Cache
	detector *arbitrage.Detector
}

func (a *App) buildScanner(deps *Dependencies) (*scanComponents, error) {
	cfg := a.cfg

	var fetchers []venues.Fetcher
	for _, v := range cfg.Venues.List {
		if !v.Enabled {
			continue
		}
		f, err := venues.New(v.Name, venues.Options{
			URL:        v.URL,
			Timeout:    cfg.Venues.RequestTimeout.Duration,
			RatePerSec: v.RatePerSec,
		})
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", v.Name, err)
		}
		fetchers = append(fetchers, f)
	}

	var demo *venues.Demo
	if cfg.Venues.DemoFallback {
		demo = venues.NewDemo(cfg.Engine.JitterSeed)
	}

	agg := quotes.NewAggregator(quotes.AggregatorConfig{
		Fetchers:   fetchers,
		Demo:       demo,
		StaleAfter: cfg.Quotes.StaleAfter.Duration,
		Logger:     a.logger,
	})
	cache := quotes.NewCache(quotes.CacheConfig{
		Source:     agg,
		TTL:        cfg.Quotes.CacheTTL.Duration,
		StaleAfter: cfg.Quotes.StaleAfter.Duration,
		Mirror:     deps.SnapshotMirror,
		Logger:     a.logger,
	})

	engine := arbitrage.NewEngine(arbitrage.EngineConfig{
		Fees: arbitrage.FeeModel{
			FixedPerSwap:   cfg.Engine.FixedPerSwap,
			AggregatorPct:  cfg.Engine.AggregatorPct,
			DefaultPoolFee: cfg.Engine.DefaultPoolFee,
			PoolFees:       cfg.PoolFees(),
		},
		HighThreshold:    cfg.Engine.HighThreshold,
		TriangularMinPct: cfg.Engine.TriangularMinPct,
		TriangularMaxPct: cfg.Engine.TriangularMaxPct,
		TriangularTopN:   cfg.Engine.TriangularTopN,
	}, arbitrage.NewRandJitter(cfg.Engine.JitterSeed))

	det := arbitrage.NewDetector(arbitrage.DetectorConfig{
		Engine:    engine,
		Quotes:    cache,
		Bus:       deps.SignalBus,
		Interval:  cfg.Quotes.RefreshInterval.Duration,
		TradeSize: cfg.Engine.ScanTradeSize,
		Logger:    a.logger,
	})

	return &scanComponents{quotes: cache, detector: det}, nil
}

// tradeComponents is the execution half: settings, ledger, signer and the
// services that gate and run trades.
type tradeComponents struct {
	settings *service.SettingsService
	ledger   *ledger.Ledger
	trades   *service.TradeService
	auto     *service.AutoTrader
	hub      *ws.Hub
	balance  domain.BalanceProvider
	address  string
	signer   string
}

func (a *App) buildTrading(ctx context.Context, deps *Dependencies, sc *scanComponents) (*tradeComponents, error) {
	cfg := a.cfg

	limits := risk.Limits{
		Reserve:           cfg.Risk.Reserve,
		MaxTradeSize:      cfg.Risk.MaxTradeSize,
		MinProfitBase:     cfg.Risk.MinProfitBase,
		MinProfitFraction: cfg.Risk.MinProfitFraction,
	}
	policy := risk.New(limits)

	settings := service.NewSettingsService(deps.SettingsStore, deps.AuditStore,
		defaultSettings(cfg.Trading), limits.MaxTradeSize, a.logger)

	var archiver ledger.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	led := ledger.New(ledger.Config{
		Store:        deps.TradeStore,
		Archiver:     archiver,
		Bus:          deps.SignalBus,
		HistoryLimit: cfg.Ledger.HistoryLimit,
		Logger:       a.logger,
	})

	chain := blockfrost.New(cfg.Blockfrost.BaseURL, cfg.Blockfrost.ProjectID, cfg.Blockfrost.Timeout.Duration)
	aggregator := dexhunter.New(dexhunter.Config{
		BaseURL:     cfg.DexHunter.BaseURL,
		PartnerID:   cfg.DexHunter.PartnerID,
		Address:     cfg.Wallet.Address,
		Tokens:      cfg.Tokens,
		Timeout:     cfg.DexHunter.Timeout.Duration,
		FallbackURL: cfg.DexHunter.FallbackURL,
	})

	var balance domain.BalanceProvider
	if cfg.Blockfrost.ProjectID != "" && cfg.Wallet.Address != "" {
		balance = blockfrost.AddressBalance{Client: chain, Address: cfg.Wallet.Address}
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      cfg.Mode,
		Signer:    cfg.Wallet.Signer,
		StartedAt: time.Now().UTC(),
	})

	var signer domain.Signer
	switch cfg.Wallet.Signer {
	case "hot":
		key, err := wallet.LoadKey(cfg.Wallet.KeyPath, cfg.Wallet.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("hot wallet: %w", err)
		}
		hw, err := wallet.NewHotWallet(wallet.HotWalletConfig{
			Key:      key,
			Address:  cfg.Wallet.Address,
			Attacher: aggregator,
			Submit:   chain,
			Balance:  balance,
			Logger:   a.logger,
		})
		if err != nil {
			return nil, err
		}
		signer = hw
	default:
		broker := wallet.NewSignBroker(nil)
		broker.SetBroadcaster(hub)
		hub.Handle(wallet.MsgSignResponse, func(payload json.RawMessage) {
			var resp wallet.SignResponse
			if err := json.Unmarshal(payload, &resp); err != nil {
				a.logger.Warn("malformed sign response", slog.String("error", err.Error()))
				return
			}
			if !broker.Resolve(resp) {
				a.logger.Warn("sign response for unknown request", slog.String("id", resp.ID))
			}
		})
		signer = wallet.NewBrowserSigner(broker, chain, cfg.Wallet.SignTimeout.Duration)
	}

	orch := executor.New(executor.Config{
		Builder:       service.NewThrottledBuilder(aggregator, deps.RateLimiter, cfg.Redis.APIRateLimit, a.logger),
		Signer:        signer,
		Confirmer:     chain,
		AutoTrade:     settings,
		PollInterval:  cfg.Execution.PollInterval.Duration,
		MaxWait:       cfg.Execution.MaxWait.Duration,
		DryRunDelay:   cfg.Execution.DryRunDelay.Duration,
		DefaultLegFee: cfg.Execution.DefaultLegFee,
		Logger:        a.logger,
	})

	trades := service.NewTradeService(service.TradeServiceConfig{
		Finder:    sc.detector,
		Executor:  orch,
		Policy:    policy,
		Ledger:    led,
		Settings:  settings,
		Balance:   balance,
		Locks:     deps.LockManager,
		Bus:       deps.SignalBus,
		Notifier:  deps.Notifier,
		Audit:     deps.AuditStore,
		LockTTL:   cfg.Execution.LockTTL.Duration,
		KillGuard: cfg.Execution.KillGuard.Duration,
		Logger:    a.logger,
	})

	auto := service.NewAutoTrader(service.AutoTraderConfig{
		Settings:  settings,
		Scanner:   sc.detector,
		Trades:    trades,
		Kill:      orch,
		KillGuard: cfg.Execution.KillGuard.Duration,
		MinProfit: policy.MinProfit,
		Logger:    a.logger,
	})
	sc.detector.OnReport(auto.OnReport)

	if s, err := settings.Get(ctx); err == nil {
		a.logger.InfoContext(ctx, "trading configured",
			slog.String("signer", signer.Name()),
			slog.Bool("dry_run", s.DryRun),
			slog.Bool("auto_trade", s.AutoTrade),
			slog.Float64("trade_size", s.TradeSize),
		)
	}

	return &tradeComponents{
		settings: settings,
		ledger:   led,
		trades:   trades,
		auto:     auto,
		hub:      hub,
		balance:  balance,
		address:  cfg.Wallet.Address,
		signer:   signer.Name(),
	}, nil
}

// defaultSettings converts the configured trading defaults.
func defaultSettings(t config.TradingConfig) domain.TradeSettings {
	return domain.TradeSettings{
		TradeSize:       t.TradeSize,
		MinSpreadPct:    t.MinSpreadPct,
		MaxSlippagePct:  t.MaxSlippagePct,
		RiskLevel:       domain.RiskLevel(t.RiskLevel),
		DailyLossLimit:  t.DailyLossLimit,
		DryRun:          t.DryRun,
		AutoTrade:       t.AutoTrade,
		CooldownSeconds: t.CooldownSeconds,
	}
}
