package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/executor"
)

// ReportScanner re-runs the engine on the cached quotes at a given size.
type ReportScanner interface {
	Scan(ctx context.Context, tradeSize, minSpreadPct float64) (domain.ScanReport, error)
}

// TradeStarter starts a trade in the background.
type TradeStarter interface {
	Start(ctx context.Context, req ExecuteRequest) (domain.TradeRecord, error)
	Busy() bool
	Status() domain.ExecutorStatus
}

// KillGuard reports whether the kill switch fired recently.
type KillGuard interface {
	KilledWithin(d time.Duration) bool
}

// AutoTraderConfig wires the AutoTrader.
type AutoTraderConfig struct {
	Settings SettingsProvider
	Scanner  ReportScanner
	Trades   TradeStarter
	Kill     KillGuard
	// KillGuard is how long after a kill the auto-trader stays quiet.
	KillGuard time.Duration
	// RetryAfter suppresses a route for this long after an attempt.
	RetryAfter time.Duration
	// MinProfit returns the smallest acceptable net profit at a size.
	MinProfit func(tradeSize float64) float64
	Logger    *slog.Logger
	Now       func() time.Time
}

// AutoTrader executes the best qualifying opportunity after each scheduled
// scan while auto-trading is on.
type AutoTrader struct {
	settings  SettingsProvider
	scanner   ReportScanner
	trades    TradeStarter
	kill      KillGuard
	guard     time.Duration
	minProfit func(float64) float64
	dedup     *executor.Dedup
	logger    *slog.Logger
}

// NewAutoTrader creates an AutoTrader.
func NewAutoTrader(cfg AutoTraderConfig) *AutoTrader {
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MinProfit == nil {
		cfg.MinProfit = func(float64) float64 { return 0 }
	}
	return &AutoTrader{
		settings:  cfg.Settings,
		scanner:   cfg.Scanner,
		trades:    cfg.Trades,
		kill:      cfg.Kill,
		guard:     cfg.KillGuard,
		minProfit: cfg.MinProfit,
		dedup:     executor.NewDedup(cfg.RetryAfter, cfg.Now),
		logger:    cfg.Logger.With(slog.String("component", "auto_trader")),
	}
}

// OnReport is registered as a detector report hook. The scheduled report is
// only a trigger: candidates are re-evaluated at the configured trade size.
func (a *AutoTrader) OnReport(ctx context.Context, _ domain.ScanReport) {
	a.dedup.Cleanup()

	settings, err := a.settings.Get(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "load settings failed", slog.String("error", err.Error()))
		return
	}
	if !settings.AutoTrade {
		return
	}
	if a.trades.Busy() || a.trades.Status().State != domain.ExecutorIdle {
		return
	}
	if a.guard > 0 && a.kill.KilledWithin(a.guard) {
		return
	}

	report, err := a.scanner.Scan(ctx, settings.TradeSize, settings.MinSpreadPct)
	if err != nil {
		a.logger.WarnContext(ctx, "rescan failed", slog.String("error", err.Error()))
		return
	}
	if report.IsDemo && !settings.DryRun {
		a.logger.DebugContext(ctx, "skipping live auto-trade on demo quotes")
		return
	}

	opp, ok := a.pick(report.Opportunities, settings)
	if !ok {
		return
	}
	a.dedup.Mark(opp.ID)

	rec, err := a.trades.Start(ctx, ExecuteRequest{OpportunityID: opp.ID})
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, domain.ErrRiskRejected) || errors.Is(err, domain.ErrTradeInFlight) {
			level = slog.LevelDebug
		}
		a.logger.Log(ctx, level, "auto-trade not started",
			slog.String("opportunity", opp.ID),
			slog.String("reason", err.Error()),
		)
		return
	}
	a.logger.InfoContext(ctx, "auto-trade started",
		slog.String("trade_id", rec.ID),
		slog.String("opportunity", opp.ID),
		slog.Float64("spread_pct", opp.SpreadPct),
		slog.Float64("net_profit", opp.NetProfit),
	)
}

// pick returns the first green opportunity clearing the spread and profit
// floors. Opportunities arrive sorted best first. Live trading only
// considers routes whose both legs are priced from live venue data.
func (a *AutoTrader) pick(opps []domain.Opportunity, s domain.TradeSettings) (domain.Opportunity, bool) {
	floor := a.minProfit(s.TradeSize)
	for _, o := range opps {
		if o.Tier != domain.TierGreen || o.SpreadPct < s.MinSpreadPct || o.NetProfit < floor {
			continue
		}
		if !s.DryRun && !o.LiveQuotes() {
			continue
		}
		if a.dedup.Recent(o.ID) {
			continue
		}
		return o, true
	}
	return domain.Opportunity{}, false
}
