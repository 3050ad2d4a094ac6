// Package app provides the top-level application lifecycle for the arbitrage
// scanner. It wires together stores, caches, blob storage, the quote
// pipeline, the trade services and notifications, and starts the goroutines
// the configured mode needs.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/config"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/ledger"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the configured mode and blocks until
// ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, err := a.wire(ctx)
	if err != nil {
		return err
	}

	switch strings.ToLower(a.cfg.Mode) {
	case "serve":
		return a.ServeMode(ctx, deps)
	case "scan":
		return a.ScanMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// ScanOnce fetches quotes and runs both engine operations once.
func (a *App) ScanOnce(ctx context.Context, tradeSize, minSpreadPct float64) (domain.ScanReport, error) {
	deps, err := a.wire(ctx)
	if err != nil {
		return domain.ScanReport{}, err
	}
	sc, err := a.buildScanner(deps)
	if err != nil {
		return domain.ScanReport{}, err
	}
	return sc.detector.Scan(ctx, tradeSize, minSpreadPct)
}

// Summary is today's P&L together with lifetime stats.
type Summary struct {
	Daily domain.DailyPnL   `json:"daily"`
	Stats domain.TradeStats `json:"stats"`
}

// PnL reads the ledger aggregates.
func (a *App) PnL(ctx context.Context) (Summary, error) {
	led, err := a.readLedger(ctx)
	if err != nil {
		return Summary{}, err
	}
	daily, err := led.DailyPnL(ctx)
	if err != nil {
		return Summary{}, err
	}
	stats, err := led.Stats(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Daily: daily, Stats: stats}, nil
}

// Export writes the retained trade history as CSV to w.
func (a *App) Export(ctx context.Context, w io.Writer) error {
	led, err := a.readLedger(ctx)
	if err != nil {
		return err
	}
	return led.ExportCSV(ctx, w)
}

// ExportToS3 uploads the CSV history to the configured bucket and returns
// the object key.
func (a *App) ExportToS3(ctx context.Context) (string, error) {
	deps, err := a.wire(ctx)
	if err != nil {
		return "", err
	}
	if deps.Archiver == nil {
		return "", fmt.Errorf("app: export: s3 is not enabled: %w", domain.ErrInvalidInput)
	}
	led := ledger.New(ledger.Config{Store: deps.TradeStore, HistoryLimit: a.cfg.Ledger.HistoryLimit, Logger: a.logger})
	return deps.Archiver.UploadCSV(ctx, func(w io.Writer) error {
		return led.ExportCSV(ctx, w)
	})
}

func (a *App) readLedger(ctx context.Context) (*ledger.Ledger, error) {
	if !a.cfg.Postgres.Enabled {
		a.logger.WarnContext(ctx, "postgres disabled; the in-memory ledger of this process is empty")
	}
	deps, err := a.wire(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.New(ledger.Config{Store: deps.TradeStore, HistoryLimit: a.cfg.Ledger.HistoryLimit, Logger: a.logger}), nil
}

func (a *App) wire(ctx context.Context) (*Dependencies, error) {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	return deps, nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
