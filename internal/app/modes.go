package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/metrics"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/server"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/server/handler"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/server/middleware"
)

// shutdownTimeout bounds graceful HTTP shutdown and the wait for an
// in-flight trade to record its outcome.
const shutdownTimeout = 10 * time.Second

// ServeMode runs the scanner, the trade pipeline, the dashboard API and the
// metrics listener until ctx is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	sc, err := a.buildScanner(deps)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}
	tc, err := a.buildTrading(ctx, deps, sc)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(sc.detector.Run(ctx))
	})
	g.Go(func() error {
		return ignoreCanceled(tc.hub.Run(ctx))
	})

	if a.cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(ctx, a.cfg.Metrics.Addr, nil, a.logger)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, sc, tc)
	}

	err = g.Wait()
	// Let a trade that was mid-flight finish recording before stores close.
	waitTimeout(tc.trades.Wait, shutdownTimeout)
	return err
}

// ScanMode only watches the market: it logs every scheduled report and
// never trades.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	sc, err := a.buildScanner(deps)
	if err != nil {
		return fmt.Errorf("scan mode: %w", err)
	}
	sc.detector.OnReport(func(ctx context.Context, r domain.ScanReport) {
		a.logReport(ctx, r)
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(sc.detector.Run(ctx))
	})
	if a.cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(ctx, a.cfg.Metrics.Addr, nil, a.logger)
		})
	}
	return g.Wait()
}

func (a *App) logReport(ctx context.Context, r domain.ScanReport) {
	attrs := []any{
		slog.Int("opportunities", len(r.Opportunities)),
		slog.Int("triangular", len(r.Triangular)),
		slog.Float64("best_spread_pct", r.Stats.BestSpreadPct),
		slog.Bool("demo", r.IsDemo),
	}
	if len(r.Opportunities) > 0 {
		best := r.Opportunities[0]
		attrs = append(attrs,
			slog.String("best_pair", best.PairKey),
			slog.String("buy", best.BuyVenue),
			slog.String("sell", best.SellVenue),
			slog.Float64("net_profit", best.NetProfit),
			slog.String("tier", string(best.Tier)),
		)
	}
	a.logger.InfoContext(ctx, "scan complete", attrs...)
}

// startHTTPServer adds the API server and its shutdown hook to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, sc *scanComponents, tc *tradeComponents) {
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Auth: middleware.AuthConfig{
			APIKey:    a.cfg.Server.APIKey,
			JWTSecret: a.cfg.Server.JWTSecret,
		},
		Limiter:   deps.RateLimiter,
		RateLimit: a.cfg.Server.RateLimit,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(a.cfg.Mode, a.logger, deps.Checks...),
		Prices:   handler.NewPriceHandler(sc.quotes, a.logger),
		Arb:      handler.NewArbHandler(sc.detector, a.logger),
		Trade:    handler.NewTradeHandler(tc.trades, a.logger),
		Settings: handler.NewSettingsHandler(tc.settings, a.logger),
		Ledger:   handler.NewLedgerHandler(tc.ledger, a.logger),
		Wallet:   handler.NewWalletHandler(tc.address, tc.signer, tc.balance, a.logger),
	}, tc.hub, a.logger)

	if a.cfg.Server.APIKey == "" && a.cfg.Server.JWTSecret == "" {
		a.logger.WarnContext(ctx, "API authentication disabled; execute, kill and settings endpoints are open")
	}

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func waitTimeout(wait func(), d time.Duration) {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
	}
}
