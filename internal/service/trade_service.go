package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/executor"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/ledger"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/metrics"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/notify"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/risk"
)

const tradeLockKey = "trade"

// notifyTimeout bounds one background notification.
const notifyTimeout = 30 * time.Second

// OpportunityFinder re-evaluates an opportunity against the current quotes.
type OpportunityFinder interface {
	Find(ctx context.Context, id string, tradeSize float64) (domain.Opportunity, error)
}

// SettingsProvider returns the current settings snapshot.
type SettingsProvider interface {
	Get(ctx context.Context) (domain.TradeSettings, error)
}

// Executor runs one trade at a time and owns the kill switch.
type Executor interface {
	Execute(ctx context.Context, req executor.Request, sink executor.StatusSink) (domain.TradeRecord, error)
	Kill(ctx context.Context) error
	Status() domain.ExecutorStatus
	KilledWithin(d time.Duration) bool
}

// ExecuteRequest selects the opportunity to trade.
type ExecuteRequest struct {
	OpportunityID string `json:"opportunityId"`
}

// TradeServiceConfig wires the TradeService. Balance, Locks, Bus, Notifier
// and Audit are optional.
type TradeServiceConfig struct {
	Finder   OpportunityFinder
	Executor Executor
	Policy   *risk.Policy
	Ledger   *ledger.Ledger
	Settings SettingsProvider
	Balance  domain.BalanceProvider
	Locks    domain.LockManager
	Bus      domain.SignalBus
	Notifier *notify.Notifier
	Audit    domain.AuditStore

	// LockTTL bounds how long a crashed process can hold the trade lock.
	LockTTL time.Duration
	// KillGuard refuses new trades for this long after the kill switch.
	KillGuard time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// TradeService gates execution requests through the risk policy, runs them
// on the executor and records the outcome in the ledger.
type TradeService struct {
	finder   OpportunityFinder
	exec     Executor
	policy   *risk.Policy
	ledger   *ledger.Ledger
	settings SettingsProvider
	balance  domain.BalanceProvider
	locks    domain.LockManager
	bus      domain.SignalBus
	notifier *notify.Notifier
	audit    domain.AuditStore
	lockTTL  time.Duration
	guard    time.Duration
	logger   *slog.Logger
	now      func() time.Time

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// NewTradeService creates a TradeService.
func NewTradeService(cfg TradeServiceConfig) *TradeService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &TradeService{
		finder:   cfg.Finder,
		exec:     cfg.Executor,
		policy:   cfg.Policy,
		ledger:   cfg.Ledger,
		settings: cfg.Settings,
		balance:  cfg.Balance,
		locks:    cfg.Locks,
		bus:      cfg.Bus,
		notifier: cfg.Notifier,
		audit:    cfg.Audit,
		lockTTL:  cfg.LockTTL,
		guard:    cfg.KillGuard,
		logger:   cfg.Logger.With(slog.String("component", "trade_service")),
		now:      cfg.Now,
	}
}

// prepared is an accepted request holding the single-flight slot.
type prepared struct {
	ctx      context.Context
	rec      domain.TradeRecord
	opp      domain.Opportunity
	settings domain.TradeSettings
	release  func()
}

// Execute runs the request to a terminal status and returns the final
// record. A failed trade returns the record together with its
// *executor.LegError.
func (s *TradeService) Execute(ctx context.Context, req ExecuteRequest) (domain.TradeRecord, error) {
	p, err := s.prepare(ctx, req)
	if err != nil {
		return domain.TradeRecord{}, err
	}
	return s.run(p)
}

// Start accepts the request like Execute but runs the trade in the
// background and returns the pending record.
func (s *TradeService) Start(ctx context.Context, req ExecuteRequest) (domain.TradeRecord, error) {
	p, err := s.prepare(ctx, req)
	if err != nil {
		return domain.TradeRecord{}, err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.run(p)
	}()
	return p.rec, nil
}

// Wait blocks until every trade started with Start has finished and its
// notifications have been sent.
func (s *TradeService) Wait() {
	s.wg.Wait()
}

// Busy reports whether a trade holds the single-flight slot.
func (s *TradeService) Busy() bool {
	return s.inFlight.Load()
}

// Status returns the executor's current state.
func (s *TradeService) Status() domain.ExecutorStatus {
	return s.exec.Status()
}

// Kill engages the kill switch. Auto-trading is turned off and transactions
// already on chain stay there.
func (s *TradeService) Kill(ctx context.Context) (domain.ExecutorStatus, error) {
	before := s.exec.Status()
	err := s.exec.Kill(ctx)
	after := s.exec.Status()

	if s.audit != nil {
		detail := map[string]any{"trade": before.CurrentTrade, "status": string(before.CurrentStatus)}
		if aerr := s.audit.Log(ctx, "kill_switch", detail); aerr != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", aerr.Error()))
		}
	}

	msg := "All trading stopped. Auto-trade disabled."
	if before.CurrentTrade != "" {
		msg = fmt.Sprintf("Trade %s interrupted at %s. Broadcast transactions are not reverted. Auto-trade disabled.",
			before.CurrentTrade, before.CurrentStatus)
	}
	s.notifyAsync(ctx, func(ctx context.Context) error {
		return s.notifier.Notify(ctx, notify.EventKillSwitch, "🛑 Kill switch engaged", msg)
	})

	if err != nil {
		return after, fmt.Errorf("trade_service: kill: %w", err)
	}
	return after, nil
}

func (s *TradeService) prepare(ctx context.Context, req ExecuteRequest) (*prepared, error) {
	id := strings.TrimSpace(req.OpportunityID)
	if id == "" {
		return nil, fmt.Errorf("trade_service: opportunity id is required: %w", domain.ErrInvalidInput)
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("trade_service: settings: %w", err)
	}
	if s.guard > 0 && s.exec.KilledWithin(s.guard) {
		return nil, fmt.Errorf("trade_service: kill switch engaged less than %s ago: %w", s.guard, domain.ErrKilled)
	}

	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("trade_service: %w", domain.ErrTradeInFlight)
	}
	release := func() { s.inFlight.Store(false) }

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, tradeLockKey, s.lockTTL)
		if err != nil {
			release()
			if errors.Is(err, domain.ErrLockHeld) {
				return nil, fmt.Errorf("trade_service: another process is trading: %w", domain.ErrTradeInFlight)
			}
			return nil, fmt.Errorf("trade_service: acquire lock: %w", err)
		}
		local := release
		release = func() {
			unlock()
			local()
		}
	}

	p, err := s.admit(ctx, id, settings)
	if err != nil {
		release()
		return nil, err
	}
	p.release = release
	return p, nil
}

// admit runs the lookup and the risk checks and records the pending entry.
func (s *TradeService) admit(ctx context.Context, id string, settings domain.TradeSettings) (*prepared, error) {
	opp, err := s.finder.Find(ctx, id, settings.TradeSize)
	if err != nil {
		return nil, fmt.Errorf("trade_service: find opportunity: %w", err)
	}

	agg, err := s.ledger.Aggregates(ctx)
	if err != nil {
		return nil, fmt.Errorf("trade_service: aggregates: %w", err)
	}
	balance, err := s.walletBalance(ctx, settings)
	if err != nil {
		return nil, err
	}

	checks := []error{
		s.policy.CheckQuoteSource(opp, settings.DryRun),
		s.policy.CheckCanTrade(settings, balance, agg),
		s.policy.CheckCooldown(s.now(), agg.LastTradeAt, settings.CooldownSeconds),
		s.policy.CheckMinProfit(opp, settings.TradeSize),
	}
	for _, err := range checks {
		if err == nil {
			continue
		}
		var rej *risk.Rejection
		if errors.As(err, &rej) {
			metrics.RiskRejections.WithLabelValues(rej.Check).Inc()
		}
		s.logger.InfoContext(ctx, "trade rejected",
			slog.String("opportunity", opp.ID),
			slog.String("reason", err.Error()),
		)
		return nil, fmt.Errorf("trade_service: %w", err)
	}

	rec, err := s.ledger.Record(ctx, domain.TradeRecord{
		OpportunityID: opp.ID,
		PairKey:       opp.PairKey,
		BuyVenue:      opp.BuyVenue,
		SellVenue:     opp.SellVenue,
		Amount:        s.policy.CapTradeSize(settings.TradeSize),
		BuyPrice:      opp.BuyPrice,
		SellPrice:     opp.SellPrice,
		Status:        domain.StatusPending,
		DryRun:        settings.DryRun,
	})
	if err != nil {
		return nil, fmt.Errorf("trade_service: record: %w", err)
	}
	return &prepared{ctx: ctx, rec: rec, opp: opp, settings: settings}, nil
}

// walletBalance returns the spendable balance. A dry run without a balance
// source is treated as exactly covering the trade and the reserve.
func (s *TradeService) walletBalance(ctx context.Context, settings domain.TradeSettings) (float64, error) {
	if s.balance == nil {
		if settings.DryRun {
			return settings.TradeSize + s.policy.Limits().Reserve, nil
		}
		return 0, fmt.Errorf("trade_service: no wallet balance source for live trading: %w", domain.ErrInvalidInput)
	}
	bal, err := s.balance.Balance(ctx)
	if err != nil {
		return 0, fmt.Errorf("trade_service: wallet balance: %w", err)
	}
	return bal, nil
}

func (s *TradeService) run(p *prepared) (domain.TradeRecord, error) {
	release := sync.OnceFunc(p.release)
	defer release()

	// The trade outlives the request that started it; only Kill stops it.
	ctx := context.WithoutCancel(p.ctx)
	s.logger.InfoContext(ctx, "trade started",
		slog.String("trade_id", p.rec.ID),
		slog.String("pair", p.rec.PairKey),
		slog.String("buy", p.rec.BuyVenue),
		slog.String("sell", p.rec.SellVenue),
		slog.Float64("amount", p.rec.Amount),
		slog.Bool("dry_run", p.settings.DryRun),
	)

	result, execErr := s.exec.Execute(ctx, executor.Request{
		Trade:          p.rec,
		Opportunity:    p.opp,
		MaxSlippagePct: p.settings.MaxSlippagePct,
		DryRun:         p.settings.DryRun,
	}, s.sink)
	if !result.Status.Terminal() {
		result.Status = domain.StatusFailed
		if execErr != nil {
			result.ErrorMessage = fmt.Sprintf("Trade not started: %v; no funds moved", execErr)
		}
	}

	final, err := s.ledger.Update(ctx, result)
	if err != nil {
		s.logger.ErrorContext(ctx, "ledger update failed", slog.String("trade_id", result.ID), slog.String("error", err.Error()))
		final = result
	}

	metrics.Trades.WithLabelValues(string(final.Status)).Inc()
	if daily, err := s.ledger.DailyPnL(ctx); err == nil {
		metrics.RealizedPnL.Set(daily.Net)
	}

	// The next trade may start while the notification is in flight.
	release()
	s.notifyAsync(ctx, func(ctx context.Context) error { return s.notifier.NotifyTrade(ctx, final) })

	s.logger.InfoContext(ctx, "trade finished",
		slog.String("trade_id", final.ID),
		slog.String("status", string(final.Status)),
		slog.Float64("fees", final.Fees),
		slog.Float64("net_profit", final.NetProfit),
	)
	return final, execErr
}

// sink persists intermediate statuses, with the tx refs of broadcast legs,
// and publishes every transition. Terminal statuses are written once by run.
func (s *TradeService) sink(ctx context.Context, ev domain.StatusEvent) {
	if !ev.Status.Terminal() {
		if err := s.ledger.Advance(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "persist status failed",
				slog.String("trade_id", ev.TradeID),
				slog.String("status", string(ev.Status)),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelTradeStatus, payload); err != nil {
		s.logger.WarnContext(ctx, "publish status failed", slog.String("error", err.Error()))
	}
}

// notifyAsync sends in the background so a slow webhook never holds the
// trade slot. Wait covers pending notifications.
func (s *TradeService) notifyAsync(ctx context.Context, send func(ctx context.Context) error) {
	if !s.notifier.Enabled() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := send(nctx); err != nil {
			s.logger.WarnContext(nctx, "notification failed", slog.String("error", err.Error()))
		}
	}()
}
