// Package executor runs the two-leg swap state machine for one opportunity
// at a time.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/metrics"
)

// lovelacePerADA converts the base asset to its smallest unit.
const lovelacePerADA = 1_000_000

// StatusSink receives every status transition of the running trade.
type StatusSink func(ctx context.Context, ev domain.StatusEvent)

// AutoTradeSwitch turns auto-trading on or off in the persisted settings.
type AutoTradeSwitch interface {
	SetAutoTrade(ctx context.Context, on bool) error
}

// Config wires the orchestrator's collaborators and timings.
type Config struct {
	Builder   domain.SwapBuilder
	Signer    domain.Signer
	Confirmer domain.ConfirmationChecker
	AutoTrade AutoTradeSwitch

	PollInterval  time.Duration
	MaxWait       time.Duration
	DryRunDelay   time.Duration
	DefaultLegFee float64

	Logger *slog.Logger
	Now    func() time.Time
}

// Request describes one execution.
type Request struct {
	Trade          domain.TradeRecord
	Opportunity    domain.Opportunity
	MaxSlippagePct float64
	DryRun         bool
}

// LegError is a failed execution. Broadcast reports whether any transaction
// reached the chain before the failure.
type LegError struct {
	Stage     domain.TradeStatus
	Broadcast bool
	Msg       string
	Err       error
}

func (e *LegError) Error() string { return e.Msg }
func (e *LegError) Unwrap() error { return e.Err }

// Orchestrator drives a trade through building, signing and confirming the
// buy leg and then the sell leg.
type Orchestrator struct {
	builder   domain.SwapBuilder
	signer    domain.Signer
	confirmer domain.ConfirmationChecker
	autoTrade AutoTradeSwitch

	pollInterval  time.Duration
	maxWait       time.Duration
	dryRunDelay   time.Duration
	defaultLegFee float64

	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    domain.ExecutorState
	current  string
	status   domain.TradeStatus
	cancel   context.CancelFunc
	run      uint64
	killedAt *time.Time
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultLegFee <= 0 {
		cfg.DefaultLegFee = 0.2
	}
	return &Orchestrator{
		builder:       cfg.Builder,
		signer:        cfg.Signer,
		confirmer:     cfg.Confirmer,
		autoTrade:     cfg.AutoTrade,
		pollInterval:  cfg.PollInterval,
		maxWait:       cfg.MaxWait,
		dryRunDelay:   cfg.DryRunDelay,
		defaultLegFee: cfg.DefaultLegFee,
		logger:        cfg.Logger.With(slog.String("component", "orchestrator")),
		now:           cfg.Now,
		state:         domain.ExecutorIdle,
	}
}

// Status returns a point-in-time view of the orchestrator.
func (o *Orchestrator) Status() domain.ExecutorStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := domain.ExecutorStatus{
		State:         o.state,
		CurrentTrade:  o.current,
		CurrentStatus: o.status,
		KilledAt:      o.killedAt,
	}
	if o.signer != nil {
		st.Signer = o.signer.Name()
	}
	return st
}

// KilledWithin reports whether the kill switch fired in the last d.
func (o *Orchestrator) KilledWithin(d time.Duration) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.killedAt != nil && o.now().Sub(*o.killedAt) < d
}

// Kill cancels the running trade's confirmation polling, forces the state to
// idle and turns auto-trading off. Broadcast transactions are not reverted.
func (o *Orchestrator) Kill(ctx context.Context) error {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	trade := o.current
	o.state = domain.ExecutorIdle
	o.current = ""
	o.status = ""
	now := o.now()
	o.killedAt = &now
	o.mu.Unlock()

	metrics.KillSwitch.Inc()
	o.logger.WarnContext(ctx, "kill switch activated", slog.String("trade_id", trade))

	if o.autoTrade == nil {
		return nil
	}
	if err := o.autoTrade.SetAutoTrade(ctx, false); err != nil {
		return fmt.Errorf("executor: kill: disable auto-trade: %w", err)
	}
	return nil
}

// Execute runs req to a terminal status. The returned record is always
// populated; err is a *LegError when the trade failed.
func (o *Orchestrator) Execute(ctx context.Context, req Request, sink StatusSink) (domain.TradeRecord, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	if o.state == domain.ExecutorRunning {
		o.mu.Unlock()
		return req.Trade, fmt.Errorf("executor: trade %s: %w", o.current, domain.ErrTradeInFlight)
	}
	o.run++
	run := o.run
	o.state = domain.ExecutorRunning
	o.current = req.Trade.ID
	o.status = domain.StatusPending
	o.cancel = cancel
	o.mu.Unlock()

	defer o.finish(run)

	t := &trade{o: o, run: run, ctx: runCtx, sink: sink, rec: req.Trade}
	t.rec.DryRun = req.DryRun
	if req.DryRun {
		return t.simulate(req)
	}
	return t.execute(req)
}

func (o *Orchestrator) finish(run uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run != run || o.state != domain.ExecutorRunning {
		// Killed; Kill already reset the state.
		return
	}
	o.state = domain.ExecutorIdle
	o.current = ""
	o.status = ""
	o.cancel = nil
}

// trade is the per-invocation state.
type trade struct {
	o    *Orchestrator
	run  uint64
	ctx  context.Context
	sink StatusSink
	rec  domain.TradeRecord
}

func (t *trade) emit(status domain.TradeStatus, detail string) {
	t.rec.Status = status
	t.o.mu.Lock()
	if t.o.run == t.run && t.o.state == domain.ExecutorRunning {
		t.o.status = status
	}
	t.o.mu.Unlock()

	if t.sink != nil {
		t.sink(context.WithoutCancel(t.ctx), domain.StatusEvent{
			TradeID:   t.rec.ID,
			Status:    status,
			Detail:    detail,
			BuyTxRef:  t.rec.BuyTxRef,
			SellTxRef: t.rec.SellTxRef,
			At:        t.o.now(),
		})
	}
}

func (t *trade) fail(stage domain.TradeStatus, broadcast bool, fees float64, cause error, msg string) (domain.TradeRecord, error) {
	t.rec.Fees = fees
	t.rec.NetProfit = 0
	t.rec.ErrorMessage = msg
	t.emit(domain.StatusFailed, msg)
	t.o.logger.WarnContext(t.ctx, "trade failed",
		slog.String("trade_id", t.rec.ID),
		slog.String("stage", string(stage)),
		slog.Bool("broadcast", broadcast),
		slog.String("error", msg),
	)
	return t.rec, &LegError{Stage: stage, Broadcast: broadcast, Msg: msg, Err: cause}
}

func (t *trade) simulate(req Request) (domain.TradeRecord, error) {
	amount := t.rec.Amount
	t.emit(domain.StatusBuildingBuy, "Simulating trade (dry run)")

	timer := time.NewTimer(t.o.dryRunDelay)
	defer timer.Stop()
	select {
	case <-t.ctx.Done():
		return t.fail(domain.StatusBuildingBuy, false, 0, domain.ErrKilled, "Killed during dry run; no funds moved")
	case <-timer.C:
	}

	t.rec.Fees = amount*0.006 + 0.4
	t.rec.NetProfit = req.Opportunity.NetProfit
	t.emit(domain.StatusDryRun, fmt.Sprintf("Dry run: %s %s -> %s", t.rec.PairKey, t.rec.BuyVenue, t.rec.SellVenue))
	return t.rec, nil
}

func (t *trade) execute(req Request) (domain.TradeRecord, error) {
	opp := req.Opportunity
	token := opp.QuoteSymbol
	amountIn := int64(math.Floor(t.rec.Amount * lovelacePerADA))
	// Build and sign are never interrupted by the kill switch.
	detached := context.WithoutCancel(t.ctx)

	// Buy leg: ADA -> token on the cheaper venue.
	t.emit(domain.StatusBuildingBuy, fmt.Sprintf("Building swap: %.2f ADA -> %s on %s", t.rec.Amount, token, opp.BuyVenue))
	buyTx, tokensOut, err := t.o.builder.BuildSwap(detached, domain.BaseSymbol, token, amountIn, req.MaxSlippagePct, opp.BuyVenue)
	if err != nil {
		return t.fail(domain.StatusBuildingBuy, false, 0, err,
			fmt.Sprintf("Failed to build buy tx: %v; no funds moved", err))
	}
	if t.killed() {
		return t.fail(domain.StatusBuildingBuy, false, 0, domain.ErrKilled, "Killed before signing buy tx; no funds moved")
	}

	t.emit(domain.StatusSigningBuy, "Waiting for signature (buy)")
	buyRef, err := t.o.signer.SignAndSubmit(detached, buyTx)
	if err != nil {
		return t.fail(domain.StatusSigningBuy, false, 0, err,
			fmt.Sprintf("Buy tx signing/submission failed: %v; no funds moved", err))
	}
	t.rec.BuyTxRef = buyRef

	t.emit(domain.StatusConfirmingBuy, fmt.Sprintf("Buy tx submitted: %s, waiting for confirmation", short(buyRef)))
	buyFee, err := t.awaitConfirmation(buyRef)
	if err != nil {
		if errors.Is(err, domain.ErrKilled) {
			return t.fail(domain.StatusConfirmingBuy, true, 0, err,
				fmt.Sprintf("Killed while confirming buy tx %s; it may still confirm and leave you holding %s tokens", buyRef, token))
		}
		return t.fail(domain.StatusConfirmingBuy, true, 0, err,
			fmt.Sprintf("Buy tx %s not confirmed within %s", buyRef, t.o.maxWait))
	}
	buyFee = t.legFee(buyFee)

	held := fmt.Sprintf("You now hold %s tokens.", token)
	if t.killed() {
		return t.fail(domain.StatusConfirmingBuy, true, buyFee, domain.ErrKilled, "Killed after buy confirmed. "+held)
	}

	// Sell leg: token -> ADA on the dearer venue, sized at the buy estimate.
	sellIn := tokensOut
	if sellIn <= 0 {
		sellIn = amountIn
	}
	t.emit(domain.StatusBuildingSell, fmt.Sprintf("Buy confirmed, building sell: %s -> ADA on %s", token, opp.SellVenue))
	sellTx, _, err := t.o.builder.BuildSwap(detached, token, domain.BaseSymbol, sellIn, req.MaxSlippagePct, opp.SellVenue)
	if err != nil {
		return t.fail(domain.StatusBuildingSell, true, buyFee, err,
			fmt.Sprintf("Failed to build sell tx: %v. %s", err, held))
	}
	if t.killed() {
		return t.fail(domain.StatusBuildingSell, true, buyFee, domain.ErrKilled, "Killed before signing sell tx. "+held)
	}

	t.emit(domain.StatusSigningSell, "Waiting for signature (sell)")
	sellRef, err := t.o.signer.SignAndSubmit(detached, sellTx)
	if err != nil {
		return t.fail(domain.StatusSigningSell, true, buyFee, err,
			fmt.Sprintf("Sell tx signing/submission failed: %v. %s", err, held))
	}
	t.rec.SellTxRef = sellRef

	t.emit(domain.StatusConfirmingSell, fmt.Sprintf("Sell tx submitted: %s, waiting for confirmation", short(sellRef)))
	sellFee, err := t.awaitConfirmation(sellRef)
	if err != nil {
		fees := buyFee + t.o.defaultLegFee
		if errors.Is(err, domain.ErrKilled) {
			return t.fail(domain.StatusConfirmingSell, true, fees, err,
				fmt.Sprintf("Killed while confirming sell tx %s. %s until it confirms", sellRef, held))
		}
		return t.fail(domain.StatusConfirmingSell, true, fees, err,
			fmt.Sprintf("Sell tx %s not confirmed within %s. %s until it confirms", sellRef, t.o.maxWait, held))
	}
	sellFee = t.legFee(sellFee)

	t.rec.Fees = buyFee + sellFee
	t.rec.NetProfit = opp.NetProfit - t.rec.Fees
	t.emit(domain.StatusCompleted, fmt.Sprintf("Arbitrage completed. Buy: %s Sell: %s", short(buyRef), short(sellRef)))
	return t.rec, nil
}

// awaitConfirmation polls until the tx confirms, MaxWait elapses or the
// trade is killed. Poll errors count as "not yet".
func (t *trade) awaitConfirmation(txRef string) (float64, error) {
	deadline := time.NewTimer(t.o.maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(t.o.pollInterval)
	defer ticker.Stop()

	for {
		ok, fee, err := t.o.confirmer.CheckConfirmed(t.ctx, txRef)
		if err != nil && t.ctx.Err() == nil {
			t.o.logger.DebugContext(t.ctx, "confirmation poll failed", slog.String("tx", txRef), slog.Any("error", err))
		}
		if err == nil && ok {
			return fee, nil
		}
		select {
		case <-t.ctx.Done():
			return 0, fmt.Errorf("executor: confirm %s: %w", txRef, domain.ErrKilled)
		case <-deadline.C:
			return 0, fmt.Errorf("executor: confirm %s: %w", txRef, domain.ErrConfirmTimeout)
		case <-ticker.C:
		}
	}
}

func (t *trade) legFee(fee float64) float64 {
	if fee > 0 {
		return fee
	}
	return t.o.defaultLegFee
}

func (t *trade) killed() bool {
	return t.ctx.Err() != nil
}

func short(ref string) string {
	if len(ref) <= 16 {
		return ref
	}
	return ref[:16] + "..."
}
