package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

type mockBuilder struct{ mock.Mock }

func (m *mockBuilder) BuildSwap(ctx context.Context, from, to string, amount int64, slippage float64, venue string) (domain.UnsignedTx, int64, error) {
	args := m.Called(ctx, from, to, amount, slippage, venue)
	return args.Get(0).(domain.UnsignedTx), args.Get(1).(int64), args.Error(2)
}

type mockSigner struct{ mock.Mock }

func (m *mockSigner) SignAndSubmit(ctx context.Context, tx domain.UnsignedTx) (string, error) {
	args := m.Called(ctx, tx)
	return args.String(0), args.Error(1)
}

func (m *mockSigner) Name() string { return "test" }

// stubConfirmer confirms the refs in fees immediately; others never confirm.
type stubConfirmer struct {
	mu    sync.Mutex
	fees  map[string]float64
	polls int
}

func (c *stubConfirmer) CheckConfirmed(ctx context.Context, ref string) (bool, float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}
	fee, ok := c.fees[ref]
	return ok, fee, nil
}

type switchStub struct {
	mu  sync.Mutex
	set []bool
}

func (s *switchStub) SetAutoTrade(_ context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = append(s.set, on)
	return nil
}

type statusLog struct {
	mu     sync.Mutex
	events []domain.StatusEvent
	ch     chan domain.TradeStatus
}

func newStatusLog() *statusLog { return &statusLog{ch: make(chan domain.TradeStatus, 32)} }

func (l *statusLog) sink(_ context.Context, ev domain.StatusEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	l.ch <- ev.Status
}

func (l *statusLog) statuses() []domain.TradeStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.TradeStatus, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Status)
	}
	return out
}

var (
	buyTx  = domain.UnsignedTx{CborHex: "84a4buy", Source: "dexhunter"}
	sellTx = domain.UnsignedTx{CborHex: "84a4sell", Source: "dexhunter"}
)

func opportunity() domain.Opportunity {
	return domain.Opportunity{
		ID:          "ADA/MIN:Minswap:MuesliSwap",
		PairKey:     "ADA/MIN",
		BaseSymbol:  "ADA",
		QuoteSymbol: "MIN",
		BuyVenue:    "Minswap",
		SellVenue:   "MuesliSwap",
		BuyPrice:    0.042,
		SellPrice:   0.0445,
		NetProfit:   10,
		Tier:        domain.TierGreen,
	}
}

func request(dryRun bool) Request {
	opp := opportunity()
	return Request{
		Trade: domain.TradeRecord{
			ID:            "trade-1",
			OpportunityID: opp.ID,
			PairKey:       opp.PairKey,
			BuyVenue:      opp.BuyVenue,
			SellVenue:     opp.SellVenue,
			Amount:        200,
			Status:        domain.StatusPending,
		},
		Opportunity:    opp,
		MaxSlippagePct: 1.5,
		DryRun:         dryRun,
	}
}

type fixture struct {
	orch      *Orchestrator
	builder   *mockBuilder
	signer    *mockSigner
	confirmer *stubConfirmer
	autoTrade *switchStub
	log       *statusLog
}

func newFixture(maxWait time.Duration) *fixture {
	f := &fixture{
		builder:   &mockBuilder{},
		signer:    &mockSigner{},
		confirmer: &stubConfirmer{fees: map[string]float64{}},
		autoTrade: &switchStub{},
		log:       newStatusLog(),
	}
	f.orch = New(Config{
		Builder:       f.builder,
		Signer:        f.signer,
		Confirmer:     f.confirmer,
		AutoTrade:     f.autoTrade,
		PollInterval:  5 * time.Millisecond,
		MaxWait:       maxWait,
		DryRunDelay:   10 * time.Millisecond,
		DefaultLegFee: 0.2,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func (f *fixture) expectBuy(out int64, err error) {
	f.builder.On("BuildSwap", mock.Anything, "ADA", "MIN", int64(200_000_000), 1.5, "Minswap").
		Return(buyTx, out, err).Once()
}

func TestDryRun(t *testing.T) {
	f := newFixture(time.Second)

	rec, err := f.orch.Execute(context.Background(), request(true), f.log.sink)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusDryRun, rec.Status)
	assert.Equal(t, 10.0, rec.NetProfit)
	assert.InDelta(t, 1.6, rec.Fees, 1e-9)
	assert.True(t, rec.DryRun)
	assert.Empty(t, rec.BuyTxRef)
	assert.Empty(t, rec.SellTxRef)
	assert.Equal(t, []domain.TradeStatus{domain.StatusBuildingBuy, domain.StatusDryRun}, f.log.statuses())

	f.builder.AssertNotCalled(t, "BuildSwap", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.signer.AssertNotCalled(t, "SignAndSubmit", mock.Anything, mock.Anything)
	assert.Equal(t, domain.ExecutorIdle, f.orch.Status().State)
}

func TestCompletedTrade(t *testing.T) {
	f := newFixture(time.Second)
	f.expectBuy(4_700_000_000, nil)
	f.signer.On("SignAndSubmit", mock.Anything, buyTx).Return("buyhash0123456789abcdef", nil).Once()
	f.builder.On("BuildSwap", mock.Anything, "MIN", "ADA", int64(4_700_000_000), 1.5, "MuesliSwap").
		Return(sellTx, int64(209_000_000), nil).Once()
	f.signer.On("SignAndSubmit", mock.Anything, sellTx).Return("sellhash0123456789abcdef", nil).Once()
	f.confirmer.fees["buyhash0123456789abcdef"] = 0.18
	f.confirmer.fees["sellhash0123456789abcdef"] = 0 // unknown fee

	rec, err := f.orch.Execute(context.Background(), request(false), f.log.sink)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, rec.Status)
	assert.Equal(t, "buyhash0123456789abcdef", rec.BuyTxRef)
	assert.Equal(t, "sellhash0123456789abcdef", rec.SellTxRef)
	assert.InDelta(t, 0.38, rec.Fees, 1e-9)
	assert.InDelta(t, 9.62, rec.NetProfit, 1e-9)
	assert.Equal(t, []domain.TradeStatus{
		domain.StatusBuildingBuy, domain.StatusSigningBuy, domain.StatusConfirmingBuy,
		domain.StatusBuildingSell, domain.StatusSigningSell, domain.StatusConfirmingSell,
		domain.StatusCompleted,
	}, f.log.statuses())
	f.builder.AssertExpectations(t)
	f.signer.AssertExpectations(t)
}

func TestBuyLegFailures(t *testing.T) {
	t.Run("build", func(t *testing.T) {
		f := newFixture(time.Second)
		f.expectBuy(0, errors.New("dexhunter: status 503"))

		rec, err := f.orch.Execute(context.Background(), request(false), f.log.sink)
		require.Error(t, err)

		var legErr *LegError
		require.ErrorAs(t, err, &legErr)
		assert.False(t, legErr.Broadcast)
		assert.Equal(t, domain.StatusBuildingBuy, legErr.Stage)

		assert.Equal(t, domain.StatusFailed, rec.Status)
		assert.Empty(t, rec.BuyTxRef)
		assert.Zero(t, rec.Fees)
		assert.Contains(t, rec.ErrorMessage, "no funds moved")
		f.signer.AssertNotCalled(t, "SignAndSubmit", mock.Anything, mock.Anything)
	})

	t.Run("sign", func(t *testing.T) {
		f := newFixture(time.Second)
		f.expectBuy(4_700_000_000, nil)
		f.signer.On("SignAndSubmit", mock.Anything, buyTx).Return("", domain.ErrSigningFailed).Once()

		rec, err := f.orch.Execute(context.Background(), request(false), f.log.sink)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrSigningFailed))
		assert.Equal(t, domain.StatusFailed, rec.Status)
		assert.Empty(t, rec.BuyTxRef)
		assert.Zero(t, rec.Fees)
		assert.Contains(t, rec.ErrorMessage, "no funds moved")
	})

	t.Run("confirmation timeout", func(t *testing.T) {
		f := newFixture(30 * time.Millisecond)
		f.expectBuy(4_700_000_000, nil)
		f.signer.On("SignAndSubmit", mock.Anything, buyTx).Return("buyhash", nil).Once()

		rec, err := f.orch.Execute(context.Background(), request(false), f.log.sink)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrConfirmTimeout))
		assert.Equal(t, domain.StatusFailed, rec.Status)
		assert.Equal(t, "buyhash", rec.BuyTxRef)
		assert.Contains(t, rec.ErrorMessage, "not confirmed")
		// Never retried: one build and one submit.
		f.builder.AssertNumberOfCalls(t, "BuildSwap", 1)
		f.signer.AssertNumberOfCalls(t, "SignAndSubmit", 1)
	})
}

func TestSellLegFailureAfterConfirmedBuy(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(f *fixture)
		stage     domain.TradeStatus
		message   string
		fees      float64
		sellTxRef string
		signCalls int
	}{
		{
			name: "build",
			setup: func(f *fixture) {
				f.builder.On("BuildSwap", mock.Anything, "MIN", "ADA", int64(4_700_000_000), 1.5, "MuesliSwap").
					Return(domain.UnsignedTx{}, int64(0), errors.New("no route")).Once()
			},
			stage:     domain.StatusBuildingSell,
			message:   "Failed to build sell tx: no route.",
			fees:      0.17,
			signCalls: 1,
		},
		{
			name: "signing",
			setup: func(f *fixture) {
				f.builder.On("BuildSwap", mock.Anything, "MIN", "ADA", int64(4_700_000_000), 1.5, "MuesliSwap").
					Return(sellTx, int64(208_000_000), nil).Once()
				f.signer.On("SignAndSubmit", mock.Anything, sellTx).Return("", errors.New("user declined")).Once()
			},
			stage:     domain.StatusSigningSell,
			message:   "Sell tx signing/submission failed: user declined.",
			fees:      0.17,
			signCalls: 2,
		},
		{
			name: "confirmation timeout",
			setup: func(f *fixture) {
				f.builder.On("BuildSwap", mock.Anything, "MIN", "ADA", int64(4_700_000_000), 1.5, "MuesliSwap").
					Return(sellTx, int64(208_000_000), nil).Once()
				f.signer.On("SignAndSubmit", mock.Anything, sellTx).Return("sellhash", nil).Once()
			},
			stage:     domain.StatusConfirmingSell,
			message:   "Sell tx sellhash not confirmed within",
			fees:      0.17 + 0.2,
			sellTxRef: "sellhash",
			signCalls: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(100 * time.Millisecond)
			f.expectBuy(4_700_000_000, nil)
			f.signer.On("SignAndSubmit", mock.Anything, buyTx).Return("buyhash", nil).Once()
			f.confirmer.fees["buyhash"] = 0.17
			tt.setup(f)

			rec, err := f.orch.Execute(context.Background(), request(false), f.log.sink)
			require.Error(t, err)

			var legErr *LegError
			require.ErrorAs(t, err, &legErr)
			assert.True(t, legErr.Broadcast)
			assert.Equal(t, tt.stage, legErr.Stage)

			assert.Equal(t, domain.StatusFailed, rec.Status)
			assert.Equal(t, "buyhash", rec.BuyTxRef)
			assert.Equal(t, tt.sellTxRef, rec.SellTxRef)
			assert.Contains(t, rec.ErrorMessage, tt.message)
			assert.Contains(t, rec.ErrorMessage, "You now hold MIN tokens")
			assert.InDelta(t, tt.fees, rec.Fees, 1e-9)
			assert.Zero(t, rec.NetProfit)

			f.builder.AssertNumberOfCalls(t, "BuildSwap", 2)
			f.signer.AssertNumberOfCalls(t, "SignAndSubmit", tt.signCalls)
		})
	}
}

func TestStatusEventsCarryTxRefs(t *testing.T) {
	f := newFixture(time.Second)
	f.expectBuy(4_700_000_000, nil)
	f.signer.On("SignAndSubmit", mock.Anything, buyTx).Return("buyhash", nil).Once()
	f.builder.On("BuildSwap", mock.Anything, "MIN", "ADA", int64(4_700_000_000), 1.5, "MuesliSwap").
		Return(sellTx, int64(208_000_000), nil).Once()
	f.signer.On("SignAndSubmit", mock.Anything, sellTx).Return("sellhash", nil).Once()
	f.confirmer.fees["buyhash"] = 0.17
	f.confirmer.fees["sellhash"] = 0.18

	_, err := f.orch.Execute(context.Background(), request(false), f.log.sink)
	require.NoError(t, err)

	f.log.mu.Lock()
	defer f.log.mu.Unlock()
	refs := map[domain.TradeStatus][2]string{}
	for _, ev := range f.log.events {
		refs[ev.Status] = [2]string{ev.BuyTxRef, ev.SellTxRef}
	}
	assert.Equal(t, [2]string{"", ""}, refs[domain.StatusSigningBuy])
	assert.Equal(t, [2]string{"buyhash", ""}, refs[domain.StatusConfirmingBuy])
	assert.Equal(t, [2]string{"buyhash", ""}, refs[domain.StatusSigningSell])
	assert.Equal(t, [2]string{"buyhash", "sellhash"}, refs[domain.StatusConfirmingSell])
	assert.Equal(t, [2]string{"buyhash", "sellhash"}, refs[domain.StatusCompleted])
}

func TestKillDuringConfirmation(t *testing.T) {
	f := newFixture(10 * time.Second)
	f.expectBuy(4_700_000_000, nil)
	f.signer.On("SignAndSubmit", mock.Anything, buyTx).Return("buyhash", nil).Once()

	type result struct {
		rec domain.TradeRecord
		err error
	}
	done := make(chan result, 1)
	go func() {
		rec, err := f.orch.Execute(context.Background(), request(false), f.log.sink)
		done <- result{rec, err}
	}()

	for st := range f.log.ch {
		if st == domain.StatusConfirmingBuy {
			break
		}
	}
	running := f.orch.Status()
	assert.Equal(t, domain.ExecutorRunning, running.State)
	assert.Equal(t, "trade-1", running.CurrentTrade)

	require.NoError(t, f.orch.Kill(context.Background()))
	st := f.orch.Status()
	assert.Equal(t, domain.ExecutorIdle, st.State)
	assert.Empty(t, st.CurrentTrade)
	require.NotNil(t, st.KilledAt)
	assert.True(t, f.orch.KilledWithin(time.Minute))
	assert.Equal(t, []bool{false}, f.autoTrade.set)

	select {
	case r := <-done:
		require.Error(t, r.err)
		assert.True(t, errors.Is(r.err, domain.ErrKilled))
		assert.Equal(t, domain.StatusFailed, r.rec.Status)
		assert.Equal(t, "buyhash", r.rec.BuyTxRef)
	case <-time.After(2 * time.Second):
		t.Fatal("execution did not observe the kill")
	}
	f.builder.AssertNumberOfCalls(t, "BuildSwap", 1)
	assert.Equal(t, domain.ExecutorIdle, f.orch.Status().State)
}

func TestSingleTradeAtATime(t *testing.T) {
	f := newFixture(time.Second)
	f.orch.dryRunDelay = 200 * time.Millisecond

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.orch.Execute(context.Background(), request(true), f.log.sink)
	}()
	<-f.log.ch // building-buy: the first run holds the slot

	second := request(true)
	second.Trade.ID = "trade-2"
	_, err := f.orch.Execute(context.Background(), second, nil)
	assert.True(t, errors.Is(err, domain.ErrTradeInFlight))
	<-done
}

func TestDedup(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	d := NewDedup(time.Minute, func() time.Time { return now })

	assert.False(t, d.Recent("route"))
	d.Mark("route")
	assert.True(t, d.Recent("route"))

	now = now.Add(time.Minute)
	assert.False(t, d.Recent("route"))
	d.Cleanup()
	assert.Zero(t, d.Len())
}
