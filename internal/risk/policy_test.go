package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

func settings() domain.TradeSettings {
	return domain.TradeSettings{
		TradeSize:       200,
		MinSpreadPct:    2,
		MaxSlippagePct:  1.5,
		RiskLevel:       domain.RiskModerate,
		DailyLossLimit:  50,
		DryRun:          true,
		CooldownSeconds: 60,
	}
}

func TestCanTrade(t *testing.T) {
	p := New(DefaultLimits())

	cases := []struct {
		name     string
		mutate   func(*domain.TradeSettings)
		balance  float64
		agg      domain.LedgerAggregates
		ok       bool
		contains string
	}{
		{name: "fresh ledger", balance: 500, ok: true},
		{name: "exact reserve passes", balance: 210, ok: true},
		{
			name:     "daily loss equals limit",
			balance:  500,
			agg:      domain.LedgerAggregates{Daily: domain.DailyPnL{Loss: 50}},
			contains: "Daily loss limit reached (50.00 ADA lost today)",
		},
		{
			name:     "daily loss exceeds limit",
			balance:  500,
			agg:      domain.LedgerAggregates{Daily: domain.DailyPnL{Loss: 72.5, Profit: 100}},
			contains: "Daily loss limit",
		},
		{
			name:     "balance below size plus reserve",
			balance:  209.99,
			contains: "Insufficient balance (need 210.00 ADA, have 209.99 ADA)",
		},
		{
			name:     "size above platform cap",
			mutate:   func(s *domain.TradeSettings) { s.TradeSize = 250 },
			balance:  1000,
			contains: "Trade size exceeds max (200 ADA)",
		},
		{
			name:     "loss checked before balance",
			balance:  0,
			agg:      domain.LedgerAggregates{Daily: domain.DailyPnL{Loss: 60}},
			contains: "Daily loss",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := settings()
			if tc.mutate != nil {
				tc.mutate(&s)
			}
			ok, reason := p.CanTrade(s, tc.balance, tc.agg)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Empty(t, reason)
			} else {
				assert.Contains(t, reason, tc.contains)
			}
		})
	}
}

func TestCheckCanTradeReturnsRejection(t *testing.T) {
	p := New(DefaultLimits())
	err := p.CheckCanTrade(settings(), 5, domain.LedgerAggregates{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRiskRejected)

	var rej *Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, CheckBalance, rej.Check)
}

func TestCheckCooldown(t *testing.T) {
	p := New(DefaultLimits())
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.Local)

	assert.NoError(t, p.CheckCooldown(now, time.Time{}, 60))
	assert.NoError(t, p.CheckCooldown(now, now.Add(-60*time.Second), 60))

	err := p.CheckCooldown(now, now.Add(-59500*time.Millisecond), 60)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1s remaining")

	err = p.CheckCooldown(now, now.Add(-10*time.Second), 60)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, CheckCooldown, rej.Check)
	assert.Contains(t, rej.Reason, "50s remaining")
}

func TestCheckMinProfit(t *testing.T) {
	p := New(DefaultLimits())

	assert.InDelta(t, 2.5, p.MinProfit(200), 1e-9)
	assert.NoError(t, p.CheckMinProfit(domain.Opportunity{NetProfit: 2.5}, 200))

	err := p.CheckMinProfit(domain.Opportunity{NetProfit: 2.49}, 200)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRiskRejected)
	assert.Contains(t, err.Error(), "below minimum 2.50 ADA")

	// positive but too thin at a smaller size
	assert.Error(t, p.CheckMinProfit(domain.Opportunity{NetProfit: 0.55}, 10))
}

func TestCapTradeSize(t *testing.T) {
	p := New(DefaultLimits())
	assert.Equal(t, 200.0, p.CapTradeSize(1000))
	assert.Equal(t, 50.0, p.CapTradeSize(50))
}

func TestCheckQuoteSource(t *testing.T) {
	p := New(DefaultLimits())
	opp := func(buy, sell domain.VenueState) domain.Opportunity {
		return domain.Opportunity{BuyVenue: "Minswap", SellVenue: "MuesliSwap", BuySource: buy, SellSource: sell}
	}

	tests := []struct {
		name    string
		opp     domain.Opportunity
		dryRun  bool
		wantErr string
	}{
		{name: "both live", opp: opp(domain.VenueLive, domain.VenueLive)},
		{name: "demo sell leg", opp: opp(domain.VenueLive, domain.VenueDemo), wantErr: "MuesliSwap: demo"},
		{name: "demo buy leg", opp: opp(domain.VenueDemo, domain.VenueLive), wantErr: "Minswap: demo"},
		{name: "stale leg", opp: opp(domain.VenueLive, domain.VenueStale), wantErr: "MuesliSwap: stale"},
		{name: "unstamped", opp: opp("", domain.VenueLive), wantErr: "Minswap: unknown"},
		{name: "dry run on demo", opp: opp(domain.VenueDemo, domain.VenueDemo), dryRun: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.CheckQuoteSource(tt.opp, tt.dryRun)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var rej *Rejection
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, CheckSource, rej.Check)
			assert.Contains(t, rej.Reason, tt.wantErr)
			assert.ErrorIs(t, err, domain.ErrRiskRejected)
		})
	}
}
