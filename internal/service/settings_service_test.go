package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultSettings() domain.TradeSettings {
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

func ptr[T any](v T) *T { return &v }

type failingSettingsStore struct{}

func (failingSettingsStore) Get(context.Context) (domain.TradeSettings, error) {
	return domain.TradeSettings{}, errors.New("connection refused")
}

func (failingSettingsStore) Save(context.Context, domain.TradeSettings) error {
	return errors.New("connection refused")
}

func TestSettingsServiceGet(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSettingsStore()
	svc := NewSettingsService(store, nil, defaultSettings(), 200, discardLogger())

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaultSettings(), got, "defaults before the first save")

	require.NoError(t, store.Save(ctx, domain.TradeSettings{TradeSize: 50, AutoTrade: true}))
	got, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.TradeSize)
	assert.True(t, got.AutoTrade)
	assert.False(t, got.DryRun, "booleans are taken as stored")
	assert.Equal(t, 2.0, got.MinSpreadPct)
	assert.Equal(t, domain.RiskModerate, got.RiskLevel)
	assert.Equal(t, 60, got.CooldownSeconds)

	_, err = NewSettingsService(failingSettingsStore{}, nil, defaultSettings(), 200, discardLogger()).Get(ctx)
	assert.ErrorContains(t, err, "connection refused")
}

func TestSettingsServiceUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("partial update is saved and audited", func(t *testing.T) {
		audit := memory.NewAuditStore()
		svc := NewSettingsService(memory.NewSettingsStore(), audit, defaultSettings(), 200, discardLogger())

		got, err := svc.Update(ctx, SettingsUpdate{TradeSize: ptr(120.0), DryRun: ptr(false)})
		require.NoError(t, err)
		assert.Equal(t, 120.0, got.TradeSize)
		assert.False(t, got.DryRun)
		assert.Equal(t, 1.5, got.MaxSlippagePct)

		again, err := svc.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, got, again)

		entries, err := audit.List(ctx, domain.ListOpts{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "settings.updated", entries[0].Event)
	})

	t.Run("risk level applies its preset spread", func(t *testing.T) {
		svc := NewSettingsService(memory.NewSettingsStore(), nil, defaultSettings(), 200, discardLogger())
		got, err := svc.Update(ctx, SettingsUpdate{RiskLevel: ptr(domain.RiskConservative)})
		require.NoError(t, err)
		assert.Equal(t, 5.0, got.MinSpreadPct)

		got, err = svc.Update(ctx, SettingsUpdate{RiskLevel: ptr(domain.RiskAggressive), MinSpreadPct: ptr(4.0)})
		require.NoError(t, err)
		assert.Equal(t, 4.0, got.MinSpreadPct, "an explicit spread wins over the preset")
	})

	t.Run("invalid values change nothing", func(t *testing.T) {
		store := memory.NewSettingsStore()
		svc := NewSettingsService(store, nil, defaultSettings(), 200, discardLogger())

		tests := []struct {
			name string
			u    SettingsUpdate
			want string
		}{
			{"trade size too large", SettingsUpdate{TradeSize: ptr(250.0)}, "tradeSize"},
			{"trade size too small", SettingsUpdate{TradeSize: ptr(5.0)}, "tradeSize"},
			{"spread", SettingsUpdate{MinSpreadPct: ptr(0.5)}, "minSpread"},
			{"slippage", SettingsUpdate{MaxSlippagePct: ptr(6.0)}, "maxSlippage"},
			{"cooldown", SettingsUpdate{CooldownSeconds: ptr(10)}, "cooldownSeconds"},
			{"risk level", SettingsUpdate{RiskLevel: ptr(domain.RiskLevel("yolo"))}, "riskLevel"},
			{"loss limit", SettingsUpdate{DailyLossLimit: ptr(0.0)}, "dailyLossLimit"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.Update(ctx, tt.u)
				require.ErrorIs(t, err, domain.ErrInvalidInput)
				assert.Contains(t, err.Error(), tt.want)
			})
		}
		_, err := store.Get(ctx)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestSettingsServiceSetAutoTrade(t *testing.T) {
	ctx := context.Background()
	audit := memory.NewAuditStore()
	svc := NewSettingsService(memory.NewSettingsStore(), audit, defaultSettings(), 200, discardLogger())

	require.NoError(t, svc.SetAutoTrade(ctx, true))
	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.True(t, got.AutoTrade)

	require.NoError(t, svc.SetAutoTrade(ctx, true))
	require.NoError(t, svc.SetAutoTrade(ctx, false))
	got, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.False(t, got.AutoTrade)

	entries, err := audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, entries, 2, "a no-op switch is not audited")
}

func TestValidateSettings(t *testing.T) {
	assert.NoError(t, ValidateSettings(defaultSettings(), 200))

	bad := defaultSettings()
	bad.TradeSize = 0
	bad.CooldownSeconds = 0
	err := ValidateSettings(bad, 200)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "tradeSize")
	assert.Contains(t, err.Error(), "cooldownSeconds")
}
