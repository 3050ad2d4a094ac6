package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// Settings bounds enforced on every update.
const (
	MinTradeSize      = 10
	MinSpreadFloor    = 1
	MinSpreadCeiling  = 10
	MinSlippage       = 0.5
	MaxSlippage       = 5
	MinCooldownSecond = 30
	MaxCooldownSecond = 300
)

// SettingsUpdate is a partial settings change. Nil fields keep their
// current value.
type SettingsUpdate struct {
	TradeSize       *float64          `json:"tradeSize,omitempty"`
	MinSpreadPct    *float64          `json:"minSpread,omitempty"`
	MaxSlippagePct  *float64          `json:"maxSlippage,omitempty"`
	RiskLevel       *domain.RiskLevel `json:"riskLevel,omitempty"`
	DailyLossLimit  *float64          `json:"dailyLossLimit,omitempty"`
	DryRun          *bool             `json:"dryRun,omitempty"`
	AutoTrade       *bool             `json:"autoTrade,omitempty"`
	CooldownSeconds *int              `json:"cooldownSeconds,omitempty"`
}

// SettingsService owns the persisted trade settings document.
type SettingsService struct {
	store    domain.SettingsStore
	audit    domain.AuditStore
	defaults domain.TradeSettings
	maxTrade float64
	logger   *slog.Logger

	// mu serialises read-modify-write cycles.
	mu sync.Mutex
}

// NewSettingsService creates a SettingsService. audit may be nil.
func NewSettingsService(
	store domain.SettingsStore,
	audit domain.AuditStore,
	defaults domain.TradeSettings,
	maxTradeSize float64,
	logger *slog.Logger,
) *SettingsService {
	return &SettingsService{
		store:    store,
		audit:    audit,
		defaults: defaults,
		maxTrade: maxTradeSize,
		logger:   logger.With(slog.String("component", "settings_service")),
	}
}

// Get returns the stored settings with unset fields filled from the
// defaults. The defaults are returned until the first save.
func (s *SettingsService) Get(ctx context.Context) (domain.TradeSettings, error) {
	stored, err := s.store.Get(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return s.defaults, nil
	}
	if err != nil {
		return domain.TradeSettings{}, fmt.Errorf("settings_service: get: %w", err)
	}
	return s.merge(stored), nil
}

func (s *SettingsService) merge(stored domain.TradeSettings) domain.TradeSettings {
	d := s.defaults
	if stored.TradeSize == 0 {
		stored.TradeSize = d.TradeSize
	}
	if stored.MinSpreadPct == 0 {
		stored.MinSpreadPct = d.MinSpreadPct
	}
	if stored.MaxSlippagePct == 0 {
		stored.MaxSlippagePct = d.MaxSlippagePct
	}
	if stored.RiskLevel == "" {
		stored.RiskLevel = d.RiskLevel
	}
	if stored.DailyLossLimit == 0 {
		stored.DailyLossLimit = d.DailyLossLimit
	}
	if stored.CooldownSeconds == 0 {
		stored.CooldownSeconds = d.CooldownSeconds
	}
	return stored
}

// Update applies u on top of the current settings, validates the result and
// saves it. Choosing a risk level without a spread applies the level's
// preset spread.
func (s *SettingsService) Update(ctx context.Context, u SettingsUpdate) (domain.TradeSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.Get(ctx)
	if err != nil {
		return domain.TradeSettings{}, err
	}
	next := apply(cur, u)
	if err := ValidateSettings(next, s.maxTrade); err != nil {
		return domain.TradeSettings{}, err
	}
	if err := s.store.Save(ctx, next); err != nil {
		return domain.TradeSettings{}, fmt.Errorf("settings_service: save: %w", err)
	}

	s.logAudit(ctx, "settings.updated", map[string]any{
		"tradeSize":  next.TradeSize,
		"minSpread":  next.MinSpreadPct,
		"riskLevel":  string(next.RiskLevel),
		"dryRun":     next.DryRun,
		"autoTrade":  next.AutoTrade,
		"dailyLimit": next.DailyLossLimit,
	})
	s.logger.InfoContext(ctx, "settings updated",
		slog.Float64("trade_size", next.TradeSize),
		slog.Float64("min_spread", next.MinSpreadPct),
		slog.Bool("dry_run", next.DryRun),
		slog.Bool("auto_trade", next.AutoTrade),
	)
	return next, nil
}

// SetAutoTrade turns auto-trading on or off.
func (s *SettingsService) SetAutoTrade(ctx context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.Get(ctx)
	if err != nil {
		return err
	}
	if cur.AutoTrade == on {
		return nil
	}
	cur.AutoTrade = on
	if err := s.store.Save(ctx, cur); err != nil {
		return fmt.Errorf("settings_service: set auto trade: %w", err)
	}
	s.logAudit(ctx, "settings.auto_trade", map[string]any{"on": on})
	return nil
}

func (s *SettingsService) logAudit(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

func apply(cur domain.TradeSettings, u SettingsUpdate) domain.TradeSettings {
	if u.TradeSize != nil {
		cur.TradeSize = *u.TradeSize
	}
	if u.RiskLevel != nil {
		cur.RiskLevel = *u.RiskLevel
		if u.MinSpreadPct == nil {
			cur.MinSpreadPct = cur.RiskLevel.MinSpreadFor()
		}
	}
	if u.MinSpreadPct != nil {
		cur.MinSpreadPct = *u.MinSpreadPct
	}
	if u.MaxSlippagePct != nil {
		cur.MaxSlippagePct = *u.MaxSlippagePct
	}
	if u.DailyLossLimit != nil {
		cur.DailyLossLimit = *u.DailyLossLimit
	}
	if u.DryRun != nil {
		cur.DryRun = *u.DryRun
	}
	if u.AutoTrade != nil {
		cur.AutoTrade = *u.AutoTrade
	}
	if u.CooldownSeconds != nil {
		cur.CooldownSeconds = *u.CooldownSeconds
	}
	return cur
}

// ValidateSettings reports every out-of-range field in one error wrapping
// domain.ErrInvalidInput.
func ValidateSettings(s domain.TradeSettings, maxTradeSize float64) error {
	var problems []string
	if s.TradeSize < MinTradeSize || s.TradeSize > maxTradeSize {
		problems = append(problems, fmt.Sprintf("tradeSize %.2f out of range [%d, %.0f]", s.TradeSize, MinTradeSize, maxTradeSize))
	}
	if s.MinSpreadPct < MinSpreadFloor || s.MinSpreadPct > MinSpreadCeiling {
		problems = append(problems, fmt.Sprintf("minSpread %.2f out of range [%d, %d]", s.MinSpreadPct, MinSpreadFloor, MinSpreadCeiling))
	}
	if s.MaxSlippagePct < MinSlippage || s.MaxSlippagePct > MaxSlippage {
		problems = append(problems, fmt.Sprintf("maxSlippage %.2f out of range [%.1f, %d]", s.MaxSlippagePct, MinSlippage, MaxSlippage))
	}
	if !s.RiskLevel.Valid() {
		problems = append(problems, fmt.Sprintf("unknown riskLevel %q", s.RiskLevel))
	}
	if s.DailyLossLimit <= 0 {
		problems = append(problems, "dailyLossLimit must be positive")
	}
	if s.CooldownSeconds < MinCooldownSecond || s.CooldownSeconds > MaxCooldownSecond {
		problems = append(problems, fmt.Sprintf("cooldownSeconds %d out of range [%d, %d]", s.CooldownSeconds, MinCooldownSecond, MaxCooldownSecond))
	}
	if len(problems) > 0 {
		return fmt.Errorf("settings: %s: %w", strings.Join(problems, "; "), domain.ErrInvalidInput)
	}
	return nil
}
