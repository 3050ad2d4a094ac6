package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/service"
)

// SettingsManager reads and updates the operator's trade settings.
type SettingsManager interface {
	Get(ctx context.Context) (domain.TradeSettings, error)
	Update(ctx context.Context, u service.SettingsUpdate) (domain.TradeSettings, error)
}

// SettingsHandler serves the trade settings.
type SettingsHandler struct {
	settings SettingsManager
	logger   *slog.Logger
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(settings SettingsManager, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, logger: logHandler(logger, "settings")}
}

// GetSettings returns the effective settings.
// GET /api/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateSettings applies a partial update. Only the fields present in the
// body change.
// PUT /api/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var u service.SettingsUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	s, err := h.settings.Update(r.Context(), u)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.logger.InfoContext(r.Context(), "settings updated",
		slog.Float64("trade_size", s.TradeSize),
		slog.Float64("min_spread", s.MinSpreadPct),
		slog.Bool("dry_run", s.DryRun),
		slog.Bool("auto_trade", s.AutoTrade),
	)
	writeJSON(w, http.StatusOK, s)
}
