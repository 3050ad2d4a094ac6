package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/service"
)

// TradeRunner starts trades and controls the executor.
type TradeRunner interface {
	Start(ctx context.Context, req service.ExecuteRequest) (domain.TradeRecord, error)
	Kill(ctx context.Context) (domain.ExecutorStatus, error)
	Status() domain.ExecutorStatus
}

// TradeHandler serves trade execution and the kill switch.
type TradeHandler struct {
	trades TradeRunner
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeRunner, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, logger: logHandler(logger, "trade")}
}

// Execute admits a trade and runs it in the background. Progress is pushed
// over the WebSocket; the response carries the pending record.
// POST /api/trade/execute
func (h *TradeHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req service.ExecuteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	rec, err := h.trades.Start(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "trade accepted",
		slog.String("trade_id", rec.ID),
		slog.String("opportunity_id", rec.OpportunityID),
		slog.Bool("dry_run", rec.DryRun),
	)
	writeJSON(w, http.StatusAccepted, rec)
}

// Kill engages the kill switch.
// POST /api/trade/kill
func (h *TradeHandler) Kill(w http.ResponseWriter, r *http.Request) {
	status, err := h.trades.Kill(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.logger.WarnContext(r.Context(), "kill switch engaged via api")
	writeJSON(w, http.StatusOK, status)
}

// Status reports the executor state.
// GET /api/trade/status
func (h *TradeHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.trades.Status())
}
