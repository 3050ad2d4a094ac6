package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// Ledger is the read side of the trade ledger.
type Ledger interface {
	History(ctx context.Context, limit int) ([]domain.TradeRecord, error)
	DailyPnL(ctx context.Context) (domain.DailyPnL, error)
	Stats(ctx context.Context) (domain.TradeStats, error)
	ExportCSV(ctx context.Context, w io.Writer) error
}

// LedgerHandler serves trade history and P&L.
type LedgerHandler struct {
	ledger Ledger
	logger *slog.Logger
	now    func() time.Time
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(ledger Ledger, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, logger: logHandler(logger, "ledger"), now: time.Now}
}

// ListTrades returns the most recent trades, newest first.
// GET /api/trades?limit=
func (h *LedgerHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	recs, err := h.ledger.History(r.Context(), queryLimit(r, 50, 500))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if recs == nil {
		recs = []domain.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": recs, "count": len(recs)})
}

// ExportCSV streams the full retained history as a CSV attachment.
// GET /api/trades/export.csv
func (h *LedgerHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("trades-%s.csv", h.now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	if err := h.ledger.ExportCSV(r.Context(), w); err != nil {
		// Headers are already out.
		h.logger.ErrorContext(r.Context(), "csv export failed", slog.String("error", err.Error()))
	}
}

// DailyPnL returns realised profit and loss for the current local day.
// GET /api/pnl/daily
func (h *LedgerHandler) DailyPnL(w http.ResponseWriter, r *http.Request) {
	pnl, err := h.ledger.DailyPnL(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pnl)
}

// Stats returns lifetime aggregates over the retained history.
// GET /api/stats
func (h *LedgerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
