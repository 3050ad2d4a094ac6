package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// Query defaults for on-demand scans.
const (
	defaultTradeSize = 1000
	defaultMinSpread = 0
)

// Scanner runs the opportunity engine on demand.
type Scanner interface {
	Scan(ctx context.Context, tradeSize, minSpreadPct float64) (domain.ScanReport, error)
}

// ArbHandler serves on-demand arbitrage scans.
type ArbHandler struct {
	scanner Scanner
	logger  *slog.Logger
}

// NewArbHandler creates an ArbHandler.
func NewArbHandler(scanner Scanner, logger *slog.Logger) *ArbHandler {
	return &ArbHandler{scanner: scanner, logger: logHandler(logger, "arbitrage")}
}

// Scan runs both engine operations over the current snapshot.
// GET /api/arbitrage?tradeSize=&minSpread=
func (h *ArbHandler) Scan(w http.ResponseWriter, r *http.Request) {
	tradeSize, err := queryFloat(r, "tradeSize", defaultTradeSize)
	if err == nil && tradeSize <= 0 {
		err = fmt.Errorf("%w: tradeSize must be positive", domain.ErrInvalidInput)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	minSpread, err := queryFloat(r, "minSpread", defaultMinSpread)
	if err == nil && minSpread < 0 {
		err = fmt.Errorf("%w: minSpread must not be negative", domain.ErrInvalidInput)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	report, err := h.scanner.Scan(r.Context(), tradeSize, minSpread)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if report.Opportunities == nil {
		report.Opportunities = []domain.Opportunity{}
	}
	if report.Triangular == nil {
		report.Triangular = []domain.TriangularOpportunity{}
	}
	writeJSON(w, http.StatusOK, report)
}
