package handler

import (
	"log/slog"
	"net/http"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// WalletHandler reports the configured trading wallet. Key material never
// leaves the wallet package.
type WalletHandler struct {
	address string
	signer  string
	balance domain.BalanceProvider
	logger  *slog.Logger
}

// NewWalletHandler creates a WalletHandler. An empty address means no server
// wallet is configured; balance may be nil.
func NewWalletHandler(address, signer string, balance domain.BalanceProvider, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{
		address: address,
		signer:  signer,
		balance: balance,
		logger:  logHandler(logger, "wallet"),
	}
}

// Info returns the wallet address and ADA balance.
// GET /api/wallet
func (h *WalletHandler) Info(w http.ResponseWriter, r *http.Request) {
	if h.address == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"configured": false,
			"signer":     h.signer,
			"error":      "server wallet not configured",
		})
		return
	}

	var balance float64
	if h.balance != nil {
		b, err := h.balance.Balance(r.Context())
		if err != nil {
			h.logger.WarnContext(r.Context(), "balance lookup failed", slog.String("error", err.Error()))
		} else {
			balance = b
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"configured":       true,
		"address":          h.address,
		"addressTruncated": truncateAddress(h.address),
		"balanceAda":       balance,
		"autoSign":         h.signer == "hot",
		"signer":           h.signer,
	})
}

func truncateAddress(addr string) string {
	if len(addr) <= 20 {
		return addr
	}
	return addr[:12] + "..." + addr[len(addr)-8:]
}
