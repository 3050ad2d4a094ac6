package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/server/handler"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/server/middleware"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/service"
)

type nopBackend struct{}

func (nopBackend) Snapshot(context.Context) (domain.QuoteSnapshot, error) {
	return domain.QuoteSnapshot{}, nil
}

func (nopBackend) Scan(context.Context, float64, float64) (domain.ScanReport, error) {
	return domain.ScanReport{}, nil
}

func (nopBackend) Start(_ context.Context, req service.ExecuteRequest) (domain.TradeRecord, error) {
	return domain.TradeRecord{ID: "t", OpportunityID: req.OpportunityID}, nil
}

func (nopBackend) Kill(context.Context) (domain.ExecutorStatus, error) {
	return domain.ExecutorStatus{State: domain.ExecutorIdle}, nil
}

func (nopBackend) Status() domain.ExecutorStatus { return domain.ExecutorStatus{State: domain.ExecutorIdle} }

func (nopBackend) Get(context.Context) (domain.TradeSettings, error) { return domain.TradeSettings{}, nil }

func (nopBackend) Update(context.Context, service.SettingsUpdate) (domain.TradeSettings, error) {
	return domain.TradeSettings{}, nil
}

func (nopBackend) History(context.Context, int) ([]domain.TradeRecord, error) { return nil, nil }

func (nopBackend) DailyPnL(context.Context) (domain.DailyPnL, error) { return domain.DailyPnL{}, nil }

func (nopBackend) Stats(context.Context) (domain.TradeStats, error) { return domain.TradeStats{}, nil }

func (nopBackend) ExportCSV(context.Context, io.Writer) error { return nil }

func newTestServer() *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := nopBackend{}
	return NewServer(Config{
		CORSOrigins: []string{"http://dash.local"},
		Auth:        middleware.AuthConfig{APIKey: "k3y"},
	}, Handlers{
		Health:   handler.NewHealthHandler("serve", logger),
		Prices:   handler.NewPriceHandler(b, logger),
		Arb:      handler.NewArbHandler(b, logger),
		Trade:    handler.NewTradeHandler(b, logger),
		Settings: handler.NewSettingsHandler(b, logger),
		Ledger:   handler.NewLedgerHandler(b, logger),
		Wallet:   handler.NewWalletHandler("", "browser", nil, logger),
	}, nil, logger)
}

func TestRoutes(t *testing.T) {
	h := newTestServer().Handler()

	tests := []struct {
		method, path, body string
		key                bool
		want               int
	}{
		{method: http.MethodGet, path: "/api/health", want: http.StatusOK},
		{method: http.MethodGet, path: "/api/prices", want: http.StatusOK},
		{method: http.MethodGet, path: "/api/pairs", want: http.StatusOK},
		{method: http.MethodGet, path: "/api/arbitrage?tradeSize=100", want: http.StatusOK},
		{method: http.MethodGet, path: "/api/trade/status", want: http.StatusOK},
		{method: http.MethodGet, path: "/api/settings", want: http.StatusOK},
		{method: http.MethodGet, path: "/api/trades", want: http.StatusOK},
		{method: http.MethodGet, path: "/api/trades/export.csv", want: http.StatusOK},
		{method: http.MethodGet, path: "/api/pnl/daily", want: http.StatusOK},
		{method: http.MethodGet, path: "/api/stats", want: http.StatusOK},
		{method: http.MethodGet, path: "/api/wallet", want: http.StatusOK},

		{method: http.MethodPost, path: "/api/trade/execute", body: `{"opportunityId":"x"}`, want: http.StatusUnauthorized},
		{method: http.MethodPost, path: "/api/trade/execute", body: `{"opportunityId":"x"}`, key: true, want: http.StatusAccepted},
		{method: http.MethodPost, path: "/api/trade/kill", want: http.StatusUnauthorized},
		{method: http.MethodPost, path: "/api/trade/kill", key: true, want: http.StatusOK},
		{method: http.MethodPut, path: "/api/settings", body: `{}`, want: http.StatusUnauthorized},
		{method: http.MethodPut, path: "/api/settings", body: `{}`, key: true, want: http.StatusOK},

		{method: http.MethodDelete, path: "/api/settings", want: http.StatusMethodNotAllowed},
		{method: http.MethodGet, path: "/api/nope", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.key {
				req.Header.Set("X-API-Key", "k3y")
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestPreflightBypassesAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/trade/execute", nil)
	req.Header.Set("Origin", "http://dash.local")
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://dash.local", rec.Header().Get("Access-Control-Allow-Origin"))
}
