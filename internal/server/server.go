package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/server/handler"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/server/middleware"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// Auth guards the endpoints that move funds or change settings.
	Auth middleware.AuthConfig
	// Limiter and RateLimit cap requests per client IP per minute. A nil
	// limiter disables rate limiting.
	Limiter   domain.RateLimiter
	RateLimit int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Prices   *handler.PriceHandler
	Arb      *handler.ArbHandler
	Trade    *handler.TradeHandler
	Settings *handler.SettingsHandler
	Ledger   *handler.LedgerHandler
	Wallet   *handler.WalletHandler
}

// Server is the HTTP + WebSocket API for dashboards.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	mux := http.NewServeMux()
	protected := middleware.Auth(cfg.Auth)

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/prices", handlers.Prices.ListPrices)
	mux.HandleFunc("GET /api/pairs", handlers.Prices.ListPairs)
	mux.HandleFunc("GET /api/arbitrage", handlers.Arb.Scan)

	mux.Handle("POST /api/trade/execute", protected(http.HandlerFunc(handlers.Trade.Execute)))
	mux.Handle("POST /api/trade/kill", protected(http.HandlerFunc(handlers.Trade.Kill)))
	mux.HandleFunc("GET /api/trade/status", handlers.Trade.Status)

	mux.HandleFunc("GET /api/settings", handlers.Settings.GetSettings)
	mux.Handle("PUT /api/settings", protected(http.HandlerFunc(handlers.Settings.UpdateSettings)))

	mux.HandleFunc("GET /api/trades", handlers.Ledger.ListTrades)
	mux.HandleFunc("GET /api/trades/export.csv", handlers.Ledger.ExportCSV)
	mux.HandleFunc("GET /api/pnl/daily", handlers.Ledger.DailyPnL)
	mux.HandleFunc("GET /api/stats", handlers.Ledger.Stats)

	mux.HandleFunc("GET /api/wallet", handlers.Wallet.Info)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, time.Minute, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server: starting", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
