package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/server/handler"
	"github.com/alanyoungcy/binaryoptions/internal/server/middleware"
	"github.com/alanyoungcy/binaryoptions/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	JWTSecret   string
	RateLimit   int // requests per RateWindow per client; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Orders  *handler.BinaryOrderHandler
	Markets *handler.MarketHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers the routes and builds the middleware chain:
// CORS, then auth, then rate limiting and request logging.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	mux.HandleFunc("POST /api/exchange/binary/order", handlers.Orders.CreateOrder)
	mux.HandleFunc("GET /api/exchange/binary/order", handlers.Orders.ListOrders)
	mux.HandleFunc("GET /api/exchange/binary/order/{id}", handlers.Orders.GetOrder)
	mux.HandleFunc("DELETE /api/exchange/binary/order/{id}", handlers.Orders.CancelOrder)

	if handlers.Markets != nil {
		mux.HandleFunc("GET /api/exchange/binary/market", handlers.Markets.ListMarkets)
		mux.HandleFunc("GET /api/exchange/binary/market/{currency}/{pair}", handlers.Markets.GetMarket)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Auth([]byte(cfg.JWTSecret), "/api/health")(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
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
