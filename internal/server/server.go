// Package server is the HTTP and WebSocket front of the settlement engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/wagerbook/internal/domain"
	"github.com/alanyoungcy/wagerbook/internal/server/handler"
	"github.com/alanyoungcy/wagerbook/internal/server/middleware"
	"github.com/alanyoungcy/wagerbook/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit requests per RateWindow per caller; zero disables limiting.
	RateLimit  int
	RateWindow time.Duration

	IdempotencyTTL time.Duration

	// MetricsPath is where Handlers.Metrics is mounted. Defaults to /metrics.
	MetricsPath string
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Wagers    *handler.WagerHandler
	Positions *handler.PositionHandler
	Feeds     *handler.FeedHandler
	Metrics   http.Handler // optional
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// Deps are the optional collaborators of the middleware chain.
type Deps struct {
	Limiter  domain.RateLimiter
	Observer middleware.HTTPObserver
}

// NewServer creates a Server with all routes registered and the middleware
// chain applied: CORS, logging, auth, rate limiting, idempotency.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, deps Deps, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, hub, deps, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed, middleware-wrapped handler. It is split from
// NewServer so tests can drive it through httptest.
func NewHandler(cfg Config, handlers Handlers, hub *ws.Hub, deps Deps, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("PUT /api/markets/{id}/oracle", handlers.Markets.UpdateOracleFeed)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Markets.ResolveMarket)

	mux.HandleFunc("POST /api/markets/{id}/wagers", handlers.Wagers.PlaceWager)
	mux.HandleFunc("POST /api/markets/{id}/claim", handlers.Wagers.ClaimWinnings)
	mux.HandleFunc("POST /api/markets/{id}/fees/collect", handlers.Wagers.CollectFees)

	mux.HandleFunc("GET /api/markets/{id}/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/markets/{id}/positions/{user}", handlers.Positions.GetPosition)

	mux.HandleFunc("POST /api/feeds/{feedID}/readings", handlers.Feeds.PublishReading)
	mux.HandleFunc("GET /api/feeds/{feedID}", handlers.Feeds.LatestReading)

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}
	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if handlers.Metrics != nil {
		mux.Handle("GET "+metricsPath, handlers.Metrics)
	}

	ttl := cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	window := cfg.RateWindow
	if window <= 0 {
		window = time.Second
	}

	// Applied innermost first.
	var h http.Handler = mux
	h = middleware.NewIdempotency(ttl).Middleware(h)
	h = middleware.RateLimit(deps.Limiter, cfg.RateLimit, window, logger)(h)
	h = middleware.Auth(cfg.APIKey, "/api/health", metricsPath)(h)
	h = middleware.Logging(logger, deps.Observer)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
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
