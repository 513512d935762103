// Package server is the HTTP and WebSocket API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/candlesync/internal/domain"
	"github.com/alanyoungcy/candlesync/internal/metrics"
	"github.com/alanyoungcy/candlesync/internal/server/handler"
	"github.com/alanyoungcy/candlesync/internal/server/middleware"
	"github.com/alanyoungcy/candlesync/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// RateLimit requests per RateWindow per client IP. Zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers. Nil Arb disables the arbitrage
// routes.
type Handlers struct {
	Health   *handler.HealthHandler
	Candles  *handler.CandleHandler
	Arb      *handler.ArbHandler
	Pipeline *handler.PipelineHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and wraps them in logging, CORS and, when a
// limiter is given, per-IP rate limiting. wsHub and limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/candles", handlers.Candles.ListCandles)
	if handlers.Arb != nil {
		mux.HandleFunc("GET /api/arbitrage/{symbol}", handlers.Arb.Check)
		mux.HandleFunc("GET /api/arbitrage/{symbol}/latest", handlers.Arb.Latest)
	}
	mux.HandleFunc("POST /api/pipeline/trigger", handlers.Pipeline.TriggerPipeline)
	mux.Handle("GET /metrics", metrics.Handler())
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
