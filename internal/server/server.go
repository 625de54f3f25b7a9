package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ciblhq/tradeduel/internal/domain"
	"github.com/ciblhq/tradeduel/internal/server/handler"
	"github.com/ciblhq/tradeduel/internal/server/middleware"
	"github.com/ciblhq/tradeduel/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	GatewayKey  string // if empty, gateway authentication is disabled

	// RateLimit is the per-IP request budget per RateWindow; zero disables
	// the transport-level limiter.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Archives may
// be nil when no blob store is configured.
type Handlers struct {
	Health     *handler.HealthHandler
	Challenges *handler.ChallengeHandler
	Chat       *handler.ChatHandler
	Prices     *handler.PriceHandler
	Archives   *handler.ArchiveHandler
}

// Server is the HTTP + WebSocket API for the trading duel lobby.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (CORS, logging, auth, rate limiting) applied.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check. Exempt from gateway auth so probes reach it bare.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Challenge lifecycle.
	mux.HandleFunc("GET /api/challenges", handlers.Challenges.ListChallenges)
	mux.HandleFunc("POST /api/challenges", handlers.Challenges.CreateChallenge)
	mux.HandleFunc("GET /api/challenges/{id}", handlers.Challenges.GetChallenge)
	mux.HandleFunc("POST /api/challenges/{id}/claim", handlers.Challenges.ClaimChallenge)
	mux.HandleFunc("POST /api/challenges/{id}/prices", handlers.Challenges.SubmitPrice)
	mux.HandleFunc("POST /api/challenges/{id}/settle", handlers.Challenges.SettleChallenge)
	mux.HandleFunc("DELETE /api/challenges/{id}", handlers.Challenges.CancelChallenge)

	// Lobby chat.
	mux.HandleFunc("GET /api/chat", handlers.Chat.ListMessages)
	mux.HandleFunc("POST /api/chat", handlers.Chat.PostMessage)

	// Advisory quotes.
	mux.HandleFunc("GET /api/prices/{pair}", handlers.Prices.GetQuote)

	// Cold-storage archive listing (operator endpoint).
	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archives.ListArchives)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.GatewayAuth(cfg.GatewayKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
