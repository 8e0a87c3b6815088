package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/alanyoungcy/perpdepth/internal/server/handler"
	"github.com/alanyoungcy/perpdepth/internal/server/middleware"
	"github.com/alanyoungcy/perpdepth/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow per client; 0 disables
	RateWindow  time.Duration
	// Limiter backs the rate limit. Nil uses an in-process limiter.
	Limiter domain.RateLimiter
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health       *handler.HealthHandler
	Book         *handler.BookHandler
	Subscription *handler.SubscriptionHandler
	Quote        *handler.QuoteHandler
	Asset        *handler.AssetHandler
}

// Server is the HTTP + WebSocket API in front of the depth engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (rate limit, auth, logging, CORS) and attaches the
// WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	routes(mux, handlers, wsHub)

	// Build the middleware chain; the last applied runs first.
	var h http.Handler = mux

	if cfg.RateLimit > 0 {
		limiter := cfg.Limiter
		if limiter == nil {
			limiter = middleware.NewLocalLimiter()
		}
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window, logger)(h)
	}

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
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

func routes(mux *http.ServeMux, handlers Handlers, wsHub *ws.Hub) {
	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Book and tape.
	mux.HandleFunc("GET /api/book", handlers.Book.GetBook)
	mux.HandleFunc("GET /api/trades", handlers.Book.GetTrades)

	// Active subscription.
	mux.HandleFunc("GET /api/subscription", handlers.Subscription.GetSubscription)
	mux.HandleFunc("PUT /api/subscription", handlers.Subscription.PutSubscription)

	// Calculators.
	mux.HandleFunc("POST /api/quote", handlers.Quote.PostQuote)
	mux.HandleFunc("POST /api/tpsl", handlers.Quote.PostTpsl)

	// Market metadata.
	if handlers.Asset != nil {
		mux.HandleFunc("GET /api/assets", handlers.Asset.ListAssets)
		mux.HandleFunc("GET /api/assets/{coin}", handlers.Asset.GetAsset)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
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
