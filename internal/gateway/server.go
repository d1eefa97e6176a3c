// Package gateway provides the HTTP gateway server.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	v1 "sinhome/api/v1"
	"sinhome/internal/config"
	"sinhome/internal/gateway/handlers"
	"sinhome/internal/gateway/middleware"
	"sinhome/internal/gateway/websocket"
	"sinhome/pkg/logger"
)

// ShutdownTimeout bounds the graceful shutdown of the HTTP listener.
const ShutdownTimeout = 5 * time.Second

// Server represents the HTTP gateway server.
type Server struct {
	httpServer  *http.Server
	router      *mux.Router
	hub         *websocket.Hub
	watcher     *Watcher
	config      *config.Config
	rateLimiter *middleware.RateLimiter
	apiRouter   *v1.Router

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new gateway server serving the v1 API built from deps.
func NewServer(cfg *config.Config, hub *websocket.Hub, deps *v1.RouterDeps) *Server {
	router := mux.NewRouter()

	rl := cfg.Server.RateLimit
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerMinute: rl.RequestsPerMinute,
		Burst:             rl.Burst,
		Enabled:           rl.Enabled,
		CleanupInterval:   rl.CleanupInterval,
	})

	// Recovery -> Logging -> CORS -> RateLimit
	handler := middleware.Recovery(
		middleware.Logging(
			middleware.CORS(
				rateLimiter.RateLimit(router),
			),
		),
	)

	if deps == nil {
		deps = &v1.RouterDeps{}
	}
	if deps.Hub == nil {
		deps.Hub = hub
	}

	s := &Server{
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      handler,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 0, // completion calls are bounded by the request context
			IdleTimeout:  120 * time.Second,
		},
		router:      router,
		hub:         hub,
		config:      cfg,
		rateLimiter: rateLimiter,
		apiRouter:   v1.NewRouter(deps),
	}
	s.apiRouter.RegisterRoutes(router)
	return s
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	handlers.InitStartTime()

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	logger.Info().
		Str("addr", ln.Addr().String()).
		Msg("Starting gateway server")

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Run starts the server and shuts it down once ctx is done.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.Shutdown(context.Background()); err != nil {
			return err
		}
		return <-errCh
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info().Msg("Shutting down gateway server")

	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// Addr returns the bound address once the server listens, else the
// configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// IsReady returns true if the server is listening.
func (s *Server) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil
}

// SetWatcher sets the file watcher for hot reload.
func (s *Server) SetWatcher(w *Watcher) {
	s.watcher = w
}

// Router returns the underlying router for testing.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}
