// Package gateway provides the HTTP and WebSocket server the course
// website talks to.
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
	"github.com/rs/zerolog"

	"runbox/internal/catalog"
	"runbox/internal/config"
	"runbox/internal/gateway/handlers"
	"runbox/internal/gateway/middleware"
	"runbox/internal/gateway/websocket"
	"runbox/internal/metrics"
)

// Runner executes exercise code and reports on its VM pool.
type Runner interface {
	handlers.CodeRunner
	handlers.PoolReporter
}

// Deps are the services the gateway exposes. Progress and Metrics may be
// nil, in which case their routes are not mounted.
type Deps struct {
	Runner   Runner
	Catalog  *catalog.Store
	Progress handlers.ProgressStore
	Metrics  *metrics.Metrics
	Version  string
}

// Server represents the HTTP gateway server.
type Server struct {
	httpServer  *http.Server
	router      *mux.Router
	hub         *websocket.Hub
	config      config.GatewayConfig
	deps        Deps
	rateLimiter *middleware.RateLimiter
	logger      zerolog.Logger

	mu         sync.Mutex
	cancelHub  context.CancelFunc
	hubStopped chan struct{}
}

// NewServer creates a new gateway server.
func NewServer(cfg config.GatewayConfig, deps Deps, logger zerolog.Logger) *Server {
	router := mux.NewRouter()
	router.Use(middleware.RouteLabel)

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigFrom(cfg.RateLimit))

	var observe middleware.RequestObserver
	if deps.Metrics != nil {
		observe = deps.Metrics.ObserveRequest
	}

	// Apply middleware chain: Recovery -> Logging -> CORS -> RateLimit
	handler := middleware.Recovery(logger)(
		middleware.Logging(logger, observe)(
			middleware.CORSWithOrigins(cfg.AllowedOrigins)(
				rateLimiter.RateLimit(router),
			),
		),
	)

	s := &Server{
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		router:      router,
		hub:         websocket.NewHub(deps.Runner, logger, websocket.WithAllowedOrigins(cfg.AllowedOrigins)),
		config:      cfg,
		deps:        deps,
		rateLimiter: rateLimiter,
		logger:      logger,
	}

	if deps.Catalog != nil {
		deps.Catalog.Subscribe(func(*catalog.Manifest) {
			if err := s.hub.BroadcastReload(); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to broadcast catalog reload")
			}
		})
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the server routes.
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", handlers.HealthHandler(s.deps.Version, s.deps.Runner)).Methods(http.MethodGet)
	api.HandleFunc("/run", handlers.RunHandler(s.deps.Runner)).Methods(http.MethodPost)

	if s.deps.Catalog != nil {
		api.HandleFunc("/catalog", handlers.CatalogHandler(s.deps.Catalog)).Methods(http.MethodGet)
		api.HandleFunc("/modules/{module}", handlers.ModuleHandler(s.deps.Catalog)).Methods(http.MethodGet)
		api.HandleFunc("/modules/{module}/exercises/{exercise}/adjacent", handlers.AdjacentHandler(s.deps.Catalog)).Methods(http.MethodGet)
	}

	if s.deps.Progress != nil {
		handlers.NewProgressHandlers(s.deps.Progress).Register(api)
	}

	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	// WebSocket endpoint
	s.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.hub, w, r)
	})

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "no route for "+r.URL.Path)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.SendError(w, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, r.Method+" is not allowed on "+r.URL.Path)
	})
}

// startHub runs the WebSocket hub until Shutdown.
func (s *Server) startHub() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelHub != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelHub = cancel
	s.hubStopped = make(chan struct{})
	go func() {
		defer close(s.hubStopped)
		s.hub.Run(ctx)
	}()
}

// Start starts the HTTP server on the configured address. It blocks until
// the server stops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. It blocks until the server stops.
func (s *Server) Serve(ln net.Listener) error {
	handlers.InitStartTime()
	s.startHub()

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Msg("Starting gateway server")

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down gateway server")

	s.mu.Lock()
	cancel, stopped := s.cancelHub, s.hubStopped
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-stopped
	}

	s.rateLimiter.Stop()

	// Create shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 5*time.Second)
	defer cancelShutdown()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	return nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Router returns the underlying router for testing.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}
