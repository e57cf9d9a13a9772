package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawinstinctart/rawauditpro/internal/logger"
)

// Server is an HTTP server with lifecycle management.
type Server struct {
	router *gin.Engine
	server *http.Server
	log    logger.Logger
	config *Config
}

// Builder assembles a Server.
type Builder struct {
	config  *Config
	log     logger.Logger
	routes  []func(*gin.Engine)
	checks  map[string]HealthChecker
	metrics http.Handler
}

// NewBuilder starts a builder for the named service.
func NewBuilder(serviceName string, port int) *Builder {
	return &Builder{
		config: &Config{ServiceName: serviceName, Port: port},
		checks: make(map[string]HealthChecker),
	}
}

func (b *Builder) WithLogger(log logger.Logger) *Builder {
	b.log = log
	return b
}

func (b *Builder) WithDebug(debug bool) *Builder {
	b.config.Debug = debug
	return b
}

func (b *Builder) WithVersion(version string) *Builder {
	b.config.ServiceVersion = version
	return b
}

func (b *Builder) WithTimeouts(read, write, idle time.Duration) *Builder {
	b.config.ReadTimeout = read
	b.config.WriteTimeout = write
	b.config.IdleTimeout = idle
	return b
}

// WithHealthCheck adds a named check to GET /health.
func (b *Builder) WithHealthCheck(name string, check HealthChecker) *Builder {
	b.checks[name] = check
	return b
}

// WithMetrics serves h at GET /metrics.
func (b *Builder) WithMetrics(h http.Handler) *Builder {
	b.metrics = h
	return b
}

// WithRoutes registers service routes. It may be called more than once.
func (b *Builder) WithRoutes(setup func(*gin.Engine)) *Builder {
	b.routes = append(b.routes, setup)
	return b
}

// Build creates the server.
func (b *Builder) Build() *Server {
	if b.log == nil {
		b.log = logger.NewNop()
	}
	cfg := b.config
	cfg.SetDefaults()

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RecoveryMiddleware(b.log))
	router.Use(RequestIDLoggerMiddleware(b.log))
	router.Use(LoggerMiddleware())

	registerHealthRoutes(router, cfg, time.Now(), b.checks)
	if b.metrics != nil {
		router.GET("/metrics", gin.WrapH(b.metrics))
	}
	for _, setup := range b.routes {
		setup(router)
	}

	return &Server{
		router: router,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		log:    b.log.With(logger.Component("http")),
		config: cfg,
	}
}

// Router exposes the engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Addr() string {
	return s.server.Addr
}

// Start blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		logger.String("address", s.server.Addr),
		logger.String("service", s.config.ServiceName),
		logger.String("version", s.config.ServiceVersion),
	)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync runs Start in a goroutine. The channel receives a start
// failure, if any, and is closed when the server stops.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown stops accepting connections and waits up to the configured
// shutdown timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server", logger.Duration("timeout", s.config.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.log.Info("HTTP server stopped gracefully")
	return nil
}
