package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/threatflux/depAuditGoMCP/internal/config"
	"github.com/threatflux/depAuditGoMCP/internal/mcp"
	"github.com/threatflux/depAuditGoMCP/internal/metrics"
	"github.com/threatflux/depAuditGoMCP/internal/middleware"
	"github.com/threatflux/depAuditGoMCP/internal/models"
)

// limiterSweepInterval is how often idle rate limit buckets are dropped
const limiterSweepInterval = time.Minute

// ToolHandler is the MCP surface exposed over HTTP
type ToolHandler interface {
	HTTPHandler() http.Handler
	Tools() []mcp.Tool
	Invoke(ctx context.Context, name string, req models.ProjectRequest) (string, interface{}, error)
}

// Server represents the API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	config     *config.Config
	logger     *logrus.Logger
	tools      ToolHandler
	metrics    *metrics.Metrics
	authMW     *middleware.AuthMiddleware
	limiter    *middleware.RateLimiter
	version    string
	startedAt  time.Time

	routesOnce sync.Once
	stopSweep  context.CancelFunc
	shutdownWg sync.WaitGroup
}

// ServerConfig contains the configuration for the API server
type ServerConfig struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Tools    ToolHandler
	Metrics  *metrics.Metrics
	Verifier middleware.TokenVerifier
	Version  string
}

// NewServer creates a new API server
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Tools == nil {
		return nil, errors.New("tool handler is required")
	}
	if cfg.Config.Auth.Enabled && cfg.Verifier == nil {
		return nil, errors.New("token verifier is required when auth is enabled")
	}

	server := &Server{
		config:    cfg.Config,
		logger:    cfg.Logger,
		tools:     cfg.Tools,
		metrics:   cfg.Metrics,
		version:   cfg.Version,
		startedAt: time.Now(),
	}
	if cfg.Config.Auth.Enabled {
		server.authMW = middleware.NewAuthMiddleware(cfg.Verifier)
	}
	if cfg.Config.RateLimit.Enabled {
		server.limiter = middleware.NewRateLimiter(cfg.Config.RateLimit.RPS, cfg.Config.RateLimit.Burst)
	}

	switch server.config.Server.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(server.config.Server.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(server.config.Server.TrustedProxies); err != nil {
		return nil, err
	}

	loggingOptions := []middleware.LoggingOption{middleware.WithSkipPaths("/api/v1/health", "/metrics")}
	if server.metrics != nil {
		loggingOptions = append(loggingOptions, middleware.WithRecorder(server.metrics))
	}

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.NewLoggingMiddleware(server.logger, loggingOptions...).Logger())
	router.Use(middleware.NewRecoveryMiddleware(server.logger).Recovery())

	server.router = router

	server.httpServer = &http.Server{
		Addr:              server.config.Address(),
		Handler:           server.router,
		ReadTimeout:       server.config.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      server.config.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	return server, nil
}

// Start binds the listen address and serves in the background
func (s *Server) Start() error {
	s.RegisterRoutes()

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.listener = listener

	sweepCtx, cancel := context.WithCancel(context.Background())
	s.stopSweep = cancel
	if s.limiter != nil {
		s.shutdownWg.Add(1)
		go s.sweepLimiter(sweepCtx)
	}

	s.shutdownWg.Add(1)
	go func() {
		defer s.shutdownWg.Done()
		s.logger.WithField("address", listener.Addr().String()).Info("Starting API server")
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("API server error")
		}
	}()

	return nil
}

// Addr returns the bound address once the server has started
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully shuts down the API server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")

	if s.stopSweep != nil {
		s.stopSweep()
	}

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Error during server shutdown")
	}

	s.shutdownWg.Wait()
	s.logger.Info("API server shutdown complete")
	return err
}

// Router returns the Gin router instance
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) sweepLimiter(ctx context.Context) {
	defer s.shutdownWg.Done()

	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.limiter.Cleanup(); removed > 0 {
				s.logger.WithField("removed", removed).Debug("Dropped idle rate limit buckets")
			}
		}
	}
}
