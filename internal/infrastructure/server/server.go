package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/scriptvm/internal/api/http"
	"github.com/GriffinCanCode/scriptvm/internal/api/middleware"
	"github.com/GriffinCanCode/scriptvm/internal/bundle"
	"github.com/GriffinCanCode/scriptvm/internal/evaluator"
	"github.com/GriffinCanCode/scriptvm/internal/infrastructure/config"
	"github.com/GriffinCanCode/scriptvm/internal/infrastructure/logging"
	"github.com/GriffinCanCode/scriptvm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scriptvm/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/scriptvm/internal/sandbox"
)

// compressMinSize is the smallest response worth gzipping
const compressMinSize = 1024

// Server wraps the HTTP server and dependencies
type Server struct {
	router    *gin.Engine
	handler   http.Handler
	http      *http.Server
	evaluator *evaluator.Service
	logger    *logging.Logger
	config    *config.Config
	metrics   *monitoring.Metrics
	tracer    *tracing.Tracer
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		logger = logging.NewDefault()
		logger.Warn("Invalid log level, using default", zap.String("level", cfg.Logging.Level))
	}

	logger.Info("Initializing scriptvm server",
		zap.String("port", cfg.Server.Port),
		zap.String("backend", cfg.Sandbox.Backend),
		zap.Int64("memory_mb", cfg.Sandbox.MemoryLimitMB),
		zap.Duration("timeout", cfg.Sandbox.Timeout()),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics(nil)

	bundles := bundle.NewRegistry(logger.Logger)
	if cfg.Sandbox.BundleDir != "" {
		n, err := bundles.LoadDir(cfg.Sandbox.BundleDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load bundles: %w", err)
		}
		logger.Info("Loaded dependency bundles",
			zap.String("dir", cfg.Sandbox.BundleDir),
			zap.Int("count", n))
	}

	svc := evaluator.New(evaluator.Config{
		Backend:          sandbox.Backend(cfg.Sandbox.Backend),
		MemoryLimitMB:    cfg.Sandbox.MemoryLimitMB,
		Timeout:          cfg.Sandbox.Timeout(),
		PoolSize:         cfg.Sandbox.PoolSize,
		MaxEngines:       cfg.Sandbox.MaxEngines,
		BreakerThreshold: cfg.Sandbox.BreakerThreshold,
		BreakerCooldown:  cfg.Sandbox.BreakerCooldown,
	}, bundles, metrics, logger.Logger)

	tracer := tracing.New("scriptvm", logger.Named("trace"))
	svc.SetTracer(tracer)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(middleware.AccessLog(logger.Logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	// Register routes
	handlers := apihttp.NewHandlers(svc, metrics, logger.Logger, cfg.Server.MaxBodyBytes)
	handlers.Register(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	handler, err := middleware.Compress(router, compressMinSize)
	if err != nil {
		svc.Close()
		tracer.Close()
		return nil, err
	}

	logger.Info("Server initialized successfully")

	return &Server{
		router:    router,
		handler:   handler,
		evaluator: svc,
		logger:    logger,
		config:    cfg,
		metrics:   metrics,
		tracer:    tracer,
	}, nil
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
}

// Run serves HTTP until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Run() error {
	s.http = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, drains in-flight ones, then disposes
// every engine.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := s.evaluator.Close(); err != nil {
		errs = append(errs, fmt.Errorf("evaluator close: %w", err))
	}
	s.tracer.Close()

	// Sync logger before exit
	_ = s.logger.Sync()
	return errors.Join(errs...)
}
