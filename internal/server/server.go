// Package server
//
// @title IngresoUNAM Identity API
// @version 1.0
// @description Accounts, sessions, feedback and admin listings for IngresoUNAM
// @host localhost:8000
// @BasePath /
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ingresounam/ingreso/internal/audit"
	"github.com/ingresounam/ingreso/internal/auth"
	"github.com/ingresounam/ingreso/internal/config"
	"github.com/ingresounam/ingreso/internal/metrics"
	"github.com/ingresounam/ingreso/internal/models"
	"github.com/ingresounam/ingreso/internal/ratelimit"
)

// Enqueuer submits background tasks; satisfied by *asynq.Client
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Deps are the collaborators a Server needs beyond its database
type Deps struct {
	Enqueuer Enqueuer          // nil disables background notifications
	Limiter  ratelimit.Limiter // nil means an in-process limiter
	Audit    audit.Logger      // nil means no audit trail
	Registry *prometheus.Registry
}

// Server represents the HTTP server
type Server struct {
	router   *gin.Engine
	db       *gorm.DB
	config   *config.Config
	logger   zerolog.Logger
	enqueuer Enqueuer
	limiter  ratelimit.Limiter
	audit    audit.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	closers  []func() error
	version  string
}

// New creates a new server instance wired to the configured infrastructure
func New(cfg *config.Config, zlog zerolog.Logger, version string) (*Server, error) {
	// Initialize database with production settings
	db, err := initDatabase(cfg, zlog)
	if err != nil {
		return nil, err
	}

	var deps Deps
	var closers []func() error

	if cfg.Redis.Enabled() {
		// Initialize Asynq client for enqueueing tasks
		asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Address})
		deps.Enqueuer = asynqClient
		closers = append(closers, asynqClient.Close)

		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address})
		deps.Limiter = ratelimit.NewRedisLimiter(rdb, nil, zlog)
		closers = append(closers, rdb.Close)
	} else {
		zlog.Info().Msg("REDIS_ADDRESS not set - background tasks disabled, rate limits are per process")
	}

	if cfg.Mongo.URL != "" {
		mongoLogger, err := audit.NewMongoLogger(context.Background(), cfg.Mongo.URL, cfg.Mongo.Database)
		if err != nil {
			zlog.Warn().Err(err).Msg("Failed to connect audit log - auth events will not be recorded")
		} else {
			async := audit.NewAsync(mongoLogger, zlog, 256)
			deps.Audit = async
			closers = append(closers, func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return async.Close(ctx)
			})
		}
	}

	s, err := newServer(cfg, db, zlog, deps, version)
	if err != nil {
		return nil, err
	}
	s.closers = closers
	return s, nil
}

// newServer assembles a Server around an open database
func newServer(cfg *config.Config, db *gorm.DB, zlog zerolog.Logger, deps Deps, version string) (*Server, error) {
	// Run database migrations
	if err := models.AutoMigrate(db); err != nil {
		return nil, err
	}

	if err := initJWT(db, cfg, zlog); err != nil {
		return nil, err
	}

	if err := registerValidators(); err != nil {
		return nil, err
	}

	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewMemoryLimiter()
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}

	server := &Server{
		db:       db,
		config:   cfg,
		logger:   zlog,
		enqueuer: deps.Enqueuer,
		limiter:  deps.Limiter,
		audit:    deps.Audit,
		registry: deps.Registry,
		metrics:  metrics.NewMetrics(deps.Registry),
		version:  version,
	}

	// Setup router
	server.setupRouter()

	return server, nil
}

// initJWT loads the signing secret from config, then from the settings
// row, generating and persisting one on first start
func initJWT(db *gorm.DB, cfg *config.Config, zlog zerolog.Logger) error {
	if cfg.Auth.JWTSecret != "" {
		auth.InitializeJWT(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		zlog.Debug().Msg("Using JWT secret from environment")
		return nil
	}

	var settings models.Settings
	err := db.First(&settings).Error
	if err == nil {
		auth.InitializeJWT(settings.JWTSecret, cfg.Auth.TokenTTL)
		zlog.Debug().Msg("Loaded JWT secret from database")
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	secret, err := auth.NewSecret()
	if err != nil {
		return fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	if err := db.Create(&models.Settings{JWTSecret: secret}).Error; err != nil {
		return fmt.Errorf("failed to persist settings: %w", err)
	}

	auth.InitializeJWT(secret, cfg.Auth.TokenTTL)
	zlog.Info().Msg("Generated and persisted a new JWT secret")
	return nil
}

// initDatabase initializes the database connection with production settings
func initDatabase(cfg *config.Config, zlog zerolog.Logger) (*gorm.DB, error) {
	const (
		maxOpenConns    = 8    // Reduced for SQLite efficiency
		maxIdleConns    = 4    // Reduced proportionally
		connMaxLifetime = 300  // 5 minutes
		busyTimeout     = 5000 // 5 seconds
		cacheSize       = 10000
	)

	// Open database connection
	db, err := gorm.Open(sqlite.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				LogLevel:                  logger.Error,
				IgnoreRecordNotFoundError: true,
				SlowThreshold:             200 * time.Millisecond,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Get underlying sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(connMaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL mode must be set first for optimal concurrency
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout),
		fmt.Sprintf("PRAGMA cache_size=-%d", cacheSize),
		"PRAGMA foreign_keys=1",
		"PRAGMA temp_store=2",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			zlog.Warn().Str("pragma", pragma).Err(err).Msg("Failed to apply pragma")
		}
	}

	return db, nil
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() {
	if s.config.Server.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()

	// Add middleware
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	// CORS middleware; credentials require explicit origins
	if len(s.config.Server.CORSOrigins) > 0 {
		s.router.Use(cors.New(cors.Config{
			AllowOrigins:     s.config.Server.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Health check endpoint (no auth required)
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(metrics.HandlerFor(s.registry)))

	loginLimit := ratelimit.Middleware(s.limiter, ratelimit.Rule{
		Name:    "login",
		Max:     s.config.RateLimit.MaxLogin,
		Window:  s.config.RateLimit.Window,
		Message: "Too many login attempts",
	}, s.logger, s.metrics)
	registerLimit := ratelimit.Middleware(s.limiter, ratelimit.Rule{
		Name:   "register",
		Max:    s.config.RateLimit.MaxRegister,
		Window: s.config.RateLimit.Window,
	}, s.logger, s.metrics)

	// Public auth endpoints (no auth required)
	s.router.POST("/api/setup", registerLimit, s.setupFirstAdmin)
	s.router.POST("/api/auth/register", registerLimit, s.register)
	s.router.POST("/api/auth/login", loginLimit, s.login)
	s.router.POST("/api/auth/logout", s.logout)

	// Authenticated API routes (session cookie or JWT)
	api := s.router.Group("/api")
	api.Use(AuthMiddleware(s.db, s.logger))
	{
		api.GET("/auth/me", s.getCurrentUser)

		api.POST("/feedback", s.submitFeedback)
		api.GET("/feedback/my", s.listMyFeedback)

		api.GET("/simulators", s.listActiveSimulators)

		// Administration (admin only)
		admin := api.Group("/admin")
		admin.Use(AdminOnlyMiddleware(s.logger))
		{
			admin.GET("/stats", s.getAdminStats)
			admin.GET("/users", s.listUsers)
			admin.PUT("/users/:id/role", s.updateUserRole)
			admin.DELETE("/users/:id", s.deleteUser)
			admin.GET("/questions", s.listQuestions)
			admin.GET("/simulators", s.listAllSimulators)
			admin.GET("/feedback", s.listAllFeedback)
			admin.PUT("/feedback/:id/status", s.updateFeedbackStatus)
		}
	}
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status())

		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// @Router /health [get]
// @Success 200 {object} map[string]interface{}
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"service":   "ingreso-api",
		"version":   s.version,
	})
}

// recordAudit hands an event to the audit logger, stamping request details
func (s *Server) recordAudit(c *gin.Context, event audit.Event) {
	event.ClientIP = c.ClientIP()
	event.UserAgent = c.Request.UserAgent()
	if err := s.audit.LogAuthEvent(c.Request.Context(), event); err != nil {
		s.logger.Warn().Err(err).Str("event", event.Type).Msg("Failed to record auth event")
	}
}

// GetDB returns the database connection for use by workers
func (s *Server) GetDB() *gorm.DB {
	return s.db
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	port := ":" + s.config.Server.Port

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:              port,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		s.logger.Info().Str("port", port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	s.logger.Info().Msg("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		return err
	}

	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.logger.Warn().Err(err).Msg("Error closing dependency")
		}
	}

	s.logger.Info().Msg("Server shutdown complete")

	// Close database connection to flush WAL writes
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Error closing database")
		} else {
			s.logger.Info().Msg("Database closed successfully")
		}
	}

	return nil
}
