// Package web is the browser-facing host. Every GET is looked up in the
// route table; guarded routes go through the route guard before a view is
// rendered.
package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ingresounam/ingreso/internal/admindata"
	"github.com/ingresounam/ingreso/internal/client"
	"github.com/ingresounam/ingreso/internal/config"
	"github.com/ingresounam/ingreso/internal/guard"
	"github.com/ingresounam/ingreso/internal/logger"
	"github.com/ingresounam/ingreso/internal/metrics"
	"github.com/ingresounam/ingreso/internal/routes"
	"github.com/ingresounam/ingreso/internal/session"
	"github.com/ingresounam/ingreso/internal/verifier"
)

// API is the part of the identity API the host calls directly
type API interface {
	Login(ctx context.Context, email, password string) (*client.AuthResponse, error)
	Register(ctx context.Context, req client.RegisterRequest) (*client.AuthResponse, error)
	Logout(ctx context.Context, auth client.Auth) error
	SubmitFeedback(ctx context.Context, auth client.Auth, req client.FeedbackRequest) (*client.Feedback, error)
	MyFeedback(ctx context.Context, auth client.Auth) ([]client.Feedback, error)
	Simulators(ctx context.Context, auth client.Auth) ([]client.Simulator, error)

	UpdateUserRole(ctx context.Context, auth client.Auth, userID, role string) (*client.User, error)
	DeleteUser(ctx context.Context, auth client.Auth, userID string) error
	UpdateFeedbackStatus(ctx context.Context, auth client.Auth, id, status, notes string) (*client.Feedback, error)
}

// Host serves the gated views
type Host struct {
	router   *gin.Engine
	config   *config.Config
	logger   zerolog.Logger
	table    *routes.Table
	api      API
	guard    *guard.Guard
	tracker  *guard.Tracker
	admin    *admindata.Provider
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	sessions func(w http.ResponseWriter, r *http.Request) session.Store
	closers  []func() error
	version  string
}

// New creates a host talking to the identity API at cfg.Web.BackendURL
func New(cfg *config.Config, zlog zerolog.Logger, version string) (*Host, error) {
	table := routes.Default()
	if cfg.Web.RoutesFile != "" {
		loaded, err := routes.Load(cfg.Web.RoutesFile)
		if err != nil {
			return nil, err
		}
		table = loaded
	}

	registry, m := metrics.NewRegistry()
	api := client.New(cfg.Web.BackendURL)

	var cache admindata.Cache
	var closers []func() error
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address})
		cache = admindata.NewRedisCache(rdb)
		closers = append(closers, rdb.Close)
	}

	tracker := guard.NewTracker()
	v := verifier.New(api, logger.Component(zlog, "verifier"), verifier.WithMetrics(m))
	g := guard.New(v, logger.Component(zlog, "guard"),
		guard.WithTracker(tracker),
		guard.WithMetrics(m),
		guard.WithTransitionHook(func(nav guard.Navigation, state guard.State) {
			zlog.Debug().Str("path", nav.Path).Str("client_id", nav.ClientID).Str("state", state.String()).Msg("Guard state")
		}),
	)
	provider := admindata.NewProvider(admindata.NewSource(api), cache, cfg.AdminCache.TTL, logger.Component(zlog, "admindata"), m)

	views, err := loadViews()
	if err != nil {
		return nil, err
	}

	h := &Host{
		config:   cfg,
		logger:   zlog,
		table:    table,
		api:      api,
		guard:    g,
		tracker:  tracker,
		admin:    provider,
		registry: registry,
		metrics:  m,
		sessions: cookieSessions(session.CookieOptions{Secure: cfg.Web.CookieSecure}),
		closers:  closers,
		version:  version,
	}
	h.setupRouter(views)

	zlog.Info().
		Str("backend_url", api.BaseURL()).
		Int("routes", len(table.Routes())).
		Msg("Web host configured")

	return h, nil
}

// cookieSessions keeps each browser's session in its own ingreso_* cookies
func cookieSessions(opts session.CookieOptions) func(w http.ResponseWriter, r *http.Request) session.Store {
	return func(w http.ResponseWriter, r *http.Request) session.Store {
		return session.NewCookieStore(w, r, opts)
	}
}

func (h *Host) setupRouter(views *viewRenderer) {
	if h.config.Server.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	h.router = gin.New()
	h.router.HTMLRender = views

	h.router.Use(gin.Recovery())
	h.router.Use(requestIDMiddleware())
	h.router.Use(h.loggingMiddleware())
	h.router.Use(h.clientIDMiddleware())

	h.router.GET("/health", h.healthCheck)
	h.router.GET("/metrics", gin.WrapH(metrics.HandlerFor(h.registry)))

	h.router.POST("/login", h.login)
	h.router.POST("/register", h.register)
	h.router.POST("/logout", h.logout)
	h.router.POST("/feedback", h.feedback)

	// Admin mutations; the cached snapshot is dropped after each
	h.router.POST("/admin/users/:id/role", h.updateUserRole)
	h.router.POST("/admin/users/:id/delete", h.deleteUser)
	h.router.POST("/admin/feedback/:id/status", h.updateFeedbackStatus)

	// Every other path is resolved against the route table
	h.router.NoRoute(h.navigate)
}

func (h *Host) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"service":   "ingreso-web",
		"version":   h.version,
		"verifying": h.tracker.Len(),
	})
}

// Handler exposes the router, mainly for tests
func (h *Host) Handler() http.Handler {
	return h.router
}

// Start serves until SIGINT or SIGTERM
func (h *Host) Start() error {
	addr := ":" + h.config.Web.Port

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:              addr,
		Handler:           h.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info().Str("port", addr).Msg("Starting web host")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web host failed: %w", err)
	case <-sigChan:
	}
	h.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		h.logger.Error().Err(err).Msg("Error shutting down web host")
		return err
	}

	for _, closeFn := range h.closers {
		if err := closeFn(); err != nil {
			h.logger.Warn().Err(err).Msg("Error closing dependency")
		}
	}

	h.logger.Info().Msg("Web host shutdown complete")
	return nil
}
