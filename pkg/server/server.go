package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"sharegate/pkg/auth"
	"sharegate/pkg/cache"
	"sharegate/pkg/catalog"
	"sharegate/pkg/fetch"
	"sharegate/pkg/link"
	"sharegate/pkg/log"
	"sharegate/pkg/permission"
	"sharegate/pkg/session"
)

const shutdownTimeout = 10 * time.Second

// Config carries the boundary's deployment parameters.
type Config struct {
	Version string
	// PublicBaseURL prefixes redemption URLs returned at link creation.
	PublicBaseURL string
	// DirectLimit is the file-size ceiling for the direct retrieval method.
	DirectLimit int64
	// RequestsPerSecond and Burst configure the per-IP request rate limiter.
	// Zero RequestsPerSecond disables rate limiting.
	RequestsPerSecond float64
	Burst             int
}

// Server is the HTTP boundary over the auth, link, session, and cache
// subsystems.
type Server struct {
	echo     *echo.Echo
	cfg      Config
	tokens   *auth.Manager
	links    *link.Registry
	sessions *session.Tracker
	cache    *cache.Manager
	catalog  *catalog.Store
	fetcher  fetch.Fetcher
	notifier *fetch.Notifier
	started  time.Time
}

// NewServer wires the boundary. The rate limiter is constructed here, once,
// and attached to this instance; tests get isolated limiters for free.
func NewServer(cfg Config, tokens *auth.Manager, links *link.Registry, sessions *session.Tracker,
	cacheMgr *cache.Manager, cat *catalog.Store, fetcher fetch.Fetcher, notifier *fetch.Notifier) *Server {
	return &Server{
		echo:     echo.New(),
		cfg:      cfg,
		tokens:   tokens,
		links:    links,
		sessions: sessions,
		cache:    cacheMgr,
		catalog:  cat,
		fetcher:  fetcher,
		notifier: notifier,
		started:  time.Now(),
	}
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start(addr string) error {
	s.setupRoutes()

	go func() {
		log.Info().
			Str("addr", addr).
			Str("version", s.cfg.Version).
			Msg("Starting sharegate server")

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server startup failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return s.Shutdown()
}

// Shutdown stops the server, waiting out in-flight transfers up to the
// shutdown timeout.
func (s *Server) Shutdown() error {
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
		return err
	}

	log.Info().Msg("Server gracefully stopped")
	return nil
}

func (s *Server) setupRoutes() {
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} ${status} ${method} ${uri} (${latency_human})\n",
	}))
	s.echo.Use(middleware.Recover())

	if s.cfg.RequestsPerSecond > 0 {
		burst := s.cfg.Burst
		if burst <= 0 {
			burst = int(s.cfg.RequestsPerSecond)
		}
		s.echo.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:  rate.Limit(s.cfg.RequestsPerSecond),
				Burst: burst,
			},
		)))
	}

	// Public endpoints
	s.echo.GET("/health", s.health)
	s.echo.GET("/d/:code", s.redeemLink)

	// Authenticated API
	api := s.echo.Group("/api", s.bearerAuth)
	api.GET("/permissions", s.listPermissions)
	api.POST("/tokens", s.createToken, s.requirePermission(permission.TokensCreate))
	api.GET("/tokens", s.listTokens, s.requirePermission(permission.TokensRead))
	api.DELETE("/tokens/:id", s.revokeToken, s.requirePermission(permission.TokensRevoke))
	api.POST("/links", s.createLink, s.requirePermission(permission.LinksCreate))
	api.GET("/links/:code/stats", s.linkStats, s.requirePermission(permission.LinksRead))
	api.DELETE("/links/:code", s.deactivateLink)
	api.GET("/sessions", s.listSessions, s.requirePermission(permission.SessionsRead))
	api.POST("/sessions/:id/cancel", s.cancelSession, s.requirePermission(permission.SessionsCancel))
	api.POST("/cache/clear", s.clearCache, s.requirePermission(permission.SystemControl))
	api.POST("/cache/cleanup", s.cleanupCache, s.requirePermission(permission.SystemControl))
}
