package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/saude/saude/internal/config"
	"github.com/saude/saude/internal/domain/account"
	"github.com/saude/saude/internal/domain/clinical"
	"github.com/saude/saude/internal/domain/diary"
	"github.com/saude/saude/internal/domain/help"
	"github.com/saude/saude/internal/domain/identity"
	"github.com/saude/saude/internal/domain/interest"
	"github.com/saude/saude/internal/domain/linking"
	"github.com/saude/saude/internal/domain/media"
	"github.com/saude/saude/internal/domain/vocabulary"
	"github.com/saude/saude/internal/platform/auth"
	"github.com/saude/saude/internal/platform/db"
	"github.com/saude/saude/internal/platform/middleware"
	"github.com/saude/saude/internal/platform/websocket"
)

const version = "0.1.0"

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		l := newLogger(nil)
		l.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := openPool(ctx, cfg, cfg.DBSchema)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	a, err := newApp(ctx, cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire services")
	}
	defer a.Close()

	e := newEcho(cfg, a, logger)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newEcho(cfg *config.Config, a *app, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Account-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	e.Use(middleware.Sanitize(logger))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		SigningKey:  a.signingKey,
		Revocations: a.revocations,
		Skipper:     auth.AuthSkipper,
	}
	if cfg.ResolvedAuthMode() == config.AuthDevelopment {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}
	e.Use(auth.LoadProfile(a.identity.AuthProfile))
	e.Use(middleware.Audit(logger))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	deps := map[string]db.Pinger{}
	if a.redis != nil {
		deps["redis"] = db.PingerFunc(func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}
	e.GET("/health/db", db.HealthHandler(a.pool, deps))

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{Limit: cfg.RateLimit, Window: cfg.RateLimitWindow}
	if a.redis != nil {
		rateLimitCfg.Counter = middleware.NewRedisRateCounter(a.redis, "")
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	if cfg.RequestTimeout > 0 {
		apiV1.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	account.NewHandler(a.account).RegisterRoutes(apiV1)
	identity.NewHandler(a.identity).RegisterRoutes(apiV1)
	vocabulary.NewHandler(a.vocabulary).RegisterRoutes(apiV1)
	clinical.NewHandler(a.clinical, a.identity).RegisterRoutes(apiV1)
	linking.NewHandler(a.linking).RegisterRoutes(apiV1)
	help.NewHandler(a.help).RegisterRoutes(apiV1)
	interest.NewHandler(a.interest).RegisterRoutes(apiV1)
	diary.NewHandler(a.diary).RegisterRoutes(apiV1)
	media.NewHandler(a.blobs, logger).RegisterRoutes(apiV1)

	websocket.NewHandler(a.hub, topicResolver(a.identity.AuthProfile), originChecker(cfg.CORSOrigins)).RegisterRoutes(e)

	return e
}
