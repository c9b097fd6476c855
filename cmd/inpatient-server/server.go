package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/hospital/inpatient/internal/config"
	"github.com/hospital/inpatient/internal/domain/admission"
	"github.com/hospital/inpatient/internal/domain/billing"
	"github.com/hospital/inpatient/internal/domain/ward"
	"github.com/hospital/inpatient/internal/gateway"
	"github.com/hospital/inpatient/internal/platform/auth"
	"github.com/hospital/inpatient/internal/platform/db"
	"github.com/hospital/inpatient/internal/platform/inflight"
	"github.com/hospital/inpatient/internal/platform/metrics"
	"github.com/hospital/inpatient/internal/platform/middleware"
	"github.com/hospital/inpatient/internal/platform/reporting"
	"github.com/hospital/inpatient/internal/platform/webhook"
	"github.com/hospital/inpatient/internal/platform/websocket"
)

const (
	requestTimeout  = 45 * time.Second
	shutdownTimeout = 10 * time.Second
)

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		logger.Warn().Msg("development auth is active: unauthenticated requests act as admin")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	gw := gateway.New(gatewayConfig(cfg), logger)
	gw.SetMetrics(m)
	hub := websocket.NewHub(logger)
	hooks, err := newDispatcher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register webhooks")
	}
	hooks.SetMetrics(m)
	pub := websocket.Fanout{hub, hooks}

	wardSvc := ward.NewService(gw, gw, gw, logger)
	wardSvc.SetTTL(cfg.SnapshotTTL)
	wardSvc.SetMetrics(m)
	wardSvc.SetPublisher(pub)

	billSvc := billing.NewService(gw)

	admSvc := admission.NewService(admission.NewRepo(pool), gw, billSvc, logger)
	admSvc.SetOccupancy(wardSvc)
	admSvc.SetMetrics(m)
	admSvc.SetPublisher(pub)
	if cfg.RedisURL != "" {
		guard, err := inflight.NewRedisFromURL(ctx, cfg.RedisURL, cfg.InflightTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer guard.Close()
		admSvc.SetGuard(guard)
		logger.Info().Msg("using redis in-flight guard")
	}

	e := newEcho(cfg, logger)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", m.Handler())
	websocket.NewHandler(hub).RegisterRoutes(e)

	api := e.Group("/api/v1")
	ward.NewHandler(wardSvc).RegisterRoutes(api)
	admission.NewHandler(admSvc).RegisterRoutes(api)
	billing.NewHandler(billSvc).RegisterRoutes(api)
	reporting.NewHandler(wardSvc, billSvc).RegisterRoutes(api)
	webhook.NewHandler(hooks).RegisterRoutes(api)

	go func() {
		if _, err := wardSvc.Refresh(ctx); err != nil {
			logger.Warn().Err(err).Msg("initial occupancy snapshot failed")
		}
	}()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := hooks.Wait(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("webhook deliveries still pending at shutdown")
	}
	return nil
}

// newDispatcher registers the endpoints listed in WEBHOOK_URLS. More can be
// added at runtime through the admin API.
func newDispatcher(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*webhook.Dispatcher, error) {
	d := webhook.NewDispatcher(webhook.NewMemoryStore(), logger)
	for _, u := range cfg.WebhookURLs {
		if _, err := d.Register(ctx, u, cfg.WebhookSecret, cfg.WebhookEvents); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// newEcho builds the server with the global middleware chain. Routes are
// added by the caller.
func newEcho(cfg *config.Config, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader, auth.DevRolesHeader},
	}))
	e.Use(middleware.RequestTimeout(requestTimeout, "/ws"))

	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		Skipper:           auth.AuthSkipper,
	}))
	e.Use(middleware.Audit(logger))
	return e
}
