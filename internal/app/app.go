package app

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/marianozunino/bucket/internal/blob"
	"github.com/marianozunino/bucket/internal/cache"
	"github.com/marianozunino/bucket/internal/config"
	"github.com/marianozunino/bucket/internal/expiration"
	"github.com/marianozunino/bucket/internal/handler"
	"github.com/marianozunino/bucket/internal/middleware"
	"github.com/marianozunino/bucket/internal/registry"
	"github.com/marianozunino/bucket/internal/service"
)

// App wires the registry, blob store, sweeper, and HTTP surface together.
type App struct {
	server   *echo.Echo
	sweeper  *expiration.Sweeper
	registry *registry.Registry
	config   *config.Config
	logger   *zap.Logger
}

// New builds the application from the given config file path. An empty
// path uses defaults and BUCKET_* environment variables only.
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	reg, err := registry.Open(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	blobs, err := blob.NewFS(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	var listings *cache.Listing
	if cfg.RedisAddr != "" {
		client, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			// Listings fall back to the registry on every request;
			// the cache is an optimization, not a dependency.
			logger.Warn("redis unavailable, listing cache disabled", zap.Error(err))
		} else {
			listings = cache.NewListing(client, time.Duration(cfg.CacheTTLSeconds)*time.Second, logger)
		}
	}

	svc := service.New(reg, blobs, listings, logger)

	sweeper := expiration.NewSweeper(
		reg, blobs, cfg.ExpiryPolicy,
		time.Duration(cfg.SweepIntervalMinutes)*time.Minute,
		logger,
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Large uploads need generous read/write windows.
	e.Server.ReadTimeout = 10 * time.Minute
	e.Server.WriteTimeout = 10 * time.Minute
	e.Server.IdleTimeout = 15 * time.Minute
	e.Server.ReadHeaderTimeout = 30 * time.Second

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.Auth(cfg.AuthSecret, logger))

	app := &App{
		server:   e,
		sweeper:  sweeper,
		registry: reg,
		config:   cfg,
		logger:   logger,
	}

	h := handler.NewHandler(svc, reg, blobs, listings, cfg, logger)
	registerRoutes(e, h)

	return app, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// Start launches the sweeper and the HTTP server.
func (a *App) Start() {
	a.sweeper.Start()

	addr := fmt.Sprintf(":%d", a.config.Port)
	go func() {
		if err := a.server.Start(addr); err != nil {
			a.logger.Info("server stopped", zap.Error(err))
		}
	}()

	a.logger.Info("server started", zap.String("addr", addr))
}

// Stop halts background services.
func (a *App) Stop() {
	a.sweeper.Stop()
}

// Shutdown gracefully shuts down the HTTP server and closes the registry.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if cerr := a.registry.Close(); err == nil {
		err = cerr
	}
	return err
}

func registerRoutes(e *echo.Echo, h *handler.Handler) {
	e.POST("/upload", h.HandleUpload)
	e.GET("/files", h.HandleListRecent)
	e.GET("/my", h.HandleListMine)
	e.GET("/files/:id", h.HandleDownload)
	e.DELETE("/files/:id", h.HandleDelete)
	e.GET("/info", h.HandleInfo)
	e.GET("/healthz", h.HandleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
