// Command server runs the ingestion core's command/query surface: the HTTP
// REST routes and websocket push gateway named in §6. Grounded on the
// teacher's cmd/main.go Echo-init/signal/shutdown idiom, generalized from a
// single shared.Init() call into the core's own explicit wiring of storage,
// cache, external clients, and feature handlers.
//
// @title Ingestion Core API
// @version 1.0
// @description Weather and biomass ingestion, damage assessment and evidence bundling for a parametric crop-insurance core.
// @BasePath /
// @schemes http
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/harvestguard/ingestcore/clients/cidstore"
	"github.com/harvestguard/ingestcore/clients/satclient"
	"github.com/harvestguard/ingestcore/clients/stationclient"
	"github.com/harvestguard/ingestcore/docs"
	"github.com/harvestguard/ingestcore/features/damage"
	"github.com/harvestguard/ingestcore/features/planet"
	"github.com/harvestguard/ingestcore/features/tasks"
	"github.com/harvestguard/ingestcore/features/weather"
	"github.com/harvestguard/ingestcore/internal/bus"
	"github.com/harvestguard/ingestcore/internal/cache"
	"github.com/harvestguard/ingestcore/internal/config"
	"github.com/harvestguard/ingestcore/internal/evidence"
	"github.com/harvestguard/ingestcore/internal/health"
	"github.com/harvestguard/ingestcore/internal/httpapi"
	"github.com/harvestguard/ingestcore/internal/httpretry"
	"github.com/harvestguard/ingestcore/internal/logging"
	"github.com/harvestguard/ingestcore/internal/ratelimit"
	"github.com/harvestguard/ingestcore/internal/scheduler"
	"github.com/harvestguard/ingestcore/internal/taskstate"
	"github.com/harvestguard/ingestcore/internal/tsdb"
	"github.com/harvestguard/ingestcore/internal/wsgateway"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	logger, err := logging.New(cfg.LogLevel, nil)
	if err != nil {
		log.Fatal("failed to build logger:", err)
	}
	defer logger.Sync()

	logger.Info("starting ingestion core command/query surface",
		zap.String("version", version), zap.String("environment", cfg.Env))

	docs.SwaggerInfo.Host = "localhost:" + cfg.Port

	db, err := openDatabase(cfg.Database)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	store, err := tsdb.New(db, logger)
	if err != nil {
		logger.Fatal("failed to initialise storage adapter", zap.Error(err))
	}

	redisCache, err := cache.New(cfg.Upstream.RedisAddr, "", logger)
	if err != nil {
		logger.Fatal("failed to connect to cache", zap.Error(err))
	}
	defer redisCache.Close()

	httpDoer := &http.Client{Timeout: 15 * time.Second}

	stationLimiter := ratelimit.NewClientLimiter(float64(cfg.Upstream.StationRateRPM), cfg.Upstream.StationBurst)
	station := stationclient.New(cfg.Upstream.StationBaseURL, cfg.Upstream.StationToken, httpDoer, stationLimiter, logger)

	satLimiter := ratelimit.NewClientLimiter(float64(cfg.Upstream.SatelliteRateRPM), cfg.Upstream.SatelliteBurst)
	sat := satclient.New(cfg.Upstream.SatelliteBaseURL, cfg.Upstream.SatelliteToken, httpDoer, satLimiter, logger)

	cidLimiter := ratelimit.NewClientLimiter(float64(cfg.Upstream.CIDStoreRateRPM), cfg.Upstream.CIDStoreBurst)
	cidClient := cidstore.New(cfg.Upstream.CIDStoreBaseURL, cfg.Upstream.CIDStoreToken, httpDoer, cidLimiter, logger)

	weatherUseCase := weather.NewUseCase(station, store, store, cfg.Weather, logger)
	planetUseCase := planet.NewUseCase(sat, store, cfg.Biomass, logger)
	bundler := evidence.New(store, store, cidClient, store, logger)
	damageUseCase := damage.NewUseCase(bundler, store)

	taskStore := taskstate.NewStore(redisCache)
	eventBus := bus.New(logger)
	gateway := wsgateway.New(eventBus, logger)

	schedulerPool := scheduler.New(redisCache, store, logger)
	healthChecker := health.NewChecker(db, redisCache.Client(), logger, version, schedulerPool.Running)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(httpapi.CORS(cfg.CORS.AllowedOrigins, cfg.Env))

	damageRateLimiter := httpapi.NewPlotRateLimiter(redisCache, "damage:assess", 5, time.Hour)

	weather.NewHandler(e, weatherUseCase, taskStore)
	planet.NewHandler(e, planetUseCase, taskStore)
	damage.NewHandler(e, damageUseCase, taskStore, damageRateLimiter)
	tasks.NewHandler(e, taskStore)

	e.GET("/ws/plot/:plot", gateway.ServePlot)
	e.GET("/ws/alerts", gateway.ServeAlerts)

	e.GET("/health", echo.WrapHandler(healthChecker.Handler()))
	e.GET("/health/detailed", echo.WrapHandler(healthChecker.Handler()))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	logger.Info("command/query surface starting", zap.String("address", ":"+cfg.Port))
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down command/query surface...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("command/query surface exited gracefully")
}

func openDatabase(dbCfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		dbCfg.User, dbCfg.Password, dbCfg.Host, dbCfg.Port, dbCfg.Database)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}
