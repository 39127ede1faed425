// Command worker runs the periodic trigger table and the bounded worker
// pool that drives it (§4.5). Grounded on the teacher's
// cmd/scheduler/main.go bootstrap (DB/Redis/health-checker wiring,
// signal-driven graceful stop) and cmd/scheduler/server.go's metrics
// server, generalized from one weather-specific ticker service into a
// table of ten task kinds spanning the weather, planet and damage queues.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/harvestguard/ingestcore/clients/cidstore"
	"github.com/harvestguard/ingestcore/clients/satclient"
	"github.com/harvestguard/ingestcore/clients/stationclient"
	"github.com/harvestguard/ingestcore/features/damage"
	"github.com/harvestguard/ingestcore/features/planet"
	"github.com/harvestguard/ingestcore/features/weather"
	"github.com/harvestguard/ingestcore/internal/apperr"
	"github.com/harvestguard/ingestcore/internal/bus"
	"github.com/harvestguard/ingestcore/internal/cache"
	"github.com/harvestguard/ingestcore/internal/config"
	"github.com/harvestguard/ingestcore/internal/evidence"
	"github.com/harvestguard/ingestcore/internal/health"
	"github.com/harvestguard/ingestcore/internal/logging"
	"github.com/harvestguard/ingestcore/internal/ratelimit"
	"github.com/harvestguard/ingestcore/internal/satellite"
	"github.com/harvestguard/ingestcore/internal/scheduler"
	"github.com/harvestguard/ingestcore/internal/tsdb"
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

	logger.Info("starting ingestion core scheduler/worker pool", zap.String("version", version))

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Database.User, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
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

	httpDoer := &http.Client{Timeout: 30 * time.Second}
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
	eventBus := bus.New(logger)

	pool := scheduler.New(redisCache, store, logger)
	registerTasks(pool, logger, store, sat, weatherUseCase, planetUseCase, damageUseCase, eventBus, cfg)
	pool.StartWorkers(map[scheduler.Queue]int{
		scheduler.QueueDefault: cfg.Queues.DefaultConcurrency,
		scheduler.QueueWeather: cfg.Queues.WeatherConcurrency,
		scheduler.QueuePlanet:  cfg.Queues.PlanetConcurrency,
		scheduler.QueueDamage:  cfg.Queues.DamageConcurrency,
	})

	cron := scheduler.NewCron(logger)
	cron.Register(buildTriggers(pool)...)
	cron.Start()

	healthChecker := health.NewChecker(db, redisCache.Client(), logger, version, pool.Running)
	metricsServer := newMetricsServer(cfg.Port, healthChecker, logger)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	logger.Info("scheduler/worker pool started", zap.String("metrics_address", metricsServer.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down scheduler/worker pool...")
	cron.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}
	logger.Info("scheduler/worker pool stopped")
}

func newMetricsServer(port string, checker *health.Checker, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", checker.Handler())
	mux.HandleFunc("/health/detailed", checker.Handler())
	return &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// registerTasks binds every §4.5 task kind to its queue, retry policy and
// Run function. Each Run performs the batch fan-out itself (one cron tick
// == one dedup-gated Enqueue == one execution over every eligible plot),
// matching §4.5's "periodic tasks of the same kind are serialised via the
// dedup gate" ordering guarantee.
func registerTasks(
	pool *scheduler.Pool,
	logger *zap.Logger,
	store *tsdb.Store,
	sat *satclient.Client,
	weatherUseCase *weather.UseCase,
	planetUseCase *planet.UseCase,
	damageUseCase *damage.UseCase,
	eventBus *bus.Bus,
	cfg *config.Config,
) {
	pool.Register(scheduler.TaskSpec{
		Kind: "sweep-weather", Queue: scheduler.QueueWeather,
		MaxAttempts: 3, BaseBackoff: 10 * time.Second, DedupWindow: time.Minute,
		Run: func(ctx context.Context, job *scheduler.Job) error {
			plots, err := store.ListEligiblePlots(ctx, 7)
			if err != nil {
				return apperr.Wrap(apperr.Transient, "list eligible plots", err)
			}
			for _, plotID := range plots {
				if _, err := weatherUseCase.SubmitStation(ctx, plotID); err != nil && apperr.KindOf(err) != apperr.InsufficientData {
					logger.Warn("sweep-weather: submit station failed", zap.String("plot_id", plotID), zap.Error(err))
				}
			}
			return nil
		},
	})

	pool.Register(scheduler.TaskSpec{
		Kind: "daily-weather-indices", Queue: scheduler.QueueWeather,
		MaxAttempts: 3, BaseBackoff: time.Minute, DedupWindow: time.Hour,
		Run: func(ctx context.Context, job *scheduler.Job) error {
			end := time.Now().UTC().Truncate(24 * time.Hour)
			start := end.AddDate(0, 0, -1)
			plots, err := store.ListEligiblePlots(ctx, 1)
			if err != nil {
				return apperr.Wrap(apperr.Transient, "list eligible plots", err)
			}
			for _, plotID := range plots {
				if _, err := weatherUseCase.ComputeIndices(ctx, plotID, start, end); err != nil {
					logger.Warn("daily-weather-indices: compute failed", zap.String("plot_id", plotID), zap.Error(err))
					continue
				}
				idx, err := weatherUseCase.LatestIndex(ctx, plotID, start, end)
				if err == nil && idx != nil && idx.Anomaly {
					eventBus.Emit(bus.AlertsTopic, bus.EventAnomalyDetected, idx)
				}
			}
			return nil
		},
	})

	pool.Register(scheduler.TaskSpec{
		Kind: "check-weather-triggers", Queue: scheduler.QueueWeather,
		MaxAttempts: 3, BaseBackoff: 10 * time.Second, DedupWindow: 5 * time.Minute,
		Run: func(ctx context.Context, job *scheduler.Job) error {
			plots, err := store.ListEligiblePlots(ctx, 1)
			if err != nil {
				return apperr.Wrap(apperr.Transient, "list eligible plots", err)
			}
			now := time.Now().UTC()
			for _, plotID := range plots {
				idx, err := store.LatestWeatherIndexOverlapping(ctx, plotID, now.Add(-24*time.Hour), now)
				if err != nil || idx == nil || !idx.Anomaly {
					continue
				}
				if err := pool.Enqueue(ctx, "evidence-bundle", plotID, map[string]string{"plot_id": plotID}); err != nil {
					logger.Warn("check-weather-triggers: enqueue evidence-bundle failed", zap.String("plot_id", plotID), zap.Error(err))
				}
			}
			return nil
		},
	})

	pool.Register(scheduler.TaskSpec{
		Kind: "evidence-bundle", Queue: scheduler.QueueDamage,
		MaxAttempts: 3, BaseBackoff: 15 * time.Second, DedupWindow: 10 * time.Minute,
		Run: func(ctx context.Context, job *scheduler.Job) error {
			plotID := job.Payload["plot_id"]
			policyID, farmerAddress := "", ""
			if sub, err := store.LatestSubscriptionForPlot(ctx, plotID); err == nil && sub != nil {
				policyID = sub.PolicyID
			}
			_, err := damageUseCase.Assess(ctx, evidence.Request{PlotID: plotID, PolicyID: policyID, FarmerAddress: farmerAddress, WindowDays: 30})
			if err != nil && apperr.KindOf(err) == apperr.Conflict {
				return nil
			}
			if err != nil {
				return err
			}
			eventBus.Emit(bus.PlotTopic(plotID), bus.EventEvidencePublished, plotID)
			return nil
		},
	})

	pool.Register(scheduler.TaskSpec{
		Kind: "check-subscriptions", Queue: scheduler.QueuePlanet,
		MaxAttempts: 3, BaseBackoff: 30 * time.Second, DedupWindow: time.Hour,
		Run: func(ctx context.Context, job *scheduler.Job) error {
			subs, err := store.ListActiveSubscriptions(ctx)
			if err != nil {
				return apperr.Wrap(apperr.Transient, "list active subscriptions", err)
			}
			for _, sub := range subs {
				if _, _, err := sat.Status(ctx, sub.SubscriptionID); err != nil {
					logger.Warn("check-subscriptions: status poll failed", zap.String("subscription_id", sub.SubscriptionID), zap.Error(err))
					next := satellite.Next(sub.Status, satellite.EventPollError)
					if next != sub.Status {
						_ = store.UpdateSubscriptionStatus(ctx, sub.SubscriptionID, next)
					}
				}
			}
			return nil
		},
	})

	pool.Register(scheduler.TaskSpec{
		Kind: "fetch-latest-biomass", Queue: scheduler.QueuePlanet,
		MaxAttempts: 3, BaseBackoff: time.Minute, DedupWindow: time.Hour,
		Run: func(ctx context.Context, job *scheduler.Job) error {
			subs, err := store.ListActiveSubscriptions(ctx)
			if err != nil {
				return apperr.Wrap(apperr.Transient, "list active subscriptions", err)
			}
			for _, sub := range subs {
				deliveries, err := sat.Results(ctx, sub.SubscriptionID)
				if err != nil {
					logger.Warn("fetch-latest-biomass: results poll failed", zap.String("subscription_id", sub.SubscriptionID), zap.Error(err))
					continue
				}
				for _, delivery := range deliveries {
					samples, err := sat.FetchDelivery(ctx, sub.SubscriptionID, delivery.DeliveryID, sub.PlotID)
					if err != nil {
						logger.Warn("fetch-latest-biomass: fetch delivery failed", zap.String("subscription_id", sub.SubscriptionID), zap.Error(err))
						continue
					}
					for _, sample := range samples {
						if err := store.UpsertBiomassSample(ctx, sample); err != nil {
							logger.Warn("fetch-latest-biomass: upsert sample failed", zap.Error(err))
						}
					}
				}
				if _, err := planetUseCase.ReduceBiomass(ctx, sub.SubscriptionID, sub.PlotID); err != nil && apperr.KindOf(err) != apperr.InsufficientData {
					logger.Warn("fetch-latest-biomass: reduce failed", zap.String("subscription_id", sub.SubscriptionID), zap.Error(err))
				}
			}
			return nil
		},
	})

	pool.Register(scheduler.TaskSpec{
		Kind: "cancel-expired-subs", Queue: scheduler.QueuePlanet,
		MaxAttempts: 3, BaseBackoff: time.Minute, DedupWindow: time.Hour,
		Run: func(ctx context.Context, job *scheduler.Job) error {
			subs, err := store.ListActiveSubscriptions(ctx)
			if err != nil {
				return apperr.Wrap(apperr.Transient, "list active subscriptions", err)
			}
			now := time.Now().UTC()
			for _, sub := range subs {
				if sub.End.After(now) {
					continue
				}
				next := satellite.Next(sub.Status, satellite.EventEndReached)
				if next == sub.Status {
					continue
				}
				if err := store.UpdateSubscriptionStatus(ctx, sub.SubscriptionID, next); err != nil {
					logger.Warn("cancel-expired-subs: update status failed", zap.String("subscription_id", sub.SubscriptionID), zap.Error(err))
				}
			}
			return nil
		},
	})

	pool.Register(scheduler.TaskSpec{
		Kind: "monitor-biomass-quality", Queue: scheduler.QueuePlanet,
		MaxAttempts: 3, BaseBackoff: time.Minute, DedupWindow: time.Hour,
		Run: func(ctx context.Context, job *scheduler.Job) error {
			subs, err := store.ListActiveSubscriptions(ctx)
			if err != nil {
				return apperr.Wrap(apperr.Transient, "list active subscriptions", err)
			}
			for _, sub := range subs {
				samples, err := store.RecentBiomassSamples(ctx, sub.PlotID, 7)
				if err != nil {
					logger.Warn("monitor-biomass-quality: range failed", zap.String("plot_id", sub.PlotID), zap.Error(err))
					continue
				}
				if satellite.QualityWatchTripped(samples, cfg.Biomass.MaxCloudCover) {
					eventBus.Emit(bus.AlertsTopic, bus.EventAnomalyDetected, map[string]string{"plot_id": sub.PlotID, "reason": "biomass_quality_watch"})
				}
			}
			return nil
		},
	})

	pool.Register(scheduler.TaskSpec{
		Kind: "process-pending-assessments", Queue: scheduler.QueueDamage,
		MaxAttempts: 3, BaseBackoff: 15 * time.Second, DedupWindow: 5 * time.Minute,
		Run: func(ctx context.Context, job *scheduler.Job) error {
			plots, err := store.ListEligiblePlots(ctx, 1)
			if err != nil {
				return apperr.Wrap(apperr.Transient, "list eligible plots", err)
			}
			now := time.Now().UTC()
			for _, plotID := range plots {
				idx, err := store.LatestWeatherIndexOverlapping(ctx, plotID, now.Add(-24*time.Hour), now)
				if err != nil || idx == nil || !idx.Anomaly {
					continue
				}
				if err := pool.Enqueue(ctx, "evidence-bundle", plotID, map[string]string{"plot_id": plotID}); err != nil {
					logger.Warn("process-pending-assessments: enqueue evidence-bundle failed", zap.String("plot_id", plotID), zap.Error(err))
				}
			}
			return nil
		},
	})

	pool.Register(scheduler.TaskSpec{
		Kind: "archive-old-assessments", Queue: scheduler.QueueDamage,
		MaxAttempts: 3, BaseBackoff: time.Minute, DedupWindow: 24 * time.Hour,
		Run: func(ctx context.Context, job *scheduler.Job) error {
			stationDeleted, biomassDeleted, err := store.PruneRetention(ctx, cfg.Retain.SampleDays, cfg.Retain.BiomassDays)
			if err != nil {
				return apperr.Wrap(apperr.Transient, "prune retention", err)
			}
			logger.Info("archive-old-assessments: retention prune complete",
				zap.Int64("station_samples_deleted", stationDeleted), zap.Int64("biomass_samples_deleted", biomassDeleted))
			return nil
		},
	})

	pool.Register(scheduler.TaskSpec{
		Kind: "health-check", Queue: scheduler.QueueDefault,
		MaxAttempts: 1, BaseBackoff: time.Second, DedupWindow: 30 * time.Second,
		Run: func(ctx context.Context, job *scheduler.Job) error {
			return nil
		},
	})
}

func buildTriggers(pool *scheduler.Pool) []scheduler.Trigger {
	enqueue := func(kind string) func(ctx context.Context, firedAt time.Time) error {
		return func(ctx context.Context, firedAt time.Time) error {
			dedupKey := fmt.Sprintf("%s-%d", kind, firedAt.Truncate(time.Minute).Unix())
			return pool.Enqueue(ctx, kind, dedupKey, nil)
		}
	}
	return []scheduler.Trigger{
		{Name: "sweep-weather", Schedule: "0 */5 * * * *", Fire: enqueue("sweep-weather")},
		{Name: "daily-weather-indices", Schedule: "0 0 0 * * *", Fire: enqueue("daily-weather-indices")},
		{Name: "check-weather-triggers", Schedule: "0 */10 * * * *", Fire: enqueue("check-weather-triggers")},
		{Name: "check-subscriptions", Schedule: "0 0 */6 * * *", Fire: enqueue("check-subscriptions")},
		{Name: "fetch-latest-biomass", Schedule: "0 0 2 * * *", Fire: enqueue("fetch-latest-biomass")},
		{Name: "cancel-expired-subs", Schedule: "0 0 3 * * *", Fire: enqueue("cancel-expired-subs")},
		{Name: "monitor-biomass-quality", Schedule: "0 0 4 * * *", Fire: enqueue("monitor-biomass-quality")},
		{Name: "process-pending-assessments", Schedule: "0 */10 * * * *", Fire: enqueue("process-pending-assessments")},
		{Name: "archive-old-assessments", Schedule: "0 30 2 * * *", Fire: enqueue("archive-old-assessments")},
		{Name: "health-check", Schedule: "0 * * * * *", Fire: enqueue("health-check")},
	}
}
