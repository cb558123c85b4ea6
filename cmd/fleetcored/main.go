// Command fleetcored runs the service fleet resilience core: load
// balancer, cache coordinator, connection pool monitor, and disaster
// recovery orchestration, all exposed through an administrative HTTP
// surface.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dsrconfig "github.com/dsrplatform/fleetcore/infrastructure/config"
	"github.com/dsrplatform/fleetcore/infrastructure/logging"
	httpmetrics "github.com/dsrplatform/fleetcore/infrastructure/metrics"
	"github.com/dsrplatform/fleetcore/infrastructure/middleware"
	"github.com/dsrplatform/fleetcore/infrastructure/service"
	"github.com/dsrplatform/fleetcore/infrastructure/state"
	"github.com/dsrplatform/fleetcore/internal/adminapi"
	"github.com/dsrplatform/fleetcore/internal/backup"
	"github.com/dsrplatform/fleetcore/internal/breaker"
	"github.com/dsrplatform/fleetcore/internal/cachecoord"
	"github.com/dsrplatform/fleetcore/internal/dispatcher"
	"github.com/dsrplatform/fleetcore/internal/drorchestrator"
	"github.com/dsrplatform/fleetcore/internal/failover"
	"github.com/dsrplatform/fleetcore/internal/fleetclock"
	"github.com/dsrplatform/fleetcore/internal/instmetrics"
	"github.com/dsrplatform/fleetcore/internal/poolmonitor"
	"github.com/dsrplatform/fleetcore/internal/prober"
	"github.com/dsrplatform/fleetcore/internal/registry"
)

func main() {
	cfg, err := dsrconfig.LoadDSRConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.NewFromEnv("fleetcore")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, poolSource, err := buildPersistence(ctx, cfg)
	if err != nil {
		log.Fatalf("build persistence: %v", err)
	}

	clock := fleetclock.Default
	ids := fleetclock.DefaultIDs

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.LoadBalancer.FailureThreshold,
		Cooldown:         cfg.LoadBalancer.BreakerCooldown,
		Logger:           logger,
	})
	metrics := instmetrics.New(clock, prometheus.DefaultRegisterer)
	reg := registry.New(clock, breakers, metrics)
	dispatch := dispatcher.New(reg, breakers, metrics)
	prb := prober.New(clock)

	cache, err := cachecoord.New(cfg.Cache.CacheNodeList(), cachecoord.DefaultNamespaces())
	if err != nil {
		log.Fatalf("build cache coordinator: %v", err)
	}

	var pool *poolmonitor.Monitor
	if poolSource != nil {
		pool = poolmonitor.New(poolSource, clock)
	}

	backupEngine := backup.NewEngine(backup.Config{
		BasePath:      cfg.Backup.BasePath,
		EncryptionKey: cfg.Backup.EncryptionKey,
	}, backup.DefaultAdapters(), backup.NewMetadataRegistry(backend), clock, ids, logger)

	failoverEngine := failover.NewEngine(map[failover.StepType]failover.StepAdapter{
		failover.DatabaseFailover:  failover.NewDatabaseFailoverAdapter(logger),
		failover.LoadBalancerUpdate: &failover.LoadBalancerAdapter{Registry: reg},
		failover.DNSUpdate:         failover.NewDNSUpdateAdapter(logger),
		failover.ServiceRestart:    failover.NewServiceRestartAdapter(logger),
		failover.ConfigurationSync: failover.NewConfigurationSyncAdapter(logger),
		failover.HealthCheck: failover.NewHealthCheckAdapter(func(ctx context.Context, targetSite string) error {
			return nil
		}),
		failover.Notification: failover.NewNotificationAdapter(failover.LoggingNotifier{Logger: logger}, "failover complete"),
	}, nil, backend, clock, ids, logger)

	sites := drorchestrator.NewSiteRegistry(cfg.DR.PrimarySite, cfg.DR.SecondarySiteList())
	orchestrator := drorchestrator.New(drorchestrator.Config{
		FailureThreshold:   cfg.DR.FailureThreshold,
		AutoFailover:       cfg.DR.AutoFailover,
		RTOMinutes:         cfg.DR.RTOMinutes,
		RPOMinutes:         cfg.DR.RPOMinutes,
		RetentionDays:      cfg.DR.RetentionDays,
		MonitoringInterval: cfg.DR.MonitoringInterval,
		NightlyCronSpec:    cfg.DR.NightlyCronSpec,
		BackupCompression:  cfg.Backup.Compression,
		BackupEncryption:   cfg.Backup.Encryption,
	}, sites, prb, backupEngine, failoverEngine, nil, nil, clock, ids, logger)

	base := service.NewBase(&service.BaseConfig{
		ID:      "fleetcore",
		Name:    "Fleet Resilience Core",
		Version: "1.0.0",
		Backend: backend,
		Logger:  logger,
	})
	base.WithStats(func() map[string]any {
		return map[string]any{
			"services":      len(reg.ServiceNames()),
			"cache_healthy": cache.Healthy(context.Background()),
		}
	})

	cron, err := orchestrator.Register(base)
	if err != nil {
		log.Fatalf("register DR schedule: %v", err)
	}
	cron.Start()
	defer cron.Stop()

	prb.Watch("cache-coordinator", func(ctx context.Context) service.ComponentHealth {
		status := "healthy"
		if !cache.Healthy(ctx) {
			status = "unhealthy"
		}
		return service.ComponentHealth{Name: "cache-coordinator", Status: status, CheckedAt: clock.WallNow()}
	})
	base.AddTickerWorker(cfg.LoadBalancer.HealthCheckInterval, func(ctx context.Context) error {
		prb.CheckAll(ctx)
		return nil
	}, service.WithTickerWorkerName("health-prober"))

	if pool != nil {
		base.AddTickerWorker(30*time.Second, pool.Tick, service.WithTickerWorkerName("pool-monitor"))
	}

	httpMetrics := httpmetrics.New("fleetcore")

	router := base.Router()
	router.Use(middleware.NewRecoveryMiddleware(logger).Handler)
	router.Use(middleware.NewSecurityHeadersMiddleware(nil).Handler)
	router.Use(middleware.NewCORSMiddleware(nil).Handler)
	router.Use(middleware.NewBodyLimitMiddleware(8 << 20).Handler)
	router.Use(middleware.NewTimeoutMiddleware(30 * time.Second).Handler)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.MetricsMiddleware("fleetcore", httpMetrics))
	base.RegisterStandardRoutes()
	router.Handle("/metrics", promhttp.Handler())

	adminRouter := router.PathPrefix("").Subrouter()
	adminapi.Register(adminRouter, &adminapi.Deps{
		Registry:   reg,
		Dispatcher: dispatch,
		Breakers:   breakers,
		Metrics:    metrics,
		Prober:     prb,
		Cache:      cache,
		Pool:       pool,
		Backup:     backupEngine,
		Failover:   failoverEngine,
		DR:         orchestrator,
		Logger:     logger,
	})
	adminLimiter := middleware.NewRateLimiterFromConfig(middleware.DefaultRateLimiterConfig(logger))
	defer adminLimiter.Cleanup()
	adminRouter.Use(adminLimiter.Handler)
	adminRouter.Use(middleware.NewValidationMiddleware(middleware.DefaultValidationConfig()).Handler)
	adminRouter.Use(middleware.HeaderGateMiddleware(cfg.Admin.Token))

	if err := base.Start(ctx); err != nil {
		log.Fatalf("start service: %v", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Admin.HTTPPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	shutdown := middleware.NewGracefulShutdown(server, 30*time.Second)
	shutdown.OnShutdown(func() {
		logger.Info(ctx, "shutting down", nil)
		_ = base.Stop()
		if backend != nil {
			_ = backend.Close(context.Background())
		}
	})
	shutdown.ListenForSignals()

	logger.Info(ctx, "fleetcore listening", map[string]interface{}{"addr": addr})
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdown.Wait()
}

// buildPersistence selects the Postgres-backed state backend when
// DSR_DB_DSN is set, falling back to the in-memory backend for local
// development and tests. It also returns the Postgres connection pool
// (nil otherwise) so the connection pool monitor has a real source to
// sample.
func buildPersistence(ctx context.Context, cfg *dsrconfig.DSRConfig) (state.PersistenceBackend, *poolmonitor.SQLPoolSource, error) {
	if cfg.Persistence.DatabaseDSN == "" {
		return state.NewMemoryBackend(5 * time.Minute), nil, nil
	}
	pg, err := state.NewPostgresBackend(ctx, cfg.Persistence.DatabaseDSN, cfg.Persistence.MigrationsPath)
	if err != nil {
		return nil, nil, err
	}
	return pg, poolmonitor.NewSQLPoolSource(pg.DB()), nil
}
