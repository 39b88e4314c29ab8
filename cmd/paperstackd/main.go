package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/paperstack/paperstack/pkg/api"
	"github.com/paperstack/paperstack/pkg/apikey"
	"github.com/paperstack/paperstack/pkg/audit"
	"github.com/paperstack/paperstack/pkg/authz"
	"github.com/paperstack/paperstack/pkg/config"
	"github.com/paperstack/paperstack/pkg/docperm"
	"github.com/paperstack/paperstack/pkg/events"
	"github.com/paperstack/paperstack/pkg/httputil"
	"github.com/paperstack/paperstack/pkg/observability"
	"github.com/paperstack/paperstack/pkg/permcache"
	"github.com/paperstack/paperstack/pkg/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("server exited")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database connected, migrations applied")

	sqlStore := store.NewSQLStore(db)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	cacheMetrics := permcache.NewMetrics(registry)

	cacheCfg := permcache.Config{
		MaxEntries: cfg.Cache.MaxEntries,
		TTL:        cfg.Cache.TTL,
	}
	caches := &permcache.Caches{
		Groups:   permcache.NewGroupsCache(cacheCfg, sqlStore.FindGroupsOf, cacheMetrics),
		AppPerms: permcache.NewAppPermissionsCache(cacheCfg, sqlStore.GetPermissionsForUser, cacheMetrics),
		UserDocs: permcache.NewUserDocPermissionsCache(cacheCfg, sqlStore.GetUserDocumentPermissions, cacheMetrics),
		DocMaps:  permcache.NewDocPermissionsCache(cacheCfg, sqlStore.GetPermissionsForDocument, cacheMetrics),
	}

	bus := events.NewBus()
	bus.Subscribe(caches)

	var redisClient *redis.Client
	var relayCancel context.CancelFunc
	if cfg.Redis.URL != "" {
		redisClient, err = openRedis(cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		instanceID := uuid.NewString()
		relayLog := logger.WithComponent("event-relay")
		relay := events.NewRelay(redisClient, cfg.Redis.Channel, instanceID, caches, relayLog)
		bus.Subscribe(relay)

		var relayCtx context.Context
		relayCtx, relayCancel = context.WithCancel(ctx)
		defer relayCancel()
		go func() {
			defer observability.RecoverPanic(relayLog, "permission event relay")
			if err := relay.Run(relayCtx); err != nil && relayCtx.Err() == nil {
				relayLog.WithError(err).Error("permission event relay stopped")
			}
		}()
		relayLog.WithField("instance_id", instanceID).Info("permission event relay started")
	} else {
		logger.Info("no redis configured, caches rely on TTL expiry across instances")
	}

	resolver := authz.NewGroupResolver(caches.Groups, caches.AppPerms)
	engine := authz.NewEngine(resolver, caches.AppPerms, caches.UserDocs, sqlStore)

	keySvc := apikey.NewService(engine, sqlStore, sqlStore, cacheCfg, cacheMetrics, logger)
	mutator := docperm.NewMutator(engine, sqlStore, sqlStore, bus, logger)

	auditLogger, err := audit.NewDBLogger(db)
	if err != nil {
		return fmt.Errorf("initializing audit log: %w", err)
	}
	auditStore := audit.NewDBStore(auditLogger)

	apiServer := api.NewServer(api.Dependencies{
		Engine:   engine,
		Resolver: resolver,
		Keys:     keySvc,
		Mutator:  mutator,
		Users:    sqlStore,
		Groups:   sqlStore,
		Perms:    sqlStore,
		DocPerms: sqlStore,
		Caches:   caches,
		Audit:    auditLogger,
		Store:    auditStore,
		Logger:   logger,
	})

	edge := []func(http.Handler) http.Handler{
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
		httputil.ContentTypeMiddleware,
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		edge = append([]func(http.Handler) http.Handler{
			httputil.CORSMiddleware(cfg.Server.CORSOrigins),
		}, edge...)
	}
	if cfg.Observability.MetricsEnabled {
		edge = append([]func(http.Handler) http.Handler{
			observability.HTTPMetricsMiddleware(metrics),
		}, edge...)
	}
	handler := httputil.Chain(edge...)(apiServer)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthServer := startHealthServer(cfg, registry, db, redisClient, logger)

	sweepLog := logger.WithComponent("key-sweeper")
	sweeper := cron.New()
	_, err = sweeper.AddFunc(cfg.APIKeys.SweepSchedule, func() {
		defer observability.RecoverPanic(sweepLog, "api key sweep")
		n, err := keySvc.DisableExpired(ctx)
		if err != nil {
			sweepLog.WithError(err).Error("expired key sweep failed")
			return
		}
		if n > 0 {
			sweepLog.WithField("disabled", n).Info("disabled expired api keys")
			event := &audit.AuditEvent{
				EventType: audit.EventTypeKeySweep,
				Status:    audit.EventStatusSuccess,
				Message:   fmt.Sprintf("disabled %d expired api keys", n),
			}
			if err := auditLogger.Log(ctx, event); err != nil {
				sweepLog.WithError(err).Error("recording key sweep audit event")
			}
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", cfg.APIKeys.SweepSchedule, err)
	}
	sweeper.Start()

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		<-sweeper.Stop().Done()
		return nil
	})
	if relayCancel != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			relayCancel()
			return nil
		})
	}
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return auditLogger.Close()
	})

	go func() {
		logger.WithField("addr", server.Addr).Info("paperstack authorization service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("http server failed")
		}
	}()

	return shutdown.WaitForShutdown()
}

// openDatabase connects to postgres, applies pool settings, and runs the
// schema migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if err := store.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// openRedis connects the permission event relay client
func openRedis(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	opts.MaxRetries = cfg.MaxRetries

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// startHealthServer serves liveness, readiness, and metrics on the separate
// health port so the main listener never gates k8s probes.
func startHealthServer(cfg *config.Config, registry *prometheus.Registry, db *sql.DB, redisClient *redis.Client, logger *observability.Logger) *http.Server {
	mux := http.NewServeMux()
	observability.RegisterHealthRoutes(mux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(mux, registry)
	}

	// Probes must answer promptly even when a dependency check hangs.
	server := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: httputil.TimeoutMiddleware(10 * time.Second)(mux),
	}
	go func() {
		logger.WithField("addr", server.Addr).Info("health endpoints listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()
	return server
}
