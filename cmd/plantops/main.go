package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/plantops/pkg/api"
	"github.com/platinummonkey/plantops/pkg/async"
	"github.com/platinummonkey/plantops/pkg/audit"
	"github.com/platinummonkey/plantops/pkg/auth"
	"github.com/platinummonkey/plantops/pkg/authz"
	"github.com/platinummonkey/plantops/pkg/claims"
	"github.com/platinummonkey/plantops/pkg/config"
	"github.com/platinummonkey/plantops/pkg/directory"
	"github.com/platinummonkey/plantops/pkg/middleware"
	"github.com/platinummonkey/plantops/pkg/observability"
	"github.com/platinummonkey/plantops/pkg/operations"
	"github.com/platinummonkey/plantops/pkg/rbac"
	"github.com/platinummonkey/plantops/pkg/storage"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	logger = observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "plantops")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := observability.InitTracing(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	db, err := storage.Open(ctx, storage.Config{
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxLifetime:  cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		migrations := append(rbac.Migrations(), operations.Migrations()...)
		migrations = append(migrations, audit.Migrations()...)
		if err := storage.Migrate(ctx, db, logger, migrations); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Cache.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("Redis is unreachable; identity lookups will miss until it recovers")
		}
		defer redisClient.Close()
	}

	var (
		auditStore *audit.PostgresStore
		auditQueue *async.Queue
		auditLog   audit.Logger
		pruner     *audit.Pruner
	)
	if cfg.Audit.Enabled {
		auditStore = audit.NewPostgresStore(db)
		auditQueue = async.NewQueue("audit", 2, 1024, 5*time.Second, logger)
		auditLog = audit.NewAsyncLogger(
			audit.NewMultiLogger(auditStore, audit.NewLogSink(logger.WithField("component", "audit"))),
			auditQueue,
		)
		if cfg.Audit.PruneSchedule != "" {
			pruner, err = audit.NewPruner(auditStore, cfg.Audit.Retention, cfg.Audit.PruneSchedule, logger)
			if err != nil {
				return err
			}
			pruner.Start()
		}
	}

	store := rbac.NewStore(db)
	permissions := rbac.NewCachingChecker(store, cfg.Cache.Size, time.Minute)

	// identity cache: shared in Redis when configured, otherwise per process
	var identities claims.IdentityCache
	if redisClient != nil {
		identities = claims.NewRedisIdentityCache(redisClient, cfg.Cache.TTL, logger, metrics)
	} else {
		identities = claims.NewLRUIdentityCache(cfg.Cache.Size, cfg.Cache.TTL, metrics)
	}

	var (
		syncer    *directory.Syncer
		scheduler *directory.Scheduler
	)
	if cfg.Directory.Enabled {
		client := directory.NewClient(ctx, directory.ClientConfig{
			BaseURL:      cfg.Directory.BaseURL,
			TokenURL:     cfg.Directory.TokenURL,
			ClientID:     cfg.Directory.ClientID,
			ClientSecret: cfg.Directory.ClientSecret,
			Scopes:       cfg.Directory.Scopes,
			Timeout:      cfg.Directory.Timeout,
		})
		syncer = directory.NewSyncer(client, store, directory.SyncerConfig{
			GroupID:     cfg.Directory.GroupID,
			DefaultRole: cfg.Directory.DefaultRole,
			Timeout:     cfg.Directory.Timeout,
			Logger:      logger,
			Metrics:     metrics,
			Audit:       auditLog,
		})
		// deactivated users must not keep a cached role
		syncer.OnSync(func(context.Context, auth.SyncResult) { permissions.Invalidate() })
		syncer.OnSync(claims.EvictDeactivated(identities))

		if cfg.Directory.Schedule != "" {
			scheduler, err = directory.NewScheduler(syncer, cfg.Directory.Schedule, logger)
			if err != nil {
				return err
			}
			scheduler.Start()
		}
	} else {
		logger.Warn("Directory sync is disabled; unknown object ids fail without a resync")
	}

	var directorySync claims.DirectorySync
	if syncer != nil {
		directorySync = syncer
	}
	transformer := claims.NewTransformer(store, directorySync, identities, claims.Config{
		Environment: cfg.Auth.Environment,
		Logger:      logger,
		Metrics:     metrics,
	})

	var verifier auth.TokenVerifier
	if cfg.Auth.IssuerURL != "" {
		oidcVerifier, err := auth.NewOIDCVerifier(ctx, auth.OIDCConfig{
			IssuerURL: cfg.Auth.IssuerURL,
			Audience:  cfg.Auth.Audience,
		})
		if err != nil {
			return err
		}
		verifier = oidcVerifier
	}
	if cfg.Auth.AnonymousMode {
		logger.Warn("Anonymous mode is enabled; every request is authorized")
	}

	var areas authz.AreaResolver = authz.DefaultAreaMap()
	if cfg.Auth.AreaMapFile != "" {
		watcher, err := authz.NewAreaWatcher(cfg.Auth.AreaMapFile, logger)
		if err != nil {
			return err
		}
		async.Go(ctx, logger, "area map watcher", watcher.Run)
		areas = watcher
	}

	authorizer := authz.NewAuthorizer(permissions, areas, authz.Options{
		AnonymousMode: cfg.Auth.AnonymousMode,
		Logger:        logger,
		Metrics:       metrics,
		Audit:         auditLog,
	})

	var limiter middleware.Limiter
	if cfg.Server.RateLimitPerMinute > 0 {
		limits := middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Server.RateLimitPerMinute,
			WindowDuration:    time.Minute,
			BurstSize:         cfg.Server.RateLimitBurst,
		}
		if redisClient != nil {
			limiter = middleware.NewRedisLimiter(redisClient, limits, "")
		} else {
			local := middleware.NewLocalLimiter(limits)
			local.StartCleanup(ctx)
			limiter = local
		}
	}

	deps := api.Dependencies{
		Services:      operations.NewPostgresServices(db),
		Users:         store,
		Roles:         store,
		Authenticator: middleware.NewAuthenticator(verifier, transformer, cfg.Auth.AnonymousMode),
		Authorizer:    authorizer,
		Limiter:       limiter,
		Logger:        logger,
		Metrics:       metrics,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
		OnRolesChange: permissions.Invalidate,
		Audit:         auditLog,
	}
	if auditStore != nil {
		deps.AuditEvents = auditStore
	}
	if syncer != nil {
		deps.Directory = syncer
	}
	if tp != nil {
		deps.TracingService = cfg.Observability.OTelServiceName
	}
	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewServer(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	health := observability.NewHealthChecker(db, redisClient).WithVersion(version)
	if auditQueue != nil {
		health.AddCheck("audit_queue", false, func(context.Context) error {
			queued, capacity := auditQueue.Backlog()
			if queued*10 >= capacity*9 {
				return fmt.Errorf("%w: %d of %d slots used, %d events dropped", observability.ErrDegraded, queued, capacity, auditQueue.Dropped())
			}
			return nil
		})
	}
	observability.RegisterHealthRoutes(healthMux, health)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
		async.Go(ctx, logger, "pool stats", func(ctx context.Context) error {
			recordPoolStats(ctx, db, metrics)
			return nil
		})
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	if scheduler != nil {
		shutdown.RegisterShutdownFunc("directory-scheduler", scheduler.Stop)
	}
	if pruner != nil {
		shutdown.RegisterShutdownFunc("audit-pruner", pruner.Stop)
	}
	if auditQueue != nil {
		shutdown.RegisterShutdownFunc("audit-queue", auditQueue.Shutdown)
	}
	shutdown.RegisterShutdownFunc("tracing", func(ctx context.Context) error {
		return observability.ShutdownTracing(ctx, tp)
	})

	serverErrs := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		go func(srv *http.Server) {
			logger.WithField("addr", srv.Addr).Info("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrs <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	logger.WithFields(map[string]interface{}{
		"version":   version,
		"anonymous": cfg.Auth.AnonymousMode,
		"directory": cfg.Directory.Enabled,
		"audit":     cfg.Audit.Enabled,
	}).Info("plantops started")

	// a server that fails to listen triggers the same shutdown as a signal
	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()
	failed := make(chan error, 1)
	go func() {
		select {
		case err := <-serverErrs:
			failed <- err
			stopWaiting()
		case <-waitCtx.Done():
		}
	}()

	if err := shutdown.WaitForShutdown(waitCtx); err != nil {
		return err
	}
	select {
	case err := <-failed:
		return err
	default:
		return nil
	}
}

func recordPoolStats(ctx context.Context, db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			observability.RecordDBStats(db, metrics)
		case <-ctx.Done():
			return
		}
	}
}
