package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/casetrail/casetrail/pkg/api"
	"github.com/casetrail/casetrail/pkg/audit"
	"github.com/casetrail/casetrail/pkg/auth"
	"github.com/casetrail/casetrail/pkg/authz"
	"github.com/casetrail/casetrail/pkg/cases"
	"github.com/casetrail/casetrail/pkg/config"
	"github.com/casetrail/casetrail/pkg/directory"
	"github.com/casetrail/casetrail/pkg/evidence"
	"github.com/casetrail/casetrail/pkg/middleware"
	"github.com/casetrail/casetrail/pkg/observability"
)

const serviceVersion = "1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "casetrail: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", serviceVersion).Info("starting casetrail")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// OpenTelemetry
	var otelProviders *observability.OTelProviders
	if cfg.Observability.OTelEnabled {
		otelProviders, err = observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			return fmt.Errorf("init opentelemetry: %w", err)
		}
	}

	// Database
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	// Redis is shared by the permission cache and the distributed rate
	// limiter when the redis cache backend is selected.
	var redisClient *redis.Client
	if cfg.Cache.Backend == "redis" {
		redisClient, err = newRedisClient(cfg.Cache)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}

	// Metrics
	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	if metrics != nil {
		go pollDBStats(ctx, db, metrics)
	}

	// Audit trail: SQL logger always, file logger fan-out when configured
	dbLogger, err := audit.NewDBLogger(db)
	if err != nil {
		return fmt.Errorf("init audit logger: %w", err)
	}
	var auditLogger audit.Logger = dbLogger
	if cfg.Audit.FilePath != "" {
		fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{BasePath: cfg.Audit.FilePath, Rotate: true})
		if err != nil {
			return fmt.Errorf("init audit file logger: %w", err)
		}
		defer fileLogger.Close()
		auditLogger = audit.NewMultiLogger(dbLogger, fileLogger)
	}
	auditStore := audit.NewDBStore(dbLogger)

	// Authorization
	var cache authz.PermissionCache
	if redisClient != nil {
		cache = authz.NewRedisCache(redisClient, cfg.Cache.TTL)
	} else {
		cache = authz.NewMemoryCache(cfg.Cache.MemorySize, cfg.Cache.TTL)
	}
	authzStore := authz.NewStore(db)
	resolver := authz.NewResolver(authzStore, cache, logger, metrics)
	gate := authz.NewGate(resolver, audit.NewDenialRecorder(auditLogger), logger, metrics)

	// Evidence payload storage
	var objects evidence.ObjectStore
	switch cfg.Evidence.Backend {
	case "s3":
		objects, err = evidence.NewS3Store(ctx, evidence.S3Config{
			Bucket:       cfg.Evidence.S3Bucket,
			Region:       cfg.Evidence.S3Region,
			Endpoint:     cfg.Evidence.S3Endpoint,
			AccessKey:    cfg.Evidence.S3AccessKey,
			SecretKey:    cfg.Evidence.S3SecretKey,
			UsePathStyle: cfg.Evidence.S3UsePathStyle,
		})
	default:
		objects, err = evidence.NewFilesystemStore(cfg.Evidence.FilesystemRoot)
	}
	if err != nil {
		return fmt.Errorf("init evidence storage: %w", err)
	}

	// Services
	tokens := auth.NewTokenManager(db)
	dirService := directory.NewPostgresService(db, authzStore, resolver, auditLogger, logger)
	caseService := cases.NewPostgresService(db, authzStore, resolver, objects, auditLogger, logger)

	// Rate limiting
	var rateLimiter func(http.Handler) http.Handler
	if redisClient != nil {
		rateLimiter = middleware.NewDistributedRateLimitMiddleware(redisClient).Handler
	} else {
		rl := middleware.NewRateLimitMiddleware()
		rl.StartCleanup(ctx)
		rateLimiter = rl.Handler
	}

	server := api.NewServer(api.Dependencies{
		Logger:       logger,
		Metrics:      metrics,
		AuditLogger:  auditLogger,
		AuditStore:   auditStore,
		TokenManager: tokens,
		Directory:    dirService,
		Cases:        caseService,
		AuthzStore:   authzStore,
		Gate:         gate,
		RateLimiter:  rateLimiter,
		Settings: &api.Settings{
			EvidenceBackend:     cfg.Evidence.Backend,
			EvidenceMaxBytes:    cfg.Evidence.MaxUploadBytes,
			CacheBackend:        cfg.Cache.Backend,
			AuditRetentionDays:  cfg.Audit.RetentionDays,
			MaintenanceSchedule: cfg.Audit.MaintenanceSchedule,
			Version:             serviceVersion,
		},
	})

	var apiHandler http.Handler = server
	if cfg.Observability.OTelEnabled {
		apiHandler = otelhttp.NewHandler(apiHandler, "casetrail-api")
	}

	// Scheduled maintenance: audit retention purge, grant integrity
	// sweep, expired token cleanup
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Audit.MaintenanceSchedule, func() {
		runMaintenance(context.Background(), cfg, logger, auditStore, resolver, tokens)
	}); err != nil {
		return fmt.Errorf("schedule maintenance: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Two listeners: the API and an unauthenticated health/metrics port
	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      apiHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     healthMux,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("api listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("api server shutdown failed")
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("health server shutdown failed")
		}
		if otelProviders != nil {
			if err := observability.ShutdownOTel(shutdownCtx, otelProviders, logger); err != nil {
				logger.WithError(err).Error("otel shutdown failed")
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("casetrail stopped")
	return nil
}

func pollDBStats(ctx context.Context, db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.UpdateDBStats(db.Stats())
		case <-ctx.Done():
			return
		}
	}
}

func runMaintenance(ctx context.Context, cfg *config.Config, logger *observability.Logger, auditStore audit.Store, resolver *authz.Resolver, tokens *auth.TokenManager) {
	defer observability.RecoverPanic(logger, "maintenance job")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	if cfg.Audit.RetentionDays > 0 {
		purged, err := auditStore.Cleanup(ctx, audit.RetentionPolicy{RetentionDays: cfg.Audit.RetentionDays})
		if err != nil {
			logger.WithError(err).Error("audit retention purge failed")
		} else if purged > 0 {
			logger.WithField("purged", purged).Info("audit retention purge complete")
		}
	}

	if counts, err := resolver.SweepIntegrity(ctx); err != nil {
		logger.WithError(err).Error("grant integrity sweep failed")
	} else if counts.Total() > 0 {
		logger.WithField("dangling_grants", counts.Total()).Warn("grant integrity sweep found dangling grants")
	}

	if removed, err := tokens.CleanupExpiredTokens(ctx); err != nil {
		logger.WithError(err).Error("token cleanup failed")
	} else if removed > 0 {
		logger.WithField("removed", removed).Info("expired token cleanup complete")
	}
}

func newRedisClient(cfg config.CacheConfig) (*redis.Client, error) {
	if strings.HasPrefix(cfg.RedisURL, "redis://") || strings.HasPrefix(cfg.RedisURL, "rediss://") {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if cfg.RedisPoolSize > 0 {
			opts.PoolSize = cfg.RedisPoolSize
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	}), nil
}
