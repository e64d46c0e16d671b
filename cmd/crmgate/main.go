package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/crmgate/pkg/api"
	"github.com/platinummonkey/crmgate/pkg/audit"
	"github.com/platinummonkey/crmgate/pkg/authz"
	"github.com/platinummonkey/crmgate/pkg/config"
	"github.com/platinummonkey/crmgate/pkg/crm"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/middleware"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/reports"
	"github.com/platinummonkey/crmgate/pkg/scope"
	"github.com/platinummonkey/crmgate/pkg/storage/postgres"
	"github.com/platinummonkey/crmgate/pkg/tenants"
	"github.com/platinummonkey/crmgate/pkg/users"
)

const maxBodyBytes = 1 << 20

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("crmgate exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	otel, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return err
	}

	cm, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfig{
		PrimaryURL:   cfg.Database.URL,
		ReplicaURLs:  cfg.Database.ReplicaURLs,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		Timeout:      cfg.Database.ConnectTimeout,
		MaxLifetime:  cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return err
	}
	db := cm.Primary()

	if cfg.Database.AutoMigrate {
		applied, err := postgres.Migrate(ctx, db)
		if err != nil {
			return err
		}
		logger.Infof("Applied %d migration(s)", applied)
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.DefaultRegisterer)
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = postgres.NewRedisClient(ctx, postgres.RedisConfig{
			URL:        cfg.Redis.URL,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		if err != nil {
			return err
		}
		logger.Info("Using Redis rate limiter")
	}

	tokens, err := identity.NewTokenService(identity.TokenConfig{
		Secret:     []byte(cfg.Auth.JWTSecret),
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
	})
	if err != nil {
		return err
	}

	var idTokens identity.IDTokenVerifier
	if cfg.Auth.FirebaseProjectID != "" {
		verifier, err := identity.NewFirebaseVerifier(ctx, cfg.Auth.FirebaseProjectID)
		if err != nil {
			return err
		}
		idTokens = verifier
		logger.Infof("Accepting Firebase ID tokens for project %s", cfg.Auth.FirebaseProjectID)
	}

	// Hierarchy loads go through a store without an invalidator; writes go
	// through userStore, which invalidates the calculator's snapshots.
	scopes := scope.NewCalculator(users.NewStore(db, nil),
		scope.WithSnapshotCache(cfg.Scope.CacheTTL, cfg.Scope.CacheSize),
		scope.WithMetrics(metrics),
	)
	userStore := users.NewStore(db, scopes)
	tenantStore := tenants.NewStore(db)
	gate := authz.NewGate(scopes, metrics)
	hasher := users.NewHasher(0)

	services := api.Services{
		Auth:    users.NewAuthService(userStore, tokens, hasher, metrics),
		Users:   users.NewService(userStore, gate, hasher),
		Tenants: tenants.NewService(tenantStore, gate),
		CRM:     crm.NewService(crm.NewStore(db), gate, userStore),
		Reports: reports.NewService(cm.Replica(), tenantStore, gate, cfg.Reports.FanOutLimit),
	}

	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		return err
	}
	auditLogger := audit.NewMultiLogger(audit.NewLogLogger(logger), dbAudit)

	apiLimiter, loginLimiter := newLimiters(ctx, cfg.Redis, redisClient)
	server := api.NewServer(services, identity.NewResolver(tokens, userStore, idTokens), api.Options{
		Logger:         logger,
		Metrics:        metrics,
		Audit:          auditLogger,
		APILimiter:     apiLimiter,
		LoginLimiter:   loginLimiter,
		AllowedOrigins: cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   maxBodyBytes,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	opsRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(opsRouter, observability.NewHealthChecker(db, redisClient))
	if metrics != nil {
		observability.RegisterMetricsEndpoint(opsRouter, prometheus.DefaultGatherer)
	}
	opsServer := &http.Server{
		Addr:              cfg.Server.HealthAddr(),
		Handler:           opsRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	maintenanceCtx, stopMaintenance := context.WithCancel(ctx)
	cm.StartMaintenance(maintenanceCtx, 30*time.Second, metrics)

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("ops server", opsServer.Shutdown)
	shutdown.Register("maintenance", func(context.Context) error {
		stopMaintenance()
		return nil
	})
	shutdown.Register("audit", func(context.Context) error { return auditLogger.Close() })
	shutdown.Register("database", func(context.Context) error { return cm.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	if otel != nil {
		shutdown.Register("otel", otel.Shutdown)
	}

	serveErr := make(chan error, 2)
	go serve(logger, "ops", opsServer, serveErr)
	go serve(logger, "api", httpServer, serveErr)

	waitErr := make(chan error, 1)
	go func() { waitErr <- shutdown.WaitForSignal(ctx) }()

	select {
	case err := <-serveErr:
		_ = shutdown.Shutdown(context.Background())
		return err
	case err := <-waitErr:
		return err
	}
}

func serve(logger *observability.Logger, name string, srv *http.Server, errs chan<- error) {
	logger.Infof("Starting %s server on %s", name, srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs <- err
	}
}

// newLimiters returns the general and login limiters. Without Redis the
// buckets live in this process and are swept until ctx ends.
func newLimiters(ctx context.Context, cfg config.RedisConfig, client *redis.Client) (middleware.Limiter, middleware.Limiter) {
	apiConfig := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimitPerMinute,
		WindowDuration:    time.Minute,
		BurstSize:         cfg.RateLimitBurst,
	}
	if client != nil {
		return middleware.NewDistributedRateLimiter(client, apiConfig, "crmgate:ratelimit:api"),
			middleware.NewDistributedRateLimiter(client, middleware.LoginRateLimitConfig(), "crmgate:ratelimit:login")
	}

	apiLimiter := middleware.NewRateLimiter(apiConfig)
	loginLimiter := middleware.NewRateLimiter(middleware.LoginRateLimitConfig())
	apiLimiter.StartCleanup(ctx)
	loginLimiter.StartCleanup(ctx)
	return apiLimiter, loginLimiter
}
