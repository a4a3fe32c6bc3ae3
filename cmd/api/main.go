// Pivota | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pivota/accounts-api/internal/account"
	"github.com/pivota/accounts-api/internal/auth"
	"github.com/pivota/accounts-api/internal/config"
	"github.com/pivota/accounts-api/internal/core"
	"github.com/pivota/accounts-api/internal/health"
	"github.com/pivota/accounts-api/internal/middleware"
	"github.com/pivota/accounts-api/internal/policy"
	"github.com/pivota/accounts-api/internal/server"
)

const (
	drainDelay    = 5 * time.Second
	purgeInterval = 1 * time.Hour
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	generateKeys := flag.Bool(
		"generate-keys", false, "generate a signing key pair and exit")
	flag.Parse()

	if *generateKeys {
		cfg, err := config.Load(*configPath)
		if err != nil {
			slog.Error("load config", "error", err)
			os.Exit(1)
		}
		if err := auth.GenerateKeyPair(
			cfg.JWT.PrivateKeyPath,
			cfg.JWT.PublicKeyPath,
		); err != nil {
			slog.Error("generate key pair", "error", err)
			os.Exit(1)
		}
		slog.Info("key pair generated",
			"private_key", cfg.JWT.PrivateKeyPath,
			"public_key", cfg.JWT.PublicKeyPath,
		)
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	issuer, err := auth.NewTokenIssuer(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("token issuer initialized",
		"algorithm", "ES256",
		"key_id", issuer.KeyID(),
	)

	accountRepo := account.NewRepository(db.DB)
	accountSvc := account.NewService(accountRepo)

	tokenRepo := auth.NewTokenRepository(db.DB)
	authSvc := auth.NewService(
		accountSvc,
		tokenRepo,
		issuer,
		policy.DefaultEngine(),
	)
	authHandler := auth.NewHandler(authSvc)
	guard := auth.NewGuard(issuer, accountSvc)

	healthHandler := health.NewHandler(
		health.Dependency{
			Name:   "database",
			Pinger: db,
			Stats: func() map[string]any {
				s := db.Stats()
				return map[string]any{
					"open_conns":   s.OpenConnections,
					"in_use":       s.InUse,
					"idle":         s.Idle,
					"wait_count":   s.WaitCount,
					"max_lifetime": s.MaxLifetimeClosed,
				}
			},
		},
		health.Dependency{
			Name:   "redis",
			Pinger: redis,
			Stats: func() map[string]any {
				s := redis.PoolStats()
				return map[string]any{
					"hits":        s.Hits,
					"misses":      s.Misses,
					"timeouts":    s.Timeouts,
					"total_conns": s.TotalConns,
					"idle_conns":  s.IdleConns,
				}
			},
		},
	)

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.PerMinute(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
			),
			FailOpen: true,
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.App.Environment == "production"))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	router.Get("/.well-known/jwks.json", issuer.JWKSHandler())

	authenticator := middleware.Authenticator(guard)
	planLimiter := middleware.PlanTierRateLimiter(
		redis.Client,
		middleware.DefaultPlanTiers,
	)
	protected := func(next http.Handler) http.Handler {
		return authenticator(planLimiter(next))
	}

	router.Route("/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, protected)
	})

	go purgeExpiredTokens(ctx, authSvc, logger)

	healthHandler.SetReady(true)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

// purgeExpiredTokens sweeps expired refresh tokens so sessions that were
// never explicitly logged out do not accumulate forever.
func purgeExpiredTokens(
	ctx context.Context,
	svc *auth.Service,
	logger *slog.Logger,
) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := svc.PurgeExpiredTokens(ctx)
			if err != nil {
				logger.Warn("purge expired tokens", "error", err)
				continue
			}
			if purged > 0 {
				logger.Info("purged expired refresh tokens", "count", purged)
			}
		}
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
