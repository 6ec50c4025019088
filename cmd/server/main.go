// Package main is the entry point for the invclose API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"invclose/internal/domain/auth"
	"invclose/internal/domain/closing"
	"invclose/internal/domain/lock"
	v1 "invclose/internal/infrastructure/http/v1"
	"invclose/internal/infrastructure/locking"
	"invclose/internal/infrastructure/storage/postgres"
	"invclose/internal/infrastructure/storage/postgres/closing_repo"
	"invclose/internal/infrastructure/storage/postgres/ledger_repo"
	"invclose/pkg/logger"
)

func main() {
	// Local development convenience; ignored when the file is absent.
	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting invclose server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	if maxConns := getEnvInt("DB_MAX_CONNS", 0); maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Repositories ---
	closingRepo := closing_repo.New(txManager)
	ledgerReader := ledger_repo.New(txManager)

	// --- Audit trail ---
	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}

	// --- Lock manager ---
	locks, err := buildLockManager(ctx, pool, log)
	if err != nil {
		log.Fatalw("failed to initialize lock manager", "error", err)
	}

	// --- Closing engine ---
	daily := closing.NewDailyProcessor(closingRepo, ledgerReader, locks, txManager, auditService)
	monthly := closing.NewMonthlyProcessor(closingRepo, ledgerReader, locks, txManager, auditService)
	recalc := closing.NewCoordinator(closingRepo, ledgerReader, locks, txManager, auditService)
	query := closing.NewQueryService(closingRepo, ledgerReader)
	guard := closing.NewGuard(monthly)

	// --- JWT Service ---
	jwtSecret := getEnv("JWT_SECRET", "your-secret-key-change-in-production")
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(jwtSecret))

	// --- Idempotency ---
	var idemStore *postgres.IdempotencyStore
	if getEnv("IDEMPOTENCY_ENABLED", "true") == "true" {
		ttl := getEnvDuration("IDEMPOTENCY_TTL", 10*time.Minute)
		idemStore = postgres.NewIdempotencyStore(txManager, ttl)
		go cleanupIdempotencyKeys(ctx, idemStore)
	}

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:             pool,
		Logger:           log,
		JWTValidator:     jwtService,
		Daily:            daily,
		Monthly:          monthly,
		Recalc:           recalc,
		Query:            query,
		Guard:            guard,
		Audit:            auditService,
		IdempotencyStore: idemStore,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// buildLockManager picks the per-key lock backend from LOCK_BACKEND:
// postgres (advisory locks, default), redis, or local (single instance only).
func buildLockManager(ctx context.Context, pool *postgres.Pool, log *logger.Logger) (lock.Manager, error) {
	backend := getEnv("LOCK_BACKEND", "postgres")
	switch backend {
	case "postgres":
		return postgres.NewAdvisoryLockManager(pool), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		ttl := getEnvDuration("LOCK_TTL", 0)
		log.Infow("using redis lock backend", "addr", client.Options().Addr)
		return locking.NewRedisManager(client, ttl), nil
	case "local":
		log.Warn("using in-process lock backend; do not run multiple instances")
		return locking.NewLocalManager(), nil
	default:
		return nil, fmt.Errorf("unknown LOCK_BACKEND %q", backend)
	}
}

// cleanupIdempotencyKeys periodically removes expired idempotency keys.
func cleanupIdempotencyKeys(ctx context.Context, store *postgres.IdempotencyStore) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		removed, err := store.CleanupExpired(ctx)
		if err != nil {
			logger.Warn(ctx, "idempotency cleanup failed", "error", err)
			continue
		}
		if removed > 0 {
			logger.Debug(ctx, "idempotency keys cleaned up", "removed", removed)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
