// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"invclose/internal/domain/closing"
	"invclose/internal/infrastructure/http/v1/handlers"
	"invclose/internal/infrastructure/http/v1/middleware"
	"invclose/internal/infrastructure/storage/postgres"
	"invclose/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Pool is the database connection pool (for health checks).
	Pool *postgres.Pool

	// Logger for request logging.
	Logger *logger.Logger

	// JWTValidator for token validation.
	JWTValidator middleware.JWTValidator

	// Closing engine services.
	Daily   *closing.DailyProcessor
	Monthly *closing.MonthlyProcessor
	Recalc  *closing.Coordinator
	Query   *closing.QueryService
	Guard   *closing.Guard

	// Audit serves the closing audit trail.
	Audit *postgres.AuditService

	// IdempotencyStore enables idempotency middleware when non-nil.
	IdempotencyStore *postgres.IdempotencyStore
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	// API v1
	apiV1 := router.Group("/api/v1")
	{
		protected := apiV1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))
		if cfg.IdempotencyStore != nil {
			protected.Use(middleware.Idempotency(cfg.IdempotencyStore))
		}

		registerClosingRoutes(protected, cfg)
	}

	return router
}

// registerClosingRoutes registers closing engine endpoints.
func registerClosingRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	baseHandler := handlers.NewBaseHandler()
	handler := handlers.NewClosingHandler(baseHandler, cfg.Daily, cfg.Monthly, cfg.Recalc, cfg.Query, cfg.Guard)
	auditHandler := handlers.NewAuditHandler(baseHandler, cfg.Audit)

	group := rg.Group("/closing")
	{
		group.GET("/daily", handler.GetDaily)
		group.POST("/daily", handler.CloseDaily)
		group.GET("/daily-status-by-month", handler.DailyStatusByMonth)

		group.GET("/monthly", handler.GetMonthly)
		group.POST("/monthly", handler.CloseMonthly)
		group.GET("/monthly-status-by-year", handler.MonthlyStatusByYear)

		// Recalculation rewrites closed history; admin only.
		group.POST("/daily/recalculate", middleware.RequireRole("admin"), handler.Recalculate)

		group.GET("/current-position", handler.CurrentPosition)
		group.GET("/month-closed", handler.MonthClosed)

		group.GET("/audit", auditHandler.History)
	}
}
