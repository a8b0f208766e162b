// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"fiunum/internal/domain/auth"
	"fiunum/internal/domain/reservation"
	"fiunum/internal/infrastructure/http/v1/handlers"
	"fiunum/internal/infrastructure/http/v1/middleware"
	"fiunum/internal/infrastructure/storage/postgres"
	"fiunum/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Pool is the database connection pool (for health checks).
	Pool *postgres.Pool

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// AuthService for authentication endpoints
	AuthService *auth.Service

	// ReservationService for number reservation endpoints
	ReservationService *reservation.Service
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

	baseHandler := handlers.NewBaseHandler()

	// API v1
	v1 := router.Group("/api/v1")
	{
		// Auth endpoints: public login/refresh, protected logout/me,
		// admin-only user registration.
		publicAuth := v1.Group("/auth")
		protectedAuth := v1.Group("/auth")
		protectedAuth.Use(middleware.Auth(cfg.JWTValidator))
		adminAuth := v1.Group("/auth")
		adminAuth.Use(middleware.Auth(cfg.JWTValidator))
		adminAuth.Use(middleware.RequireAdmin())

		authHandler := handlers.NewAuthHandler(baseHandler, cfg.AuthService)
		authHandler.RegisterRoutes(publicAuth, protectedAuth, adminAuth)

		// Reservation endpoints (authenticated)
		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))

		reservationHandler := handlers.NewReservationHandler(baseHandler, cfg.ReservationService)
		reservationHandler.RegisterRoutes(protected)

		// Admin endpoints
		admin := v1.Group("/admin")
		admin.Use(middleware.Auth(cfg.JWTValidator))
		admin.Use(middleware.RequireAdmin())

		adminHandler := handlers.NewAdminHandler(baseHandler, cfg.ReservationService)
		adminHandler.RegisterRoutes(admin)
	}

	return router
}
