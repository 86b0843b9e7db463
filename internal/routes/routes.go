package routes

import (
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/docuport/portal-api/internal/config"
	"github.com/docuport/portal-api/internal/distribution"
	"github.com/docuport/portal-api/internal/metrics"
	"github.com/docuport/portal-api/internal/middleware"
	"github.com/docuport/portal-api/internal/models"
	"github.com/docuport/portal-api/internal/session"
)

// Setup configures all API routes
func Setup(app *fiber.App, cfg *config.Config, logger *logrus.Logger, middlewareManager *middleware.Manager, sessions *session.Manager, distributionService *distribution.Service) {
	// Create route handlers
	authHandler := NewAuthHandler(sessions, logger)
	documentHandler := NewDocumentHandler(distributionService, logger)
	notificationHandler := NewNotificationHandler(distributionService, logger)
	distributorHandler := NewDistributorHandler(distributionService, logger)

	// Health check endpoints (no auth required)
	app.Get("/healthz", healthCheck)
	app.Get("/readyz", readinessCheck(middlewareManager))
	app.Get("/version", versionHandler)

	// Metrics endpoint (no auth required)
	app.Get(cfg.Observability.MetricsPath, metrics.PrometheusHandler())

	// API routes with middleware
	api := app.Group("/api/v1")

	// Apply global middleware to API routes
	api.Use(metrics.HTTPMetricsMiddleware())
	api.Use(middlewareManager.ErrorLogger.Handle())
	api.Use(middlewareManager.Auth.Resolve())
	api.Use(middlewareManager.RateLimit.Handle())

	// Auth routes (login is public, session/logout work with or without a session)
	authRoutes := api.Group("/auth")
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/logout", authHandler.Logout)
	authRoutes.Get("/session", middlewareManager.Auth.RequireAuth(), authHandler.Session)

	// Document routes (authenticated; role scoping inside)
	documentRoutes := api.Group("/documents", middlewareManager.Auth.RequireAuth())
	documentRoutes.Post("/", middlewareManager.Auth.RequireRoles(models.RoleAdmin), documentHandler.Create)
	documentRoutes.Get("/", documentHandler.List)
	documentRoutes.Get("/:id", documentHandler.Get)
	documentRoutes.Get("/:id/download", documentHandler.Download)

	// Notification routes (distributor-only)
	notificationRoutes := api.Group("/notifications", middlewareManager.Auth.RequireRoles(models.RoleDistributor))
	notificationRoutes.Get("/", notificationHandler.List)
	notificationRoutes.Post("/:id/read", notificationHandler.MarkRead)

	// Distributor management routes (admin-only)
	distributorRoutes := api.Group("/distributors", middlewareManager.Auth.RequireRoles(models.RoleAdmin))
	distributorRoutes.Post("/", distributorHandler.Create)
	distributorRoutes.Get("/", distributorHandler.List)
	distributorRoutes.Put("/:email/status", distributorHandler.SetStatus)

	// 404 handler
	app.Use(notFoundHandler)
}

// healthCheck returns the health status of the service
// @Summary Health check
// @Description Check if the service is healthy
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Healthy"
// @Router /healthz [get]
func healthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "portal-api",
	})
}

// readinessCheck checks if the service is ready to accept traffic
// @Summary Readiness check
// @Description Check if the service is ready to accept traffic
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Ready"
// @Failure 503 {object} map[string]interface{} "Not ready"
// @Router /readyz [get]
func readinessCheck(middlewareManager *middleware.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Check Redis connectivity
		redisHealthCheck := middleware.RedisHealthCheck(middlewareManager.RedisClient, middlewareManager.Logger)
		if err := redisHealthCheck(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":    "not ready",
				"reason":    "redis unavailable",
				"timestamp": time.Now().UTC(),
			})
		}

		return c.JSON(fiber.Map{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
			"service":   "portal-api",
		})
	}
}

// versionHandler returns version information
// @Summary Version information
// @Description Get service version and build information
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Version info"
// @Router /version [get]
func versionHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "portal-api",
		"version": envOr("APP_VERSION", "dev"),
		"commit":  envOr("GIT_COMMIT", "unknown"),
	})
}

// notFoundHandler handles 404 errors
func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": fiber.Map{
			"code":     "NOT_FOUND",
			"message":  "The requested resource was not found",
			"path":     c.Path(),
			"trace_id": c.Get(fiber.HeaderXRequestID),
		},
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
