package api

import (
	"github.com/gin-gonic/gin"

	"github.com/JustJay7/court-case-monitor/internal/config"
	"github.com/JustJay7/court-case-monitor/internal/guard"
	"github.com/JustJay7/court-case-monitor/pkg/logger"
)

// Limiters are the request limiters of the API. Heavy guards routes that
// reach the court site or the model providers.
type Limiters struct {
	General *guard.RateLimiter
	Heavy   *guard.RateLimiter
}

// SetupRoutes configures all application routes
func SetupRoutes(router *gin.Engine, deps Deps, limits Limiters, logger *logger.Logger, cfg *config.Config) {
	h := NewHandlers(deps, logger, cfg)

	api := router.Group("/api")
	if limits.General != nil {
		api.Use(guard.Middleware(limits.General))
	}

	heavy := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		if limits.Heavy == nil {
			return []gin.HandlerFunc{handler}
		}
		return []gin.HandlerFunc{guard.Middleware(limits.Heavy), handler}
	}

	{
		// Health check
		api.GET("/health", h.HealthCheck)

		// Cases
		api.POST("/cases", h.RegisterCase)
		api.GET("/cases", h.ListCases)
		api.POST("/cases/import", h.ImportCases)
		api.GET("/cases/:id", h.GetCase)
		api.DELETE("/cases/:id", h.DeactivateCase)
		api.GET("/cases/:id/orders", h.ListOrders)
		api.GET("/cases/:id/windows", h.ListCaseWindows)
		api.GET("/cases/:id/rollup", h.GetRollup)

		// Pipeline
		api.POST("/cases/:id/details", heavy(h.ExtractDetails)...)
		api.POST("/cases/:id/discover", heavy(h.DiscoverOrders)...)
		api.POST("/cases/:id/process", heavy(h.ProcessCase)...)
		api.PUT("/cases/:id/perspective", heavy(h.SetPerspective)...)
		api.POST("/cases/:id/rollup", heavy(h.GenerateRollup)...)

		// Orders
		api.GET("/orders/:id", h.GetOrder)
		api.POST("/orders/:id/retrieve", heavy(h.RetrieveOrder)...)
		api.POST("/orders/:id/extract", heavy(h.ExtractOrder)...)
		api.POST("/orders/:id/classify", heavy(h.ClassifyOrder)...)
		api.POST("/orders/:id/reset", h.ResetOrder)

		// Background tasks
		api.GET("/tasks/:id", h.GetTask)

		// Monitoring
		api.POST("/monitor/sweep", heavy(h.Sweep)...)
		api.GET("/monitor/windows", h.ActiveWindows)

		// Cache stats
		api.GET("/cache/stats", h.CacheStats)
	}
}
