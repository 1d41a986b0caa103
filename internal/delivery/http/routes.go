package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lelook/backend/config"
)

// SetupRouter creates and configures the Gin router. artifactsDir, when set, is served under /artifacts.
func SetupRouter(cfg *config.Config, handler *Handler, artifactsDir string, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	if artifactsDir != "" {
		router.Static("/artifacts", artifactsDir)
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.Server.RateLimitPerMinute))
	{
		products := v1.Group("/products")
		{
			products.POST("/search", handler.SearchProducts)
			products.POST("/compare", handler.CompareProducts)
			products.GET("/:id", handler.GetProduct)
		}

		v1.POST("/tryon", handler.TryOn)

		alerts := v1.Group("/alerts")
		{
			alerts.POST("", handler.TrackPrice)
			alerts.GET("", handler.ListAlerts)
		}
	}

	return router
}
