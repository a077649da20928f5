// Package routes defines the HTTP routes of the document service.
package routes

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/unifiedui/mongo-odm/docs"
	"github.com/unifiedui/mongo-odm/internal/api/handlers"
	"github.com/unifiedui/mongo-odm/internal/api/middleware"
)

// BasePath prefixes every route.
const BasePath = "/api/v1/odm"

// Config holds the dependencies for setting up routes.
type Config struct {
	HealthHandler    *handlers.HealthHandler
	DocumentsHandler *handlers.DocumentsHandler
	// FilesHandler is optional; file routes are skipped when nil.
	FilesHandler *handlers.FilesHandler
}

// Setup configures all routes on the Gin engine.
func Setup(r *gin.Engine, cfg *Config) {
	v1 := r.Group(BasePath)
	{
		v1.GET("/health", cfg.HealthHandler.Health)
		v1.GET("/ready", cfg.HealthHandler.Ready)
		v1.GET("/live", cfg.HealthHandler.Live)

		v1.GET("/collections", cfg.DocumentsHandler.ListCollections)

		documents := v1.Group("/collections/:collection/documents")
		{
			documents.GET("", cfg.DocumentsHandler.Search)
			documents.POST("", cfg.DocumentsHandler.Create)
			documents.GET("/:id", cfg.DocumentsHandler.Get)
			documents.PUT("/:id", cfg.DocumentsHandler.Update)
			documents.DELETE("/:id", cfg.DocumentsHandler.Delete)
			documents.POST("/:id/counters", cfg.DocumentsHandler.Counters)
		}

		if cfg.FilesHandler != nil {
			files := v1.Group("/files")
			{
				files.GET("", cfg.FilesHandler.List)
				files.POST("", cfg.FilesHandler.Upload)
				files.GET("/:id", cfg.FilesHandler.Download)
				files.DELETE("/:id", cfg.FilesHandler.Delete)
			}
		}
	}

	// Swagger documentation endpoint
	r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.NoRoute(middleware.NotFound())
	r.NoMethod(middleware.MethodNotAllowed())
}

// SetupWithMiddleware sets up routes with common middleware.
func SetupWithMiddleware(r *gin.Engine, cfg *Config, loggingMw *middleware.LoggingMiddleware, errorMw *middleware.ErrorMiddleware) {
	r.Use(loggingMw.RequestLogger())
	r.Use(loggingMw.Logger())
	r.Use(errorMw.Recovery())
	r.Use(gin.Recovery())

	Setup(r, cfg)
}
