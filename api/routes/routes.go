package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/rag-service/api/handlers"
	"github.com/feichai0017/rag-service/api/middleware"
	"github.com/feichai0017/rag-service/pkg/logger"
)

// SetupRoutes registers middleware and all routes on r.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, allowOrigins []string, log logger.Logger) {
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(allowOrigins))

	r.GET("/healthz", h.Health.Live)
	r.GET("/readyz", h.Health.Ready)

	api := r.Group("/api")

	docs := api.Group("/documents")
	{
		docs.GET("", h.Document.List)
		docs.POST("", h.Document.Upload)
		docs.GET("/:id", h.Document.Get)
		docs.GET("/:id/download", h.Document.Download)
		docs.DELETE("/:id", h.Document.Delete)
	}

	qa := api.Group("/qa")
	{
		qa.GET("", h.Question.List)
		qa.POST("", h.Question.Ask)
		qa.GET("/:id", h.Question.Get)
		qa.DELETE("/:id", h.Question.Delete)
	}
}
