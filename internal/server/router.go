package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/scriptdeck/greenlight-backend/internal/handlers"
)

type RouterConfig struct {
	AllowOrigins      []string
	DocumentHandler   *handlers.DocumentHandler
	SubmissionHandler *handlers.SubmissionHandler
	SearchHandler     *handlers.SearchHandler
	SSEHandler        *handlers.SSEHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Documents
		api.POST("/documents", cfg.DocumentHandler.Create)
		api.GET("/documents", cfg.DocumentHandler.List)
		api.GET("/documents/:id", cfg.DocumentHandler.Get)
		api.PATCH("/documents/:id/status", cfg.DocumentHandler.UpdateStatus)
		api.POST("/documents/:id/reingest", cfg.DocumentHandler.Reingest)

		// Submissions
		api.POST("/submissions", cfg.SubmissionHandler.Create)
		api.GET("/submissions", cfg.SubmissionHandler.List)
		api.GET("/submissions/:id", cfg.SubmissionHandler.Get)
		api.POST("/submissions/:id/run", cfg.SubmissionHandler.Run)
		api.GET("/submissions/:id/report", cfg.SubmissionHandler.GetReport)
		api.GET("/submissions/:id/search", cfg.SearchHandler.SearchScript)

		// Library search
		api.POST("/search/docs", cfg.SearchHandler.SearchDocs)

		// Review progress
		api.GET("/sse/stream", cfg.SSEHandler.Stream)
	}

	return router
}
