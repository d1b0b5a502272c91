package app

import (
	"github.com/gin-gonic/gin"

	"github.com/scriptdeck/greenlight-backend/internal/server"
)

func wireRouter(cfg Config, handlerset Handlers) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		AllowOrigins:      cfg.AllowOrigins,
		DocumentHandler:   handlerset.Document,
		SubmissionHandler: handlerset.Submission,
		SearchHandler:     handlerset.Search,
		SSEHandler:        handlerset.SSE,
	})
}
