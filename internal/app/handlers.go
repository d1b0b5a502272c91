package app

import (
	"github.com/scriptdeck/greenlight-backend/internal/handlers"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/sse"
)

type Handlers struct {
	Document   *handlers.DocumentHandler
	Submission *handlers.SubmissionHandler
	Search     *handlers.SearchHandler
	SSE        *handlers.SSEHandler
}

func wireHandlers(log *logger.Logger, reposet Repos, serviceset Services, hub *sse.Hub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Document:   handlers.NewDocumentHandler(log, reposet.Document, serviceset.Pipeline),
		Submission: handlers.NewSubmissionHandler(log, reposet.Submission, reposet.FinalReport, serviceset.Orchestrator),
		Search:     handlers.NewSearchHandler(log, serviceset.Retriever),
		SSE:        handlers.NewSSEHandler(log, hub),
	}
}
