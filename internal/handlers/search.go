package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/retrieval"
)

type SearchHandler struct {
	log       *logger.Logger
	retriever retrieval.Searcher
}

func NewSearchHandler(log *logger.Logger, retriever retrieval.Searcher) *SearchHandler {
	return &SearchHandler{
		log:       log.With("handler", "SearchHandler"),
		retriever: retriever,
	}
}

type searchDocsRequest struct {
	Query    string   `json:"query" binding:"required"`
	K        int      `json:"k"`
	DocTypes []string `json:"doc_types"`
	Platform string   `json:"platform"`
	Region   string   `json:"region"`
}

func (h *SearchHandler) SearchDocs(c *gin.Context) {
	var req searchDocsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	results, err := h.retriever.SearchDocs(c.Request.Context(), retrieval.Query{
		Text:     req.Query,
		K:        req.K,
		DocTypes: req.DocTypes,
		Platform: req.Platform,
		Region:   req.Region,
	})
	if err != nil {
		h.log.Error("Doc search failed", "error", err)
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"results": results})
}

func (h *SearchHandler) SearchScript(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_submission_id", err)
		return
	}
	query := c.Query("q")
	k, _ := strconv.Atoi(c.Query("k"))
	results, err := h.retriever.SearchScript(c.Request.Context(), id, retrieval.Query{Text: query, K: k})
	if err != nil {
		h.log.Error("Script search failed", "submission_id", id, "error", err)
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"results": results})
}
