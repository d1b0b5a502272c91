package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/scriptdeck/greenlight-backend/internal/ingestion"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/dbctx"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/repos"
	"github.com/scriptdeck/greenlight-backend/internal/types"
)

type DocumentHandler struct {
	log      *logger.Logger
	docs     repos.DocumentRepo
	pipeline *ingestion.Pipeline
}

func NewDocumentHandler(log *logger.Logger, docs repos.DocumentRepo, pipeline *ingestion.Pipeline) *DocumentHandler {
	return &DocumentHandler{
		log:      log.With("handler", "DocumentHandler"),
		docs:     docs,
		pipeline: pipeline,
	}
}

type createDocumentRequest struct {
	Title     string         `json:"title" binding:"required"`
	Version   string         `json:"version"`
	DocType   string         `json:"doc_type" binding:"required"`
	Region    *string        `json:"region"`
	Platform  *string        `json:"platform"`
	Tags      datatypes.JSON `json:"tags"`
	SourceRef string         `json:"source_ref" binding:"required"`
}

// Create registers a reference document and ingests it synchronously so
// it is searchable on the response.
func (h *DocumentHandler) Create(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	doc := &types.Document{
		Title:     req.Title,
		Version:   req.Version,
		DocType:   req.DocType,
		Region:    req.Region,
		Platform:  req.Platform,
		Tags:      req.Tags,
		Status:    types.DocumentStatusActive,
		SourceRef: req.SourceRef,
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	created, err := h.docs.Create(dbc, []*types.Document{doc})
	if err != nil {
		h.log.Error("Create document failed", "error", err)
		RespondAppError(c, err)
		return
	}
	doc = created[0]

	report, err := h.pipeline.Run(c.Request.Context(), doc.ID, types.SourceKindDoc, doc.SourceRef)
	if err != nil {
		h.log.Error("Document ingestion failed", "document_id", doc.ID, "error", err)
		// Keep the row but park it so it never serves partial context.
		if uErr := h.docs.UpdateFields(dbc, doc.ID, map[string]interface{}{
			"status": types.DocumentStatusInactive,
		}); uErr != nil {
			h.log.Error("Failed to deactivate document after ingestion failure", "document_id", doc.ID, "error", uErr)
		}
		RespondAppError(c, err)
		return
	}
	RespondCreated(c, gin.H{"document": doc, "ingestion": report})
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docs.List(dbctx.Context{Ctx: c.Request.Context()}, c.Query("status"))
	if err != nil {
		h.log.Error("List documents failed", "error", err)
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"documents": docs})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	docs, err := h.docs.GetByIDs(dbctx.Context{Ctx: c.Request.Context()}, []uuid.UUID{id})
	if err != nil {
		h.log.Error("Get document failed", "document_id", id, "error", err)
		RespondAppError(c, err)
		return
	}
	if len(docs) == 0 {
		RespondError(c, http.StatusNotFound, "document_not_found", nil)
		return
	}
	RespondOK(c, gin.H{"document": docs[0]})
}

type updateDocumentStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus moves a document through its lifecycle; only active
// documents are retrieval-eligible.
func (h *DocumentHandler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	var req updateDocumentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	switch req.Status {
	case types.DocumentStatusActive, types.DocumentStatusInactive, types.DocumentStatusExperimental:
	default:
		RespondError(c, http.StatusBadRequest, "invalid_status", nil)
		return
	}
	if err := h.docs.UpdateFields(dbctx.Context{Ctx: c.Request.Context()}, id, map[string]interface{}{
		"status": req.Status,
	}); err != nil {
		h.log.Error("Update document status failed", "document_id", id, "error", err)
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"id": id, "status": req.Status})
}

// Reingest rebuilds a document's chunks from its source, replacing the
// old chunk set atomically.
func (h *DocumentHandler) Reingest(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	docs, err := h.docs.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil {
		h.log.Error("Get document failed", "document_id", id, "error", err)
		RespondAppError(c, err)
		return
	}
	if len(docs) == 0 {
		RespondError(c, http.StatusNotFound, "document_not_found", nil)
		return
	}
	report, err := h.pipeline.Run(c.Request.Context(), id, types.SourceKindDoc, docs[0].SourceRef)
	if err != nil {
		h.log.Error("Reingestion failed", "document_id", id, "error", err)
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"document_id": id, "ingestion": report})
}
