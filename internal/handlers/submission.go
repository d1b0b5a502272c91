package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/scriptdeck/greenlight-backend/internal/pkg/dbctx"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/repos"
	"github.com/scriptdeck/greenlight-backend/internal/review"
	"github.com/scriptdeck/greenlight-backend/internal/types"
)

type SubmissionHandler struct {
	log          *logger.Logger
	submissions  repos.SubmissionRepo
	reports      repos.FinalReportRepo
	orchestrator *review.Orchestrator
}

func NewSubmissionHandler(log *logger.Logger, submissions repos.SubmissionRepo, reports repos.FinalReportRepo, orchestrator *review.Orchestrator) *SubmissionHandler {
	return &SubmissionHandler{
		log:          log.With("handler", "SubmissionHandler"),
		submissions:  submissions,
		reports:      reports,
		orchestrator: orchestrator,
	}
}

type createSubmissionRequest struct {
	Writer       string         `json:"writer" binding:"required"`
	Title        string         `json:"title" binding:"required"`
	Format       string         `json:"format" binding:"required"`
	DraftVersion string         `json:"draft_version"`
	Genre        string         `json:"genre"`
	Region       string         `json:"region"`
	Platform     string         `json:"platform"`
	SourceRef    string         `json:"source_ref" binding:"required"`
	Metadata     datatypes.JSON `json:"metadata"`
}

func (h *SubmissionHandler) Create(c *gin.Context) {
	var req createSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	sub := &types.Submission{
		Writer:       req.Writer,
		Title:        req.Title,
		Format:       req.Format,
		DraftVersion: req.DraftVersion,
		Genre:        req.Genre,
		Region:       req.Region,
		Platform:     req.Platform,
		Status:       types.SubmissionStatusQueued,
		SourceRef:    req.SourceRef,
		Metadata:     req.Metadata,
	}
	created, err := h.submissions.Create(dbctx.Context{Ctx: c.Request.Context()}, []*types.Submission{sub})
	if err != nil {
		h.log.Error("Create submission failed", "error", err)
		RespondAppError(c, err)
		return
	}
	RespondCreated(c, gin.H{"submission": created[0]})
}

func (h *SubmissionHandler) List(c *gin.Context) {
	subs, err := h.submissions.List(dbctx.Context{Ctx: c.Request.Context()}, c.Query("status"))
	if err != nil {
		h.log.Error("List submissions failed", "error", err)
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"submissions": subs})
}

func (h *SubmissionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_submission_id", err)
		return
	}
	subs, err := h.submissions.GetByIDs(dbctx.Context{Ctx: c.Request.Context()}, []uuid.UUID{id})
	if err != nil {
		h.log.Error("Get submission failed", "submission_id", id, "error", err)
		RespondAppError(c, err)
		return
	}
	if len(subs) == 0 {
		RespondError(c, http.StatusNotFound, "submission_not_found", nil)
		return
	}
	RespondOK(c, gin.H{"submission": subs[0]})
}

// Run drives the full review synchronously and returns the final
// report. A duplicate concurrent request gets a conflict from the
// claim, not a second run.
func (h *SubmissionHandler) Run(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_submission_id", err)
		return
	}
	report, err := h.orchestrator.Run(c.Request.Context(), id)
	if err != nil {
		h.log.Error("Review run failed", "submission_id", id, "error", err)
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"report": report})
}

func (h *SubmissionHandler) GetReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_submission_id", err)
		return
	}
	report, err := h.reports.GetBySubmissionID(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		h.log.Error("Get report failed", "submission_id", id, "error", err)
		RespondAppError(c, err)
		return
	}
	if report == nil {
		RespondError(c, http.StatusNotFound, "report_not_found", nil)
		return
	}
	RespondOK(c, gin.H{"report": report})
}
