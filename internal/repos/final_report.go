package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scriptdeck/greenlight-backend/internal/pkg/dbctx"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/types"
)

type FinalReportRepo interface {
	// Upsert keeps exactly one report per submission; re-running a review
	// overwrites the previous report.
	Upsert(dbc dbctx.Context, report *types.FinalReport) (*types.FinalReport, error)
	GetBySubmissionID(dbc dbctx.Context, submissionID uuid.UUID) (*types.FinalReport, error)
}

type finalReportRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFinalReportRepo(db *gorm.DB, baseLog *logger.Logger) FinalReportRepo {
	return &finalReportRepo{db: db, log: baseLog.With("repo", "FinalReportRepo")}
}

func (r *finalReportRepo) Upsert(dbc dbctx.Context, report *types.FinalReport) (*types.FinalReport, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if report == nil || report.SubmissionID == uuid.Nil {
		return nil, gorm.ErrInvalidData
	}
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	now := time.Now()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	report.UpdatedAt = now

	if err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "submission_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"overall_score", "bucket_scores", "highlights", "risks",
				"action_plan", "references", "report_text",
				"notification_subject", "notification_body", "updated_at",
			}),
		}).
		Create(report).Error; err != nil {
		return nil, err
	}
	return report, nil
}

func (r *finalReportRepo) GetBySubmissionID(dbc dbctx.Context, submissionID uuid.UUID) (*types.FinalReport, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if submissionID == uuid.Nil {
		return nil, nil
	}
	var out types.FinalReport
	err := transaction.WithContext(dbc.Ctx).
		Where("submission_id = ?", submissionID).
		First(&out).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}
