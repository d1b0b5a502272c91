package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// FinalReport is the one calibrated coverage report per submission.
// Reprocessing a submission overwrites its report (upsert by submission id).
type FinalReport struct {
	ID                  uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SubmissionID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"submission_id"`
	OverallScore        float64        `gorm:"column:overall_score;not null" json:"overall_score"`
	BucketScores        datatypes.JSON `gorm:"type:jsonb;column:bucket_scores" json:"bucket_scores"`
	Highlights          datatypes.JSON `gorm:"type:jsonb;column:highlights" json:"highlights"`
	Risks               datatypes.JSON `gorm:"type:jsonb;column:risks" json:"risks"`
	ActionPlan          datatypes.JSON `gorm:"type:jsonb;column:action_plan" json:"action_plan"`
	References          datatypes.JSON `gorm:"type:jsonb;column:references" json:"references"`
	ReportText          string         `gorm:"column:report_text" json:"report_text"`
	NotificationSubject string         `gorm:"column:notification_subject" json:"notification_subject,omitempty"`
	NotificationBody    string         `gorm:"column:notification_body" json:"notification_body,omitempty"`
	CreatedAt           time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (FinalReport) TableName() string {
	return "final_report"
}
