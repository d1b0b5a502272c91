package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SubmissionStatusQueued     = "queued"
	SubmissionStatusProcessing = "processing"
	SubmissionStatusCompleted  = "completed"
	SubmissionStatusFailed     = "failed"
)

// Submission is a script under review. Status is a strict forward state
// machine: queued -> processing -> completed|failed, with failed re-runnable.
type Submission struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Writer       string         `gorm:"not null" json:"writer"`
	Title        string         `gorm:"not null" json:"title"`
	Format       string         `gorm:"not null" json:"format"`
	DraftVersion string         `gorm:"column:draft_version;not null;default:''" json:"draft_version"`
	Genre        string         `gorm:"column:genre" json:"genre,omitempty"`
	Region       string         `gorm:"column:region" json:"region,omitempty"`
	Platform     string         `gorm:"column:platform" json:"platform,omitempty"`
	Status       string         `gorm:"not null;default:'queued';index" json:"status"`
	SourceRef    string         `gorm:"column:source_ref;not null" json:"source_ref"`
	LastError    string         `gorm:"column:last_error" json:"last_error,omitempty"`
	Metadata     datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Submission) TableName() string {
	return "submission"
}
