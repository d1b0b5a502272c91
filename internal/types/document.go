package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	DocumentStatusActive       = "active"
	DocumentStatusInactive     = "inactive"
	DocumentStatusExperimental = "experimental"
)

// Document is versioned reference material (format guides, market briefs,
// platform notes). Only active documents participate in hybrid search.
type Document struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Title     string         `gorm:"not null" json:"title"`
	Version   string         `gorm:"not null;default:''" json:"version"`
	DocType   string         `gorm:"column:doc_type;not null;index" json:"doc_type"`
	Region    *string        `gorm:"column:region" json:"region,omitempty"`
	Platform  *string        `gorm:"column:platform" json:"platform,omitempty"`
	Tags      datatypes.JSON `gorm:"type:jsonb;column:tags" json:"tags,omitempty"`
	Status    string         `gorm:"not null;default:'active';index" json:"status"`
	SourceRef string         `gorm:"column:source_ref" json:"source_ref,omitempty"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Document) TableName() string {
	return "document"
}
