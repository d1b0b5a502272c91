package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SourceKindDoc    = "doc"
	SourceKindScript = "script"
)

// Chunk is one retrievable slice of a document or script. Rows are
// immutable; re-ingestion deletes and replaces every chunk for a parent.
type Chunk struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ParentID   uuid.UUID      `gorm:"type:uuid;not null;index:idx_chunk_parent" json:"parent_id"`
	SourceKind string         `gorm:"not null;index" json:"source_kind"`
	ChunkIndex int            `gorm:"column:chunk_index;not null;index:idx_chunk_parent" json:"chunk_index"`
	Section    string         `gorm:"column:section" json:"section,omitempty"`
	LineStart  int            `gorm:"column:line_start" json:"line_start,omitempty"`
	LineEnd    int            `gorm:"column:line_end" json:"line_end,omitempty"`
	Text       string         `gorm:"column:text;not null" json:"text"`
	Embedding  datatypes.JSON `gorm:"type:jsonb;column:embedding" json:"embedding,omitempty"`
	Metadata   datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (Chunk) TableName() string {
	return "chunk"
}
