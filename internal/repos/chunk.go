package repos

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/scriptdeck/greenlight-backend/internal/pkg/dbctx"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/types"
)

type ChunkRepo interface {
	Create(dbc dbctx.Context, chunks []*types.Chunk) ([]*types.Chunk, error)
	GetByParentID(dbc dbctx.Context, parentID uuid.UUID) ([]*types.Chunk, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Chunk, error)
	DeleteByParentID(dbc dbctx.Context, parentID uuid.UUID) error
	CountByParentID(dbc dbctx.Context, parentID uuid.UUID) (int64, error)
	SetEmbedding(dbc dbctx.Context, id uuid.UUID, embedding datatypes.JSON) error
	SetNativeVector(dbc dbctx.Context, id uuid.UUID, vec []float32) error
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: baseLog.With("repo", "ChunkRepo")}
}

func (r *chunkRepo) Create(dbc dbctx.Context, chunks []*types.Chunk) ([]*types.Chunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunks) == 0 {
		return []*types.Chunk{}, nil
	}

	// Keep batches small because Text is large.
	const batchSize = 100
	if err := transaction.WithContext(dbc.Ctx).CreateInBatches(chunks, batchSize).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *chunkRepo) GetByParentID(dbc dbctx.Context, parentID uuid.UUID) ([]*types.Chunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Chunk
	if parentID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("parent_id = ?", parentID).
		Order("chunk_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Chunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Chunk
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) DeleteByParentID(dbc dbctx.Context, parentID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if parentID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("parent_id = ?", parentID).
		Delete(&types.Chunk{}).Error
}

func (r *chunkRepo) CountByParentID(dbc dbctx.Context, parentID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.Chunk{}).
		Where("parent_id = ?", parentID).
		Count(&n).Error
	return n, err
}

func (r *chunkRepo) SetEmbedding(dbc dbctx.Context, id uuid.UUID, embedding datatypes.JSON) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Chunk{}).
		Where("id = ?", id).
		Update("embedding", embedding).Error
}

// SetNativeVector writes the pgvector column for one chunk. Only called
// when the capability probe reported native vector support.
func (r *chunkRepo) SetNativeVector(dbc dbctx.Context, id uuid.UUID, vec []float32) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(vec) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Exec(`UPDATE chunk SET embedding_vec = ?::vector WHERE id = ?`, VectorLiteral(vec), id).Error
}

// VectorLiteral renders a float32 slice as a pgvector input literal.
func VectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", f)
	}
	b.WriteByte(']')
	return b.String()
}
