package ingestion

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/scriptdeck/greenlight-backend/internal/chunker"
	"github.com/scriptdeck/greenlight-backend/internal/extract"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/apperr"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/dbctx"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/repos"
	"github.com/scriptdeck/greenlight-backend/internal/types"
)

const (
	chunkSize    = 6000
	chunkOverlap = 200

	embedConcurrency = 3
	embedBatchSize   = 10
	embedBatchPause  = 200 * time.Millisecond
)

// ChunkEmbedder is the slice of the embedding store the pipeline needs.
// Batched embedding keeps provider calls at one per batch; failed holds
// the batch-relative indexes that got a degraded result.
type ChunkEmbedder interface {
	EmbedAndStoreBatch(dbc dbctx.Context, chunks []*types.Chunk) (failed []int, err error)
}

// Report summarizes one ingestion run. Processed counts chunks that were
// embedded and stored; Total is everything the splitter produced.
type Report struct {
	ParentID  uuid.UUID     `json:"parent_id"`
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Stats     extract.Stats `json:"stats"`
}

type Pipeline struct {
	gdb       *gorm.DB
	extractor extract.Extractor
	chunks    repos.ChunkRepo
	embedder  ChunkEmbedder
	log       *logger.Logger

	// pause between embedding batches; tests zero it out.
	batchPause time.Duration
}

func NewPipeline(gdb *gorm.DB, extractor extract.Extractor, chunks repos.ChunkRepo, embedder ChunkEmbedder, baseLog *logger.Logger) *Pipeline {
	return &Pipeline{
		gdb:        gdb,
		extractor:  extractor,
		chunks:     chunks,
		embedder:   embedder,
		log:        baseLog.With("service", "IngestionPipeline"),
		batchPause: embedBatchPause,
	}
}

// Run ingests one source end to end: extract, split, replace the
// parent's chunks inside a transaction, then embed with bounded
// concurrency. Individual embedding failures are tolerated up to the
// failure policy: zero successes or a failure rate above half fails the
// whole run.
func (p *Pipeline) Run(ctx context.Context, parentID uuid.UUID, sourceKind, sourceRef string) (*Report, error) {
	if parentID == uuid.Nil {
		return nil, apperr.Newf(apperr.KindInvalidArgument, "missing parent id")
	}
	if sourceKind != types.SourceKindDoc && sourceKind != types.SourceKindScript {
		return nil, apperr.Newf(apperr.KindInvalidArgument, "unknown source kind %q", sourceKind)
	}

	text, stats, err := p.extractor.Extract(ctx, sourceRef)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Newf(apperr.KindInvalidArgument, "source %q has no extractable text", sourceRef)
	}

	parts := chunker.SplitBytes(text, chunkSize, chunkOverlap)
	if len(parts) == 0 {
		return nil, apperr.Newf(apperr.KindInvalidArgument, "splitter produced no chunks for %q", sourceRef)
	}

	meta, err := json.Marshal(map[string]any{
		"source_ref":      sourceRef,
		"chars":           stats.Chars,
		"estimated_pages": stats.EstimatedPages,
	})
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, "marshal chunk metadata", err)
	}

	chunks := make([]*types.Chunk, len(parts))
	for i, part := range parts {
		chunks[i] = &types.Chunk{
			ID:         uuid.New(),
			ParentID:   parentID,
			SourceKind: sourceKind,
			ChunkIndex: i,
			Text:       part,
			Metadata:   datatypes.JSON(meta),
		}
	}

	// Re-ingestion replaces everything for the parent atomically so a
	// concurrent reader never sees a half-written chunk set.
	if err := p.runTx(ctx, func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := p.chunks.DeleteByParentID(dbc, parentID); err != nil {
			return err
		}
		_, err := p.chunks.Create(dbc, chunks)
		return err
	}); err != nil {
		return nil, err
	}

	processed := p.embedAll(ctx, chunks)
	total := len(chunks)
	failed := total - processed

	switch {
	case processed == 0:
		return nil, apperr.Newf(apperr.KindFailedPrecondition,
			"embedding failed for every chunk (total=%d)", total)
	case failed*2 > total:
		return nil, apperr.Newf(apperr.KindFailedPrecondition,
			"embedding failure rate too high (processed=%d total=%d)", processed, total)
	}

	if failed > 0 {
		p.log.Warn("Ingestion completed with partial failures",
			"parent_id", parentID, "processed", processed, "total", total)
	} else {
		p.log.Info("Ingestion completed",
			"parent_id", parentID, "processed", processed, "total", total)
	}
	return &Report{ParentID: parentID, Total: total, Processed: processed, Stats: stats}, nil
}

// embedAll embeds the chunk set one provider call per batch, running up
// to embedConcurrency batches at a time and pausing between waves to
// stay under provider rate limits. Returns the number of chunks that
// got a real vector; degraded or failed batches count against it.
func (p *Pipeline) embedAll(ctx context.Context, chunks []*types.Chunk) int {
	batches := make([][]*types.Chunk, 0, len(chunks)/embedBatchSize+1)
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunks[start:end])
	}

	var (
		mu        sync.Mutex
		processed int
	)
	for wave := 0; wave < len(batches); wave += embedConcurrency {
		waveEnd := wave + embedConcurrency
		if waveEnd > len(batches) {
			waveEnd = len(batches)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(embedConcurrency)
		for _, b := range batches[wave:waveEnd] {
			batch := b
			g.Go(func() error {
				failed, err := p.embedder.EmbedAndStoreBatch(dbctx.Context{Ctx: gctx}, batch)
				if err != nil {
					p.log.Warn("Embedding batch failed",
						"parent_id", batch[0].ParentID, "batch_size", len(batch), "error", err)
					return nil
				}
				mu.Lock()
				processed += len(batch) - len(failed)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		if waveEnd < len(batches) && p.batchPause > 0 {
			select {
			case <-ctx.Done():
				return processed
			case <-time.After(p.batchPause):
			}
		}
	}
	return processed
}

func (p *Pipeline) runTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if p.gdb == nil {
		return fn(nil)
	}
	return p.gdb.WithContext(ctx).Transaction(fn)
}
