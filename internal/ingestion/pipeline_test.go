package ingestion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/scriptdeck/greenlight-backend/internal/extract"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/apperr"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/dbctx"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/types"
)

// tenChunkText splits into exactly 10 pieces at the pipeline's window.
func tenChunkText() string {
	return strings.Repeat("a", 55000)
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(ctx context.Context, sourceRef string) (string, extract.Stats, error) {
	if f.err != nil {
		return "", extract.Stats{}, f.err
	}
	return f.text, extract.Stats{Chars: len(f.text)}, nil
}

type fakeChunkRepo struct {
	mu      sync.Mutex
	ops     []string
	created []*types.Chunk
}

func (f *fakeChunkRepo) Create(dbc dbctx.Context, chunks []*types.Chunk) ([]*types.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "create")
	f.created = append(f.created, chunks...)
	return chunks, nil
}
func (f *fakeChunkRepo) GetByParentID(dbc dbctx.Context, parentID uuid.UUID) ([]*types.Chunk, error) {
	return nil, nil
}
func (f *fakeChunkRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Chunk, error) {
	return nil, nil
}
func (f *fakeChunkRepo) DeleteByParentID(dbc dbctx.Context, parentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "delete")
	return nil
}
func (f *fakeChunkRepo) CountByParentID(dbc dbctx.Context, parentID uuid.UUID) (int64, error) {
	return 0, nil
}
func (f *fakeChunkRepo) SetEmbedding(dbc dbctx.Context, id uuid.UUID, embedding datatypes.JSON) error {
	return nil
}
func (f *fakeChunkRepo) SetNativeVector(dbc dbctx.Context, id uuid.UUID, vec []float32) error {
	return nil
}

// fakeEmbedder degrades chunks whose index falls below failBelow, so a
// run over 10 chunks with failBelow=4 degrades exactly 4 of them.
// batchErr simulates a store write failure sinking the whole batch.
type fakeEmbedder struct {
	mu        sync.Mutex
	failBelow int
	calls     int
	batchErr  error
}

func (f *fakeEmbedder) EmbedAndStoreBatch(dbc dbctx.Context, chunks []*types.Chunk) ([]int, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	var failed []int
	for i, c := range chunks {
		if c.ChunkIndex < f.failBelow {
			failed = append(failed, i)
		}
	}
	return failed, nil
}

func newTestPipeline(t *testing.T, ex *fakeExtractor, repo *fakeChunkRepo, emb *fakeEmbedder) *Pipeline {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	p := NewPipeline(nil, ex, repo, emb, log)
	p.batchPause = 0
	return p
}

func TestRunAllEmbeddingsFail(t *testing.T) {
	p := newTestPipeline(t, &fakeExtractor{text: tenChunkText()}, &fakeChunkRepo{}, &fakeEmbedder{failBelow: 10})
	_, err := p.Run(context.Background(), uuid.New(), types.SourceKindDoc, "library/guide.md")
	if !apperr.Is(err, apperr.KindFailedPrecondition) {
		t.Fatalf("kind: want=%v got=%v (err=%v)", apperr.KindFailedPrecondition, apperr.KindOf(err), err)
	}
}

func TestRunFailureRateAboveHalfFails(t *testing.T) {
	// 6 of 10 fail: rate 60%.
	p := newTestPipeline(t, &fakeExtractor{text: tenChunkText()}, &fakeChunkRepo{}, &fakeEmbedder{failBelow: 6})
	_, err := p.Run(context.Background(), uuid.New(), types.SourceKindDoc, "library/guide.md")
	if !apperr.Is(err, apperr.KindFailedPrecondition) {
		t.Fatalf("kind: want=%v got=%v (err=%v)", apperr.KindFailedPrecondition, apperr.KindOf(err), err)
	}
}

func TestRunPartialSuccessUnderThreshold(t *testing.T) {
	// 4 of 10 fail: rate 40%, run succeeds with counts.
	emb := &fakeEmbedder{failBelow: 4}
	p := newTestPipeline(t, &fakeExtractor{text: tenChunkText()}, &fakeChunkRepo{}, emb)

	report, err := p.Run(context.Background(), uuid.New(), types.SourceKindDoc, "library/guide.md")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Total != 10 || report.Processed != 6 {
		t.Fatalf("report: want=6/10 got=%d/%d", report.Processed, report.Total)
	}
	// 10 chunks fit one batch: one embedder call, not one per chunk.
	if emb.calls != 1 {
		t.Fatalf("embed calls: want=1 got=%d", emb.calls)
	}
}

func TestRunBatchStoreErrorFailsRun(t *testing.T) {
	emb := &fakeEmbedder{batchErr: errors.New("db write failed")}
	p := newTestPipeline(t, &fakeExtractor{text: tenChunkText()}, &fakeChunkRepo{}, emb)
	_, err := p.Run(context.Background(), uuid.New(), types.SourceKindDoc, "library/guide.md")
	if !apperr.Is(err, apperr.KindFailedPrecondition) {
		t.Fatalf("kind: want=%v got=%v (err=%v)", apperr.KindFailedPrecondition, apperr.KindOf(err), err)
	}
}

func TestRunDeletesBeforeInsert(t *testing.T) {
	repo := &fakeChunkRepo{}
	p := newTestPipeline(t, &fakeExtractor{text: tenChunkText()}, repo, &fakeEmbedder{})

	parentID := uuid.New()
	if _, err := p.Run(context.Background(), parentID, types.SourceKindScript, "uploads/draft3.txt"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(repo.ops) < 2 || repo.ops[0] != "delete" || repo.ops[1] != "create" {
		t.Fatalf("ops order: want=[delete create] got=%v", repo.ops)
	}
	if len(repo.created) != 10 {
		t.Fatalf("created chunks: want=10 got=%d", len(repo.created))
	}
	for i, c := range repo.created {
		if c.ParentID != parentID || c.ChunkIndex != i || c.SourceKind != types.SourceKindScript {
			t.Fatalf("chunk %d: parent=%s index=%d kind=%s", i, c.ParentID, c.ChunkIndex, c.SourceKind)
		}
		if !strings.Contains(string(c.Metadata), "uploads/draft3.txt") {
			t.Fatalf("chunk %d metadata missing source ref: %s", i, c.Metadata)
		}
	}
}

func TestRunRejectsEmptyText(t *testing.T) {
	p := newTestPipeline(t, &fakeExtractor{text: "   \n  "}, &fakeChunkRepo{}, &fakeEmbedder{})
	_, err := p.Run(context.Background(), uuid.New(), types.SourceKindDoc, "library/empty.md")
	if !apperr.Is(err, apperr.KindInvalidArgument) {
		t.Fatalf("kind: want=%v got=%v", apperr.KindInvalidArgument, apperr.KindOf(err))
	}
}

func TestRunRejectsUnknownSourceKind(t *testing.T) {
	p := newTestPipeline(t, &fakeExtractor{text: "hello"}, &fakeChunkRepo{}, &fakeEmbedder{})
	_, err := p.Run(context.Background(), uuid.New(), "audio", "clip.wav")
	if !apperr.Is(err, apperr.KindInvalidArgument) {
		t.Fatalf("kind: want=%v got=%v", apperr.KindInvalidArgument, apperr.KindOf(err))
	}
}

func TestRunPropagatesExtractorError(t *testing.T) {
	exErr := apperr.Newf(apperr.KindInvalidArgument, "unreadable source")
	p := newTestPipeline(t, &fakeExtractor{err: exErr}, &fakeChunkRepo{}, &fakeEmbedder{})
	_, err := p.Run(context.Background(), uuid.New(), types.SourceKindDoc, "library/broken.bin")
	if !errors.Is(err, exErr) {
		t.Fatalf("error: want=%v got=%v", exErr, err)
	}
}
