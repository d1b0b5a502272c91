package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/scriptdeck/greenlight-backend/internal/chunker"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/apperr"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/dbctx"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/types"
)

type fakeProvider struct {
	calls   [][]string
	failAll bool
	failOn  map[string]bool
	dim     int
}

func (f *fakeProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.calls = append(f.calls, inputs)
	if f.failAll && len(inputs) > 1 {
		return nil, errors.New("batch too big")
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		if f.failOn[in] {
			return nil, errors.New("provider down")
		}
		dim := f.dim
		if dim == 0 {
			dim = 4
		}
		vec := make([]float32, dim)
		vec[0] = float32(len(in))
		out[i] = vec
	}
	return out, nil
}

type fakeChunkRepo struct {
	embeddings map[uuid.UUID]datatypes.JSON
	native     map[uuid.UUID][]float32
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{
		embeddings: map[uuid.UUID]datatypes.JSON{},
		native:     map[uuid.UUID][]float32{},
	}
}

func (f *fakeChunkRepo) Create(dbc dbctx.Context, chunks []*types.Chunk) ([]*types.Chunk, error) {
	return chunks, nil
}
func (f *fakeChunkRepo) GetByParentID(dbc dbctx.Context, parentID uuid.UUID) ([]*types.Chunk, error) {
	return nil, nil
}
func (f *fakeChunkRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Chunk, error) {
	return nil, nil
}
func (f *fakeChunkRepo) DeleteByParentID(dbc dbctx.Context, parentID uuid.UUID) error { return nil }
func (f *fakeChunkRepo) CountByParentID(dbc dbctx.Context, parentID uuid.UUID) (int64, error) {
	return 0, nil
}
func (f *fakeChunkRepo) SetEmbedding(dbc dbctx.Context, id uuid.UUID, embedding datatypes.JSON) error {
	f.embeddings[id] = embedding
	return nil
}
func (f *fakeChunkRepo) SetNativeVector(dbc dbctx.Context, id uuid.UUID, vec []float32) error {
	f.native[id] = vec
	return nil
}

func newTestStore(p Provider, r *fakeChunkRepo) *Store {
	log, _ := logger.New("development")
	return NewStore(p, r, nil, log)
}

func testChunk(text string) *types.Chunk {
	return &types.Chunk{ID: uuid.New(), ParentID: uuid.New(), SourceKind: types.SourceKindDoc, Text: text}
}

func TestEmbedTextRejectsEmpty(t *testing.T) {
	s := newTestStore(&fakeProvider{}, newFakeChunkRepo())
	_, err := s.EmbedText(context.Background(), "   ")
	if !apperr.Is(err, apperr.KindInvalidArgument) {
		t.Fatalf("kind: want=%v got=%v", apperr.KindInvalidArgument, apperr.KindOf(err))
	}
}

func TestEmbedTextRejectsOversized(t *testing.T) {
	s := newTestStore(&fakeProvider{}, newFakeChunkRepo())
	_, err := s.EmbedText(context.Background(), strings.Repeat("a", MaxEmbedChars+1))
	if !apperr.Is(err, apperr.KindPayloadTooLarge) {
		t.Fatalf("kind: want=%v got=%v", apperr.KindPayloadTooLarge, apperr.KindOf(err))
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected *apperr.Error, got %T", err)
	}
	if ae.Size != MaxEmbedChars+1 || ae.Limit != MaxEmbedChars {
		t.Fatalf("size/limit: want=%d/%d got=%d/%d", MaxEmbedChars+1, MaxEmbedChars, ae.Size, ae.Limit)
	}
}

func TestEmbedTextAcceptsMultibyteIngestionChunk(t *testing.T) {
	// The ingestion window counts runes, so a CJK chunk can run to three
	// bytes per rune. The size guard must count the same unit or every
	// such chunk is rejected.
	parts := chunker.SplitBytes(strings.Repeat("映画の脚本のテキスト", 1200), 6000, 200)
	if len(parts) == 0 {
		t.Fatalf("splitter produced no chunks")
	}
	if n := utf8.RuneCountInString(parts[0]); n > 6000 {
		t.Fatalf("first chunk over window: %d runes", n)
	}
	if len(parts[0]) <= 6000 {
		t.Fatalf("fixture not multibyte enough: %d bytes", len(parts[0]))
	}

	s := newTestStore(&fakeProvider{}, newFakeChunkRepo())
	vec, err := s.EmbedText(context.Background(), parts[0])
	if err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	if len(vec) != 4 {
		t.Fatalf("vector dim: want=4 got=%d", len(vec))
	}
}

func TestEmbedAndStoreWritesJSONVector(t *testing.T) {
	repo := newFakeChunkRepo()
	s := newTestStore(&fakeProvider{}, repo)
	c := testChunk("the council scene drags in act two")

	dbc := dbctx.Context{Ctx: context.Background()}
	if err := s.EmbedAndStore(dbc, c); err != nil {
		t.Fatalf("EmbedAndStore: %v", err)
	}

	raw, ok := repo.embeddings[c.ID]
	if !ok {
		t.Fatalf("embedding not stored for chunk %s", c.ID)
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		t.Fatalf("stored embedding not json: %v", err)
	}
	if len(vec) != 4 {
		t.Fatalf("vector dim: want=4 got=%d", len(vec))
	}
	if len(c.Embedding) == 0 {
		t.Fatalf("chunk struct embedding not updated")
	}
	// nil gorm handle means no native column.
	if len(repo.native) != 0 {
		t.Fatalf("native vector written without pgvector support")
	}
}

func TestEmbedAndStorePropagatesProviderError(t *testing.T) {
	repo := newFakeChunkRepo()
	s := newTestStore(&fakeProvider{failOn: map[string]bool{"boom": true}}, repo)

	err := s.EmbedAndStore(dbctx.Context{Ctx: context.Background()}, testChunk("boom"))
	if err == nil {
		t.Fatalf("expected provider error")
	}
	if len(repo.embeddings) != 0 {
		t.Fatalf("stored embedding despite provider failure")
	}
}

func TestEmbedAndStoreBatchFallsBackPerItem(t *testing.T) {
	repo := newFakeChunkRepo()
	provider := &fakeProvider{failAll: true, failOn: map[string]bool{"bad": true}}
	s := newTestStore(provider, repo)

	chunks := []*types.Chunk{testChunk("good one"), testChunk("bad"), testChunk("good two")}
	for i, c := range chunks {
		c.ChunkIndex = i
	}

	failed, err := s.EmbedAndStoreBatch(dbctx.Context{Ctx: context.Background()}, chunks)
	if err != nil {
		t.Fatalf("EmbedAndStoreBatch: %v", err)
	}
	if len(failed) != 1 || failed[0] != 1 {
		t.Fatalf("failed indexes: want=[1] got=%v", failed)
	}
	// Every chunk gets a stored vector, the failed one a zero vector.
	if len(repo.embeddings) != 3 {
		t.Fatalf("stored count: want=3 got=%d", len(repo.embeddings))
	}
	var vec []float32
	if err := json.Unmarshal(repo.embeddings[chunks[1].ID], &vec); err != nil {
		t.Fatalf("unmarshal fallback vector: %v", err)
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatalf("fallback vector not zeroed: %v", vec[:4])
		}
	}
}

func TestEmbedAndStoreBatchSkipsOversized(t *testing.T) {
	repo := newFakeChunkRepo()
	provider := &fakeProvider{}
	s := newTestStore(provider, repo)

	big := testChunk(strings.Repeat("x", MaxEmbedChars+10))
	ok := testChunk("fine")
	failed, err := s.EmbedAndStoreBatch(dbctx.Context{Ctx: context.Background()}, []*types.Chunk{big, ok})
	if err != nil {
		t.Fatalf("EmbedAndStoreBatch: %v", err)
	}
	if len(failed) != 1 || failed[0] != 0 {
		t.Fatalf("failed indexes: want=[0] got=%v", failed)
	}
	for _, call := range provider.calls {
		for _, in := range call {
			if utf8.RuneCountInString(in) > MaxEmbedChars {
				t.Fatalf("oversized text sent to provider (runes=%d)", utf8.RuneCountInString(in))
			}
		}
	}
}
