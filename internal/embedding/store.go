package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/scriptdeck/greenlight-backend/internal/db"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/apperr"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/dbctx"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/repos"
	"github.com/scriptdeck/greenlight-backend/internal/types"
)

// MaxEmbedChars caps the text sent to the embedding endpoint, measured
// in runes to match the ingestion window, which also counts runes.
// Hitting it means a caller bypassed the chunker.
const MaxEmbedChars = 6000

// Provider produces one vector per input, in input order.
type Provider interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Store embeds chunk text and persists the vectors. The jsonb column is
// always written; the native pgvector column is written additionally when
// the capability probe passes.
type Store struct {
	provider Provider
	chunks   repos.ChunkRepo
	gdb      *gorm.DB
	log      *logger.Logger

	probeOnce sync.Once
	native    bool
}

func NewStore(provider Provider, chunks repos.ChunkRepo, gdb *gorm.DB, baseLog *logger.Logger) *Store {
	return &Store{
		provider: provider,
		chunks:   chunks,
		gdb:      gdb,
		log:      baseLog.With("service", "EmbeddingStore"),
	}
}

// NativeSupported probes for the pgvector column once and caches the
// answer for the life of the process.
func (s *Store) NativeSupported(ctx context.Context) bool {
	s.probeOnce.Do(func() {
		s.native = db.ProbeVectorSupport(ctx, s.gdb)
		if s.native {
			s.log.Info("Native vector storage enabled")
		} else {
			s.log.Info("Native vector storage unavailable; using jsonb embeddings only")
		}
	})
	return s.native
}

// EmbedText returns the vector for a single piece of text without
// persisting anything. Used for query-time embedding.
func (s *Store) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Newf(apperr.KindInvalidArgument, "empty text")
	}
	if n := utf8.RuneCountInString(text); n > MaxEmbedChars {
		return nil, apperr.TooLarge("text exceeds embedding limit", n, MaxEmbedChars)
	}
	vecs, err := s.provider.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, apperr.Newf(apperr.KindUpstream, "expected 1 vector, got %d", len(vecs))
	}
	return vecs[0], nil
}

// EmbedAndStore embeds one chunk and writes its vector. Validation and
// provider failures propagate so callers can apply their own failure
// policy.
func (s *Store) EmbedAndStore(dbc dbctx.Context, chunk *types.Chunk) error {
	if chunk == nil {
		return apperr.Newf(apperr.KindInvalidArgument, "nil chunk")
	}
	vec, err := s.EmbedText(dbc.Ctx, chunk.Text)
	if err != nil {
		return err
	}
	return s.persist(dbc, chunk, vec)
}

// EmbedAndStoreBatch embeds chunks in one provider call where possible
// and stores the results. Chunks whose embedding cannot be produced get
// a zero vector so lexical search still covers them; their indexes come
// back in failed. Database write errors abort the whole batch.
func (s *Store) EmbedAndStoreBatch(dbc dbctx.Context, chunks []*types.Chunk) (failed []int, err error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(chunks))
	oversized := map[int]bool{}
	for i, c := range chunks {
		if utf8.RuneCountInString(c.Text) > MaxEmbedChars || strings.TrimSpace(c.Text) == "" {
			oversized[i] = true
			inputs[i] = " "
			continue
		}
		inputs[i] = c.Text
	}

	vecs, embErr := s.provider.Embed(dbc.Ctx, inputs)
	if embErr != nil {
		// Whole-batch failure. Fall back to per-item calls so one bad
		// input cannot sink its siblings.
		s.log.Warn("Batch embedding failed; retrying per item", "count", len(chunks), "error", embErr)
		vecs = make([][]float32, len(chunks))
		for i := range chunks {
			if oversized[i] {
				continue
			}
			v, itemErr := s.provider.Embed(dbc.Ctx, []string{inputs[i]})
			if itemErr != nil || len(v) != 1 {
				s.log.Warn("Embedding failed for chunk", "chunk_index", chunks[i].ChunkIndex, "error", itemErr)
				continue
			}
			vecs[i] = v[0]
		}
	}

	for i, c := range chunks {
		vec := vecs[i]
		if oversized[i] || len(vec) == 0 {
			failed = append(failed, i)
			vec = make([]float32, db.VectorDim)
		}
		if perr := s.persist(dbc, c, vec); perr != nil {
			return failed, fmt.Errorf("store embedding for chunk %d: %w", c.ChunkIndex, perr)
		}
	}
	if len(failed) > 0 {
		s.log.Warn("Stored zero vectors for failed embeddings", "failed", len(failed), "total", len(chunks))
	}
	return failed, nil
}

func (s *Store) persist(dbc dbctx.Context, chunk *types.Chunk, vec []float32) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return apperr.New(apperr.KindInternal, "marshal embedding", err)
	}
	if err := s.chunks.SetEmbedding(dbc, chunk.ID, raw); err != nil {
		return err
	}
	chunk.Embedding = raw
	if s.NativeSupported(dbc.Ctx) {
		if err := s.chunks.SetNativeVector(dbc, chunk.ID, vec); err != nil {
			return err
		}
	}
	return nil
}
