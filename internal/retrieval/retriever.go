package retrieval

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/scriptdeck/greenlight-backend/internal/pkg/apperr"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/dbctx"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/repos"
	"github.com/scriptdeck/greenlight-backend/internal/types"
)

type Origin string

const (
	OriginVector  Origin = "vector"
	OriginLexical Origin = "lexical"
)

const defaultK = 8

// Result is one retrieved chunk, tagged with the signal that surfaced it.
// Scores are comparable within one origin only; the merge never
// renormalizes across signals.
type Result struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	ParentID   uuid.UUID `json:"parent_id"`
	SourceKind string    `json:"source_kind"`
	Section    string    `json:"section,omitempty"`
	LineStart  int       `json:"line_start,omitempty"`
	LineEnd    int       `json:"line_end,omitempty"`
	Text       string    `json:"text"`
	Score      float64   `json:"score"`
	Origin     Origin    `json:"origin"`
}

// Query scopes a documentation search. DocTypes narrows to specific
// reference material; Platform and Region are match-or-unset filters.
type Query struct {
	Text     string
	K        int
	DocTypes []string
	Platform string
	Region   string
}

// Profile is the fixed retrieval shape a review agent searches with.
type Profile struct {
	DocTypes []string
	K        int
}

// Embedder is the slice of the embedding store the retriever needs.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	NativeSupported(ctx context.Context) bool
}

type Searcher interface {
	SearchDocs(ctx context.Context, q Query) ([]Result, error)
	SearchScript(ctx context.Context, submissionID uuid.UUID, q Query) ([]Result, error)
}

type Retriever struct {
	gdb      *gorm.DB
	docs     repos.DocumentRepo
	embedder Embedder
	log      *logger.Logger
}

func NewRetriever(gdb *gorm.DB, docs repos.DocumentRepo, embedder Embedder, baseLog *logger.Logger) *Retriever {
	return &Retriever{
		gdb:      gdb,
		docs:     docs,
		embedder: embedder,
		log:      baseLog.With("service", "Retriever"),
	}
}

// SearchDocs runs a hybrid search over the active documentation library.
func (r *Retriever) SearchDocs(ctx context.Context, q Query) ([]Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, apperr.Newf(apperr.KindInvalidArgument, "empty query")
	}
	parents, err := r.docs.EligibleIDs(dbctx.Context{Ctx: ctx}, q.DocTypes, q.Platform, q.Region)
	if err != nil {
		return nil, err
	}
	if len(parents) == 0 {
		return nil, nil
	}
	return r.search(ctx, q.Text, parents, types.SourceKindDoc, q.K)
}

// SearchScript runs a hybrid search over one submission's own chunks.
func (r *Retriever) SearchScript(ctx context.Context, submissionID uuid.UUID, q Query) ([]Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, apperr.Newf(apperr.KindInvalidArgument, "empty query")
	}
	if submissionID == uuid.Nil {
		return nil, apperr.Newf(apperr.KindInvalidArgument, "missing submission id")
	}
	return r.search(ctx, q.Text, []uuid.UUID{submissionID}, types.SourceKindScript, q.K)
}

func (r *Retriever) search(ctx context.Context, queryText string, parents []uuid.UUID, kind string, k int) ([]Result, error) {
	if k <= 0 {
		k = defaultK
	}
	return searchWithFallback(ctx, k,
		func(ctx context.Context) ([]Result, error) {
			return r.vectorSearch(ctx, queryText, parents, kind, k)
		},
		func(ctx context.Context) ([]Result, error) {
			return r.lexicalSearch(ctx, queryText, parents, kind, k)
		},
		r.log,
	)
}

// searchWithFallback runs both signals concurrently and merges them.
// A vector failure degrades to lexical-only results under the same
// contract; only the loss of both signals surfaces as an error.
func searchWithFallback(
	ctx context.Context,
	k int,
	vector func(context.Context) ([]Result, error),
	lexical func(context.Context) ([]Result, error),
	log *logger.Logger,
) ([]Result, error) {
	var (
		vecRes, lexRes []Result
		vecErr, lexErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vecRes, vecErr = vector(gctx)
		return nil
	})
	g.Go(func() error {
		lexRes, lexErr = lexical(gctx)
		return nil
	})
	_ = g.Wait()

	switch {
	case vecErr != nil && lexErr != nil:
		return nil, lexErr
	case vecErr != nil:
		log.Warn("Vector signal unavailable; serving lexical-only results", "error", vecErr)
		return mergeResults(nil, lexRes, k), nil
	case lexErr != nil:
		log.Warn("Lexical signal unavailable; serving vector-only results", "error", lexErr)
		return mergeResults(vecRes, nil, k), nil
	}
	return mergeResults(vecRes, lexRes, k), nil
}

// mergeResults dedupes by chunk id keeping the first occurrence, with
// vector hits listed ahead of lexical ones, then orders by score.
func mergeResults(vector, lexical []Result, k int) []Result {
	seen := make(map[uuid.UUID]bool, len(vector)+len(lexical))
	merged := make([]Result, 0, len(vector)+len(lexical))
	for _, res := range append(append([]Result{}, vector...), lexical...) {
		if seen[res.ChunkID] {
			continue
		}
		seen[res.ChunkID] = true
		merged = append(merged, res)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged
}

// -------------------- vector signal --------------------

type chunkRow struct {
	ID         uuid.UUID
	ParentID   uuid.UUID
	SourceKind string
	Section    string
	LineStart  int
	LineEnd    int
	Text       string
	Score      float64
}

func (row chunkRow) result(origin Origin) Result {
	return Result{
		ChunkID:    row.ID,
		ParentID:   row.ParentID,
		SourceKind: row.SourceKind,
		Section:    row.Section,
		LineStart:  row.LineStart,
		LineEnd:    row.LineEnd,
		Text:       row.Text,
		Score:      row.Score,
		Origin:     origin,
	}
}

func (r *Retriever) vectorSearch(ctx context.Context, queryText string, parents []uuid.UUID, kind string, k int) ([]Result, error) {
	queryVec, err := r.embedder.EmbedText(ctx, queryText)
	if err != nil {
		return nil, err
	}
	if r.embedder.NativeSupported(ctx) {
		return r.vectorSearchNative(ctx, queryVec, parents, kind, k)
	}
	return r.vectorSearchLocal(ctx, queryVec, parents, kind, k)
}

func (r *Retriever) vectorSearchNative(ctx context.Context, queryVec []float32, parents []uuid.UUID, kind string, k int) ([]Result, error) {
	literal := repos.VectorLiteral(queryVec)
	var rows []chunkRow
	err := r.gdb.WithContext(ctx).Raw(`
		SELECT id, parent_id, source_kind, section, line_start, line_end, text,
		       1 - (embedding_vec <=> ?::vector) AS score
		FROM chunk
		WHERE source_kind = ? AND parent_id IN ? AND embedding_vec IS NOT NULL
		ORDER BY embedding_vec <=> ?::vector
		LIMIT ?
	`, literal, kind, parents, literal, k).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.result(OriginVector))
	}
	return out, nil
}

// vectorSearchLocal loads candidate chunks and ranks by cosine in
// process. Fine at library scale; native ranking takes over once
// pgvector is installed.
func (r *Retriever) vectorSearchLocal(ctx context.Context, queryVec []float32, parents []uuid.UUID, kind string, k int) ([]Result, error) {
	var chunks []*types.Chunk
	err := r.gdb.WithContext(ctx).
		Where("source_kind = ? AND parent_id IN ?", kind, parents).
		Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(chunks))
	for _, c := range chunks {
		vec, perr := parseEmbedding(c.Embedding)
		if perr != nil || len(vec) == 0 {
			continue
		}
		score := cosine(queryVec, vec)
		if math.IsNaN(score) {
			continue
		}
		out = append(out, Result{
			ChunkID:    c.ID,
			ParentID:   c.ParentID,
			SourceKind: c.SourceKind,
			Section:    c.Section,
			LineStart:  c.LineStart,
			LineEnd:    c.LineEnd,
			Text:       c.Text,
			Score:      score,
			Origin:     OriginVector,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func parseEmbedding(raw datatypes.JSON) ([]float32, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.NaN()
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return math.NaN()
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
