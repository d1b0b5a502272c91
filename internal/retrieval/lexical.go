package retrieval

import (
	"context"

	"github.com/google/uuid"
)

// Lexical ranking stays inside Postgres: the chunk table carries a GIN
// index over to_tsvector('english', text), so rank and filter happen in
// one pass.
const lexicalCandidatesSQL = `
	SELECT id, parent_id, source_kind, section, line_start, line_end, text,
	       ts_rank_cd(to_tsvector('english', text), plainto_tsquery('english', ?)) AS score
	FROM chunk
	WHERE source_kind = ?
	  AND parent_id IN ?
	  AND to_tsvector('english', text) @@ plainto_tsquery('english', ?)
	ORDER BY score DESC
	LIMIT ?
`

func (r *Retriever) lexicalSearch(ctx context.Context, queryText string, parents []uuid.UUID, kind string, k int) ([]Result, error) {
	var rows []chunkRow
	err := r.gdb.WithContext(ctx).
		Raw(lexicalCandidatesSQL, queryText, kind, parents, queryText, k).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.result(OriginLexical))
	}
	return out, nil
}
