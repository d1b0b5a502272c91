package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/scriptdeck/greenlight-backend/internal/chunker"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/apperr"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/platform/openai"
	"github.com/scriptdeck/greenlight-backend/internal/retrieval"
)

const agentSystemPrompt = `You are one specialist reader on a script coverage panel.
Score the submission strictly within your own focus area, cite the excerpts you
relied on, and keep findings concrete. Scores run 0 to 10.`

var agentReviewSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"score":      map[string]any{"type": "number", "minimum": 0, "maximum": 10},
		"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"findings": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"severity": map[string]any{"type": "string", "enum": []string{
						SeverityStrength, SeverityMinor, SeverityMajor, SeverityCritical,
					}},
					"summary":  map[string]any{"type": "string"},
					"resolved": map[string]any{"type": "boolean"},
				},
				"required":             []string{"severity", "summary", "resolved"},
				"additionalProperties": false,
			},
		},
		"recommendations": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"citations": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"chunk_id": map[string]any{"type": "string"},
					"section":  map[string]any{"type": "string"},
					"quote":    map[string]any{"type": "string"},
				},
				"required":             []string{"chunk_id", "section", "quote"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"score", "confidence", "findings", "recommendations", "citations"},
	"additionalProperties": false,
}

// LLMEvaluator scores submissions through the model provider. One
// instance serves the whole roster; the member carries the focus.
type LLMEvaluator struct {
	client openai.Client
	log    *logger.Logger
}

func NewLLMEvaluator(client openai.Client, baseLog *logger.Logger) *LLMEvaluator {
	return &LLMEvaluator{client: client, log: baseLog.With("service", "AgentEvaluator")}
}

func (e *LLMEvaluator) Evaluate(ctx context.Context, member RosterMember, meta SubmissionMeta, scriptExcerpts, docChunks []retrieval.Result) (*AgentReview, error) {
	raw, err := e.client.GenerateJSON(ctx,
		agentSystemPrompt,
		buildAgentPrompt(member, meta, scriptExcerpts, docChunks),
		"agent_review",
		agentReviewSchema,
	)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", member.Name, err)
	}
	review, err := decodeAgentReview(member.Name, raw)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", member.Name, err)
	}
	return review, nil
}

func buildAgentPrompt(member RosterMember, meta SubmissionMeta, scriptExcerpts, docChunks []retrieval.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Focus area: %s.\n\n", member.Focus)
	fmt.Fprintf(&b, "Submission: %q by %s (%s", meta.Title, meta.Writer, meta.Format)
	if meta.Genre != "" {
		fmt.Fprintf(&b, ", %s", meta.Genre)
	}
	b.WriteString(")")
	if meta.DraftVersion != "" {
		fmt.Fprintf(&b, ", draft %s", meta.DraftVersion)
	}
	if meta.Platform != "" {
		fmt.Fprintf(&b, ", target platform %s", meta.Platform)
	}
	if meta.Region != "" {
		fmt.Fprintf(&b, ", region %s", meta.Region)
	}
	b.WriteString(".\n\nScript excerpts:\n")
	writeExcerpts(&b, scriptExcerpts)
	b.WriteString("\nReference material:\n")
	writeExcerpts(&b, docChunks)
	return b.String()
}

func writeExcerpts(b *strings.Builder, results []retrieval.Result) {
	if len(results) == 0 {
		b.WriteString("(none retrieved)\n")
		return
	}
	for _, r := range results {
		label := r.Section
		text := r.Text
		// Stored chunks can be far larger than a prompt excerpt should
		// be. Re-split to the prompt token budget and take the leading
		// piece; the heading heuristic recovers a section label when the
		// chunk itself carries none.
		if pieces := chunker.Split(r.Text, chunker.Options{
			MaxTokens:     chunker.DefaultMaxTokens,
			OverlapTokens: 0,
		}); len(pieces) > 0 {
			text = pieces[0].Text
			if label == "" {
				label = pieces[0].Section
			}
		}
		if label == "" {
			label = r.SourceKind
		}
		fmt.Fprintf(b, "[%s | %s] %s\n", r.ChunkID, label, text)
	}
}

func decodeAgentReview(name AgentName, raw map[string]any) (*AgentReview, error) {
	// Round-trip through json rather than walking the map by hand.
	blob, err := json.Marshal(raw)
	if err != nil {
		return nil, apperr.New(apperr.KindUpstream, "re-encode agent output", err)
	}

	var wire struct {
		Score           float64   `json:"score"`
		Confidence      float64   `json:"confidence"`
		Findings        []Finding `json:"findings"`
		Recommendations []string  `json:"recommendations"`
		Citations       []struct {
			ChunkID string `json:"chunk_id"`
			Section string `json:"section"`
			Quote   string `json:"quote"`
		} `json:"citations"`
	}
	if err := json.Unmarshal(blob, &wire); err != nil {
		return nil, apperr.New(apperr.KindUpstream, "decode agent output", err)
	}

	review := &AgentReview{
		Agent:           name,
		Score:           clamp(wire.Score, 0, 10),
		Confidence:      clamp(wire.Confidence, 0, 1),
		Findings:        wire.Findings,
		Recommendations: wire.Recommendations,
	}
	for _, c := range wire.Citations {
		id, perr := uuid.Parse(c.ChunkID)
		if perr != nil {
			continue
		}
		review.Citations = append(review.Citations, Citation{ChunkID: id, Section: c.Section, Quote: c.Quote})
	}
	return review, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
