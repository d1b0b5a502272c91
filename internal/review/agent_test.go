package review

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/scriptdeck/greenlight-backend/internal/retrieval"
)

func TestWriteExcerptsBoundsLongChunks(t *testing.T) {
	long := strings.Repeat("word ", 2000)
	var b strings.Builder
	writeExcerpts(&b, []retrieval.Result{
		{ChunkID: uuid.New(), SourceKind: "script", Text: long},
	})
	out := b.String()
	// The stored chunk is ~10000 chars; the prompt excerpt must be cut to
	// the token budget, roughly 3200 chars.
	if len(out) >= len(long) {
		t.Fatalf("excerpt not bounded: %d chars", len(out))
	}
	if !strings.Contains(out, "| script]") {
		t.Fatalf("missing source-kind label: %q", out[:80])
	}
}

func TestWriteExcerptsRecoversSectionFromHeading(t *testing.T) {
	var b strings.Builder
	writeExcerpts(&b, []retrieval.Result{
		{ChunkID: uuid.New(), SourceKind: "doc", Text: "# Pacing Notes\nkeep scenes short"},
	})
	if !strings.Contains(b.String(), "| Pacing Notes]") {
		t.Fatalf("section not recovered: %q", b.String())
	}
}

func TestWriteExcerptsPrefersStoredSection(t *testing.T) {
	var b strings.Builder
	writeExcerpts(&b, []retrieval.Result{
		{ChunkID: uuid.New(), SourceKind: "doc", Section: "ACT TWO", Text: "# Other\nbody"},
	})
	if !strings.Contains(b.String(), "| ACT TWO]") {
		t.Fatalf("stored section not used: %q", b.String())
	}
}

func TestDecodeAgentReviewClampsAndSkipsBadCitations(t *testing.T) {
	good := uuid.New()
	raw := map[string]any{
		"score":           14.0,
		"confidence":      -0.3,
		"findings":        []any{map[string]any{"severity": SeverityMajor, "summary": "flat midpoint", "resolved": false}},
		"recommendations": []any{"tighten act two"},
		"citations": []any{
			map[string]any{"chunk_id": good.String(), "section": "ACT TWO", "quote": "..."},
			map[string]any{"chunk_id": "not-a-uuid", "section": "", "quote": ""},
		},
	}
	rv, err := decodeAgentReview(AgentPacing, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rv.Score != 10 || rv.Confidence != 0 {
		t.Fatalf("clamp: score=%v confidence=%v", rv.Score, rv.Confidence)
	}
	if len(rv.Citations) != 1 || rv.Citations[0].ChunkID != good {
		t.Fatalf("citations: %+v", rv.Citations)
	}
	if len(rv.Findings) != 1 || rv.Findings[0].Severity != SeverityMajor {
		t.Fatalf("findings: %+v", rv.Findings)
	}
}

func TestBuildAgentPromptIncludesMetaAndFocus(t *testing.T) {
	member, ok := MemberFor(AgentMarket)
	if !ok {
		t.Fatalf("roster missing %s", AgentMarket)
	}
	meta := SubmissionMeta{
		SubmissionID: uuid.New(),
		Writer:       "R. Okafor",
		Title:        "Harmattan Season",
		Format:       "tv_drama",
		Platform:     "streaming",
	}
	prompt := buildAgentPrompt(member, meta, nil, nil)
	for _, want := range []string{member.Focus, "Harmattan Season", "R. Okafor", "streaming", "(none retrieved)"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}
