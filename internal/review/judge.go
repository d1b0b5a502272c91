package review

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/scriptdeck/greenlight-backend/internal/pkg/apperr"
)

// ethicsCap is the ceiling applied when the ethics agent reports an
// unresolved critical finding, regardless of every other score.
const ethicsCap = 5.9

// contradictionSpread is the score gap between two agents that counts
// as a cross-agent contradiction worth flagging to the reader.
const contradictionSpread = 4.0

const maxInsights = 8

// Calibration is the judge's output, handed to synthesis and persisted
// as the final report.
type Calibration struct {
	SubmissionID   uuid.UUID             `json:"submission_id"`
	OverallScore   float64               `json:"overall_score"`
	BucketScores   map[AgentName]float64 `json:"bucket_scores"`
	Highlights     []string              `json:"highlights"`
	Risks          []string              `json:"risks"`
	ActionPlan     []string              `json:"action_plan"`
	References     []Citation            `json:"references"`
	Contradictions []string              `json:"contradictions,omitempty"`
	EthicsCapped   bool                  `json:"ethics_capped,omitempty"`
}

// Calibrate merges the full roster's reviews into one scored report.
// It requires exactly one review per roster member; a missing score
// would silently skew the weighted overall, so an incomplete set is an
// error rather than a best-effort average.
func Calibrate(submissionID uuid.UUID, reviews []AgentReview, weights RubricWeights) (*Calibration, error) {
	if submissionID == uuid.Nil {
		return nil, apperr.Newf(apperr.KindInvalidArgument, "missing submission id")
	}
	byAgent := make(map[AgentName]AgentReview, len(reviews))
	for _, rv := range reviews {
		if _, dup := byAgent[rv.Agent]; dup {
			return nil, apperr.Newf(apperr.KindInvalidArgument, "duplicate review from agent %s", rv.Agent)
		}
		byAgent[rv.Agent] = rv
	}
	for _, m := range roster {
		if _, ok := byAgent[m.Name]; !ok {
			return nil, apperr.Newf(apperr.KindInvalidArgument, "missing review from agent %s", m.Name)
		}
	}

	cal := &Calibration{
		SubmissionID: submissionID,
		BucketScores: make(map[AgentName]float64, len(roster)),
	}

	var weighted, totalWeight float64
	for _, m := range roster {
		rv := byAgent[m.Name]
		w := weights[m.Name]
		cal.BucketScores[m.Name] = round1(rv.Score)
		weighted += rv.Score * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return nil, apperr.Newf(apperr.KindInvalidArgument, "rubric weights sum to zero")
	}
	cal.OverallScore = round1(weighted / totalWeight)

	cal.Contradictions = detectContradictions(byAgent)
	cal.Highlights, cal.Risks = balancedInsights(byAgent)
	cal.ActionPlan = balancedRecommendations(byAgent)
	cal.References = collectCitations(byAgent)

	if capped, reason := ethicsViolation(byAgent[AgentEthics]); capped {
		cal.EthicsCapped = true
		if cal.OverallScore > ethicsCap {
			cal.OverallScore = ethicsCap
		}
		cal.Risks = prepend(cal.Risks, reason, maxInsights)
	}
	return cal, nil
}

// ethicsViolation reports an unresolved critical ethics finding.
func ethicsViolation(ethics AgentReview) (bool, string) {
	for _, f := range ethics.Findings {
		if f.Severity == SeverityCritical && !f.Resolved {
			return true, fmt.Sprintf("unresolved critical standards issue: %s", f.Summary)
		}
	}
	return false, ""
}

// detectContradictions flags agent pairs whose scores sit far enough
// apart that the report should name the disagreement.
func detectContradictions(byAgent map[AgentName]AgentReview) []string {
	type scored struct {
		name  AgentName
		score float64
	}
	all := make([]scored, 0, len(byAgent))
	for name, rv := range byAgent {
		all = append(all, scored{name, rv.Score})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })

	var out []string
	if len(all) < 2 {
		return out
	}
	hi, lo := all[0], all[len(all)-1]
	if hi.score-lo.score >= contradictionSpread {
		out = append(out, fmt.Sprintf(
			"%s (%.1f) and %s (%.1f) disagree sharply; read both sections before deciding",
			hi.name, hi.score, lo.name, lo.score))
	}
	return out
}

// balancedInsights gathers strengths and risks round-robin across
// agents so one verbose specialist cannot crowd out the rest.
func balancedInsights(byAgent map[AgentName]AgentReview) (highlights, risks []string) {
	for depth := 0; len(highlights) < maxInsights || len(risks) < maxInsights; depth++ {
		found := false
		for _, m := range roster {
			rv := byAgent[m.Name]
			h, r := findingAtDepth(rv, depth)
			if h != "" && len(highlights) < maxInsights {
				highlights = append(highlights, fmt.Sprintf("[%s] %s", m.Name, h))
				found = true
			}
			if r != "" && len(risks) < maxInsights {
				risks = append(risks, fmt.Sprintf("[%s] %s", m.Name, r))
				found = true
			}
		}
		if !found {
			break
		}
	}
	return highlights, risks
}

// findingAtDepth returns the depth-th strength and the depth-th risk
// from one review, empty strings when exhausted.
func findingAtDepth(rv AgentReview, depth int) (highlight, risk string) {
	var strengths, problems []string
	for _, f := range rv.Findings {
		switch f.Severity {
		case SeverityStrength:
			strengths = append(strengths, f.Summary)
		case SeverityMajor, SeverityCritical:
			problems = append(problems, f.Summary)
		}
	}
	if depth < len(strengths) {
		highlight = strengths[depth]
	}
	if depth < len(problems) {
		risk = problems[depth]
	}
	return highlight, risk
}

func balancedRecommendations(byAgent map[AgentName]AgentReview) []string {
	var out []string
	for depth := 0; len(out) < maxInsights; depth++ {
		found := false
		for _, m := range roster {
			rv := byAgent[m.Name]
			if depth < len(rv.Recommendations) && len(out) < maxInsights {
				out = append(out, fmt.Sprintf("[%s] %s", m.Name, rv.Recommendations[depth]))
				found = true
			}
		}
		if !found {
			break
		}
	}
	return out
}

func collectCitations(byAgent map[AgentName]AgentReview) []Citation {
	seen := map[uuid.UUID]bool{}
	var out []Citation
	for _, m := range roster {
		for _, c := range byAgent[m.Name].Citations {
			if seen[c.ChunkID] {
				continue
			}
			seen[c.ChunkID] = true
			out = append(out, c)
		}
	}
	return out
}

func prepend(list []string, v string, limit int) []string {
	out := append([]string{v}, list...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
