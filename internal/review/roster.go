package review

import (
	"context"

	"github.com/google/uuid"

	"github.com/scriptdeck/greenlight-backend/internal/retrieval"
)

// AgentName identifies one specialist on the fixed review roster.
type AgentName string

const (
	AgentStructural AgentName = "structural"
	AgentCharacter  AgentName = "character"
	AgentDialogue   AgentName = "dialogue"
	AgentPacing     AgentName = "pacing"
	AgentMarket     AgentName = "market"
	AgentCultural   AgentName = "cultural"
	AgentPlatform   AgentName = "platform"
	AgentEthics     AgentName = "ethics"
)

// Finding severities. Critical ethics findings trigger the judge's
// score cap unless marked resolved.
const (
	SeverityStrength = "strength"
	SeverityMinor    = "minor"
	SeverityMajor    = "major"
	SeverityCritical = "critical"
)

type Finding struct {
	Severity string `json:"severity"`
	Summary  string `json:"summary"`
	Resolved bool   `json:"resolved"`
}

type Citation struct {
	ChunkID uuid.UUID `json:"chunk_id"`
	Section string    `json:"section,omitempty"`
	Quote   string    `json:"quote"`
}

// AgentReview is one specialist's output for a single run. Never
// persisted on its own; the judge folds the set into the final report.
type AgentReview struct {
	Agent           AgentName  `json:"agent"`
	Score           float64    `json:"score"`
	Findings        []Finding  `json:"findings"`
	Recommendations []string   `json:"recommendations"`
	Citations       []Citation `json:"citations"`
	Confidence      float64    `json:"confidence"`
}

// SubmissionMeta is the slice of a submission agents see.
type SubmissionMeta struct {
	SubmissionID uuid.UUID
	Writer       string
	Title        string
	Format       string
	DraftVersion string
	Genre        string
	Region       string
	Platform     string
}

// Evaluator scores one submission from one specialist's viewpoint.
type Evaluator interface {
	Evaluate(ctx context.Context, member RosterMember, meta SubmissionMeta, scriptExcerpts, docChunks []retrieval.Result) (*AgentReview, error)
}

// RosterMember binds an agent identity to its retrieval profile, rubric
// weight and review focus at compile time. The roster is closed: there
// is no dynamic agent registration and no dispatch on free-form names.
type RosterMember struct {
	Name    AgentName
	Profile retrieval.Profile
	Weight  float64
	Focus   string
}

var roster = []RosterMember{
	{
		Name:    AgentStructural,
		Profile: retrieval.Profile{DocTypes: []string{"format_guide", "story_structure"}, K: 6},
		Weight:  0.17,
		Focus:   "act structure, setup and payoff, scene construction",
	},
	{
		Name:    AgentCharacter,
		Profile: retrieval.Profile{DocTypes: []string{"story_structure", "coverage_rubric"}, K: 6},
		Weight:  0.15,
		Focus:   "character arcs, motivation, distinctiveness of the ensemble",
	},
	{
		Name:    AgentDialogue,
		Profile: retrieval.Profile{DocTypes: []string{"format_guide", "coverage_rubric"}, K: 6},
		Weight:  0.12,
		Focus:   "dialogue voice, subtext, exposition handling",
	},
	{
		Name:    AgentPacing,
		Profile: retrieval.Profile{DocTypes: []string{"story_structure"}, K: 6},
		Weight:  0.12,
		Focus:   "momentum, scene length, tension curve across acts",
	},
	{
		Name:    AgentMarket,
		Profile: retrieval.Profile{DocTypes: []string{"market_brief"}, K: 8},
		Weight:  0.14,
		Focus:   "audience fit, comparable titles, commercial positioning",
	},
	{
		Name:    AgentCultural,
		Profile: retrieval.Profile{DocTypes: []string{"market_brief", "regional_notes"}, K: 8},
		Weight:  0.10,
		Focus:   "regional resonance, cultural specificity, localization risk",
	},
	{
		Name:    AgentPlatform,
		Profile: retrieval.Profile{DocTypes: []string{"platform_notes"}, K: 8},
		Weight:  0.10,
		Focus:   "platform format expectations, episode economics, slotting",
	},
	{
		Name:    AgentEthics,
		Profile: retrieval.Profile{DocTypes: []string{"standards_guide"}, K: 6},
		Weight:  0.10,
		Focus:   "content standards, representation, legal and safety exposure",
	},
}

// Roster returns the fixed specialist set in invocation order.
func Roster() []RosterMember {
	out := make([]RosterMember, len(roster))
	copy(out, roster)
	return out
}

// MemberFor looks up one roster entry.
func MemberFor(name AgentName) (RosterMember, bool) {
	for _, m := range roster {
		if m.Name == name {
			return m, true
		}
	}
	return RosterMember{}, false
}

// RubricWeights maps each agent to its share of the overall score.
type RubricWeights map[AgentName]float64

func DefaultRubricWeights() RubricWeights {
	w := make(RubricWeights, len(roster))
	for _, m := range roster {
		w[m.Name] = m.Weight
	}
	return w
}
