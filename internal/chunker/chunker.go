package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

// Piece is one chunk of input text with its section and line provenance.
type Piece struct {
	Text      string
	Section   string
	LineStart int
	LineEnd   int
}

// Options controls the token-budgeted, section-aware splitter used for
// agent-context assembly.
type Options struct {
	MaxTokens     int
	OverlapTokens int
}

const (
	DefaultMaxTokens     = 800
	DefaultOverlapTokens = 120
)

var (
	numberedHeadingRe = regexp.MustCompile(`^\d+(\.\d+)*[.)]?\s+\S`)
	sceneHeadingRe    = regexp.MustCompile(`^(INT|EXT|EST|INT/EXT|I/E)[.\s]`)
)

// Split breaks text into overlapping pieces. Lines are grouped into
// sections at detected headings; within a section a sliding word window
// accumulates until the estimated token budget is reached. The window
// start always advances by at least one word.
func Split(text string, opts Options) []Piece {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.OverlapTokens < 0 {
		opts.OverlapTokens = 0
	}
	if opts.OverlapTokens >= opts.MaxTokens {
		opts.OverlapTokens = opts.MaxTokens / 4
	}

	lines := strings.Split(text, "\n")

	type section struct {
		heading string
		words   []word
	}

	sections := make([]section, 0, 8)
	cur := section{}
	flush := func() {
		if len(cur.words) > 0 {
			sections = append(sections, cur)
		}
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isHeading(trimmed) {
			flush()
			cur = section{heading: headingTitle(trimmed)}
			continue
		}
		for _, w := range strings.Fields(trimmed) {
			cur.words = append(cur.words, word{text: w, line: i + 1})
		}
	}
	flush()

	out := make([]Piece, 0, len(sections))
	for _, sec := range sections {
		out = append(out, windowSection(sec.heading, sec.words, opts)...)
	}
	return out
}

type word struct {
	text string
	line int
}

func windowSection(heading string, words []word, opts Options) []Piece {
	if len(words) == 0 {
		return nil
	}
	out := make([]Piece, 0, 4)

	i := 0
	for i < len(words) {
		// Grow the window until the budget would be exceeded. The first
		// word is always taken so an oversized word still yields a piece.
		j := i
		budget := 0
		for j < len(words) {
			t := estimateTokens(words[j].text)
			if j > i && budget+t > opts.MaxTokens {
				break
			}
			budget += t
			j++
		}

		texts := make([]string, 0, j-i)
		for _, w := range words[i:j] {
			texts = append(texts, w.text)
		}
		out = append(out, Piece{
			Text:      strings.Join(texts, " "),
			Section:   heading,
			LineStart: words[i].line,
			LineEnd:   words[j-1].line,
		})

		if j >= len(words) {
			break
		}

		// Translate the overlap budget into trailing words, then advance
		// by at least one word so the loop always terminates.
		overlapWords := 0
		overlapBudget := 0
		for k := j - 1; k > i; k-- {
			t := estimateTokens(words[k].text)
			if overlapBudget+t > opts.OverlapTokens {
				break
			}
			overlapBudget += t
			overlapWords++
		}
		advance := (j - i) - overlapWords
		if advance < 1 {
			advance = 1
		}
		i += advance
	}
	return out
}

// SplitBytes is the byte-budgeted splitter used for raw ingestion: a plain
// rune window with no heading awareness. Works in runes so a UTF-8
// sequence is never cut in half.
func SplitBytes(text string, chunkSize, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	r := []rune(text)

	if chunkSize < 200 {
		chunkSize = 200
	}
	if overlap < 0 {
		overlap = 0
	}
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}

	out := make([]string, 0, (len(r)/step)+1)
	for start := 0; start < len(r); start += step {
		end := start + chunkSize
		if end > len(r) {
			end = len(r)
		}
		p := strings.TrimSpace(string(r[start:end]))
		if p != "" {
			out = append(out, p)
		}
		if end == len(r) {
			break
		}
	}
	return out
}

// EstimateTokens is the length heuristic shared with the embedding store:
// roughly four characters per token.
func EstimateTokens(s string) int { return estimateTokens(s) }

func estimateTokens(s string) int {
	n := (len(s) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

func isHeading(line string) bool {
	if strings.HasPrefix(line, "#") {
		return true
	}
	if numberedHeadingRe.MatchString(line) {
		return true
	}
	if sceneHeadingRe.MatchString(line) {
		return true
	}
	return isAllCapsHeading(line)
}

// ALL-CAPS lines of at least five letters read as headings in both script
// and documentation sources (e.g. "FADE IN:", "DELIVERABLES").
func isAllCapsHeading(line string) bool {
	letters := 0
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= 5
}

func headingTitle(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "# "))
}
