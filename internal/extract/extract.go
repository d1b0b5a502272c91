package extract

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/scriptdeck/greenlight-backend/internal/pkg/apperr"
)

// Stats describes the extracted text for logging and report metadata.
type Stats struct {
	Chars          int `json:"chars"`
	EstimatedPages int `json:"estimated_pages"`
}

// Extractor turns an opaque source reference into plain text. Rich format
// parsing (PDF, DOCX, script XML) is an external collaborator; only the
// native plain-text path ships with the backend.
type Extractor interface {
	Extract(ctx context.Context, sourceRef string) (string, Stats, error)
}

// SourceReader resolves a source reference to raw bytes plus a display
// name (object storage, local disk, test fixtures).
type SourceReader interface {
	Read(ctx context.Context, sourceRef string) (name string, data []byte, err error)
}

type nativeExtractor struct {
	reader SourceReader
}

func NewNativeExtractor(reader SourceReader) Extractor {
	return &nativeExtractor{reader: reader}
}

const charsPerPage = 3000

func (e *nativeExtractor) Extract(ctx context.Context, sourceRef string) (string, Stats, error) {
	if strings.TrimSpace(sourceRef) == "" {
		return "", Stats{}, apperr.Newf(apperr.KindInvalidArgument, "empty source reference")
	}
	name, data, err := e.reader.Read(ctx, sourceRef)
	if err != nil {
		return "", Stats{}, apperr.New(apperr.KindInvalidArgument, "read source", err)
	}

	text, err := NativeText(name, data)
	if err != nil {
		return "", Stats{}, err
	}
	text = SanitizeUTF8(text)
	if strings.TrimSpace(text) == "" {
		return "", Stats{}, apperr.Newf(apperr.KindInvalidArgument, "source %q produced no extractable text", name)
	}

	stats := Stats{
		Chars:          len(text),
		EstimatedPages: (len(text) + charsPerPage - 1) / charsPerPage,
	}
	return text, stats, nil
}

var htmlTagRe = regexp.MustCompile(`(?s)<[^>]*>`)

// NativeText handles text-like formats strictly; anything else is a client
// error so corrupt uploads never silently turn into empty chunks.
func NativeText(name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperr.Newf(apperr.KindInvalidArgument, "no data for %q", name)
	}

	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".txt", ".md", ".fountain", ".fdx", ".csv", ".log", ".json", ".yaml", ".yml", ".xml":
		return string(data), nil
	case ".html", ".htm":
		return htmlTagRe.ReplaceAllString(string(data), " "), nil
	}

	// If it reads as text, accept it rather than erroring on an unknown
	// extension.
	printable := 0
	total := 0
	for _, r := range string(data) {
		total++
		if r == '\n' || r == '\r' || r == '\t' || r == ' ' {
			printable++
			continue
		}
		if r >= 32 && r != 127 {
			printable++
		}
	}
	if total > 0 && float64(printable)/float64(total) > 0.90 {
		return string(data), nil
	}
	return "", apperr.Newf(apperr.KindInvalidArgument, "unsupported or corrupt source %q", name)
}

func CollapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

func SanitizeUTF8(s string) string {
	if s == "" || utf8.ValidString(s) {
		return s
	}
	// Replace invalid byte sequences with a space to keep words separated.
	return strings.ToValidUTF8(s, " ")
}
