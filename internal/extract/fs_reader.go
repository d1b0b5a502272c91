package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/scriptdeck/greenlight-backend/internal/pkg/apperr"
)

type fsReader struct {
	root string
}

// NewFSReader resolves source references against a local directory.
// References are relative paths; anything escaping the root is rejected.
func NewFSReader(root string) SourceReader {
	return &fsReader{root: root}
}

func (r *fsReader) Read(ctx context.Context, sourceRef string) (string, []byte, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	clean := filepath.Clean(sourceRef)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", nil, apperr.Newf(apperr.KindInvalidArgument, "source reference %q escapes storage root", sourceRef)
	}
	full := filepath.Join(r.root, clean)
	data, err := os.ReadFile(full)
	if err != nil {
		return "", nil, err
	}
	return filepath.Base(clean), data, nil
}
