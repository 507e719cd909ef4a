// Package fs provides a filesystem-backed object store. Storage
// references are paths relative to a root directory; uploads happen out
// of band, this adapter only reads.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/formsage/formsage/internal/core/domain"
	"github.com/formsage/formsage/internal/core/ports/driven"
)

// Ensure ObjectStore implements the interface.
var _ driven.ObjectStore = (*ObjectStore)(nil)

// ObjectStore reads document bytes from a root directory.
type ObjectStore struct {
	root string
}

// New creates an object store rooted at dir.
func New(dir string) *ObjectStore {
	return &ObjectStore{root: dir}
}

// Download returns the raw bytes for a storage reference. References are
// confined to the root; escaping paths are rejected as invalid input.
func (s *ObjectStore) Download(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean := filepath.Clean(ref)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("%w: storage ref escapes root: %s", domain.ErrInvalidInput, ref)
	}

	data, err := os.ReadFile(filepath.Join(s.root, clean))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, ref)
		}
		return nil, fmt.Errorf("reading object: %w", err)
	}
	return data, nil
}
