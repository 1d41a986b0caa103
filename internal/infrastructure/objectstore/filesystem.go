package objectstore

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/lelook/backend/internal/domain"
)

// FilesystemStore writes artifacts under a directory the REST server serves statically
type FilesystemStore struct {
	dir       string
	publicURL string
}

// NewFilesystemStore creates dir if needed. publicURL is the URL dir is served under,
// e.g. "http://localhost:8080/artifacts".
func NewFilesystemStore(dir, publicURL string) (*FilesystemStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageFailed, err)
	}
	return &FilesystemStore{dir: dir, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// Dir returns the root directory
func (s *FilesystemStore) Dir() string {
	return s.dir
}

// Put writes data to dir/key atomically and returns its public URL
func (s *FilesystemStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != strings.TrimLeft(key, "/") {
		return "", fmt.Errorf("%w: invalid key %q", domain.ErrStorageFailed, key)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorageFailed, err)
	}

	target := filepath.Join(s.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorageFailed, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorageFailed, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: %v", domain.ErrStorageFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorageFailed, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorageFailed, err)
	}

	return s.publicURL + "/" + clean, nil
}
