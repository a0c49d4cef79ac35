package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps uploaded blobs on disk under a base directory,
// keyed by server-generated filenames.
type FileStore struct {
	basePath string
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("upload base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// Save streams r into a blob named filename. The filename is expected
// to be a server-generated key, not user input.
func (f *FileStore) Save(filename string, r io.Reader) error {
	target := filepath.Join(f.basePath, filepath.Base(filename))

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating blob: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("writing blob: %w", err)
	}
	return nil
}

// Open returns a reader over the blob. A missing blob maps to
// ErrNotFound so the serve path can answer 404 instead of 500.
func (f *FileStore) Open(filename string) (io.ReadCloser, error) {
	target := filepath.Join(f.basePath, filepath.Base(filename))
	file, err := os.Open(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opening blob: %w", err)
	}
	return file, nil
}

// Delete removes the blob. A missing blob maps to ErrNotFound; the
// caller decides whether that matters (media deletion treats it as a
// warning, since the database row is the source of truth).
func (f *FileStore) Delete(filename string) error {
	target := filepath.Join(f.basePath, filepath.Base(filename))
	if err := os.Remove(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("removing blob: %w", err)
	}
	return nil
}
