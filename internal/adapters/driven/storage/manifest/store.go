// Package manifest persists ingestion manifests as JSON files next to the
// images extracted from each source.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.ManifestStore = (*Store)(nil)

// FileName is the manifest file written in each source directory.
const FileName = "manifest.json"

// Store keeps one manifest per source under <dir>/<safe source name>/.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a manifest store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: manifest directory is required", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create manifest directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

// SourceDir returns the directory holding a source's images and manifest.
func (s *Store) SourceDir(source string) string {
	return filepath.Join(s.dir, domain.SourceDirName(source))
}

func (s *Store) path(source string) string {
	return filepath.Join(s.SourceDir(source), FileName)
}

// Exists reports whether a manifest has been written for the source.
func (s *Store) Exists(source string) (bool, error) {
	_, err := os.Stat(s.path(source))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat manifest: %w", err)
	}
}

// Load returns the manifest for a source.
func (s *Store) Load(source string) (*domain.Manifest, error) {
	data, err := os.ReadFile(s.path(source))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("manifest for %s: %w", source, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m domain.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", s.path(source), err)
	}
	if m.Pages == nil {
		m.Pages = map[string][]string{}
	}
	return &m, nil
}

// Save writes the manifest through a temporary file so a crash never leaves
// a truncated manifest behind.
func (s *Store) Save(m domain.Manifest) error {
	if m.Source == "" {
		return fmt.Errorf("%w: manifest without source", domain.ErrInvalidInput)
	}
	if m.Pages == nil {
		m.Pages = map[string][]string{}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.SourceDir(m.Source)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create source directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".*")
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(m.Source)); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Delete removes the manifest and every image saved for the source.
// Deleting an unknown source is not an error.
func (s *Store) Delete(source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.SourceDir(source)); err != nil {
		return fmt.Errorf("delete source directory: %w", err)
	}
	return nil
}
