// Package file keeps the correction snapshot on local disk.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore as a single JSON file
// replaced atomically (write temp, fsync, rename).
type SnapshotStore struct {
	path string
}

// NewSnapshotStore stores the snapshot at path, creating parent directories
// on first save.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Path returns the snapshot location.
func (s *SnapshotStore) Path() string { return s.path }

// Load returns the saved bytes or domain.ErrNotFound.
func (s *SnapshotStore) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("file: snapshot %s: %w", s.path, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("file: read snapshot: %w", err)
	}
	return data, nil
}

// Save replaces the snapshot.
func (s *SnapshotStore) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("file: create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("file: create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("file: write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("file: sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file: close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("file: replace snapshot: %w", err)
	}
	return nil
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)
