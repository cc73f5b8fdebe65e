package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/deskbridge/deskbridge/internal/domain"
)

// FileStore persists checkpoints in a single JSON file, written atomically
// (temp file, then rename) so a crash never leaves a half-written
// checkpoint behind.
type FileStore struct {
	path string

	mu        sync.Mutex
	lastSaved int
	haveSaved bool
}

// NewFileStore creates a store backed by the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load retrieves the last saved checkpoint. A missing file is a zero
// checkpoint and no error; a file that exists but cannot be decoded is an
// error, so a damaged checkpoint is never silently treated as a fresh start.
func (s *FileStore) Load(ctx context.Context) (Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, nil
		}
		return Checkpoint{}, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %s: %v", domain.ErrParse, s.path, err)
	}
	return cp, nil
}

// Save persists the checkpoint atomically. Within one process the cursor may
// only move forward; a regressing save is rejected.
func (s *FileStore) Save(ctx context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.haveSaved && cp.Cursor < s.lastSaved {
		return fmt.Errorf("%w: %d < %d", domain.ErrCursorRegression, cp.Cursor, s.lastSaved)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}

	s.lastSaved = cp.Cursor
	s.haveSaved = true
	return nil
}

// Reset deletes the checkpoint so the next run starts from scratch. A
// missing file is fine.
func (s *FileStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSaved = 0
	s.haveSaved = false
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Path returns the checkpoint file path.
func (s *FileStore) Path() string { return s.path }
