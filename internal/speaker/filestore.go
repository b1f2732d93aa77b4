package speaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore is a [Store] backed by a single JSON file holding the flat
// profile list. Every Replace writes the whole file through a temp-file
// rename, so readers never observe a partially written collection even if the
// process dies mid-write.
//
// All methods are safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store persisting to the JSON file at path. The
// parent directory is created if missing. The file itself is created lazily
// on first Replace.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("speaker: file store path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("speaker: create store directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load implements [Store]. A missing file yields an empty collection.
func (s *FileStore) Load(_ context.Context) ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Profile{}, nil
		}
		return nil, fmt.Errorf("speaker: read store %q: %w", s.path, err)
	}

	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("speaker: decode store %q: %w", s.path, err)
	}
	return profiles, nil
}

// Replace implements [Store]. The collection is marshalled to a temp file in
// the same directory and renamed over the target, which is atomic on POSIX
// filesystems.
func (s *FileStore) Replace(_ context.Context, profiles []Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("speaker: encode store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".speakers-*.json")
	if err != nil {
		return fmt.Errorf("speaker: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("speaker: write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("speaker: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("speaker: replace store %q: %w", s.path, err)
	}
	return nil
}

// Ensure FileStore implements Store at compile time.
var _ Store = (*FileStore)(nil)
