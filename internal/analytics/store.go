package analytics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store loads and saves analytics state.
type Store interface {
	Load() (*State, error)
	Save(state *State) error
}

// FileStore persists state as JSON at a fixed path. Writes go through
// a temp file and rename so a crash never leaves a half-written file.
type FileStore struct {
	path string
}

// NewFileStore creates a store rooted at path, creating the parent
// directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("analytics store path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create analytics directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load reads the stored state. A missing file is not an error and
// returns nil state.
func (s *FileStore) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read analytics state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse analytics state: %w", err)
	}
	return &state, nil
}

// Save writes the state atomically.
func (s *FileStore) Save(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode analytics state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".analytics-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		if closeErr := tmp.Close(); closeErr != nil {
			err = fmt.Errorf("%w (close: %v)", err, closeErr)
		}
		if rmErr := os.Remove(tmpName); rmErr != nil && !os.IsNotExist(rmErr) {
			err = fmt.Errorf("%w (cleanup: %v)", err, rmErr)
		}
		return fmt.Errorf("failed to write analytics state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		if closeErr := tmp.Close(); closeErr != nil {
			err = fmt.Errorf("%w (close: %v)", err, closeErr)
		}
		return fmt.Errorf("failed to sync analytics state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace analytics state: %w", err)
	}
	return nil
}

// NopStore discards saves and loads nothing. Used when persistence is
// disabled.
type NopStore struct{}

func (NopStore) Load() (*State, error)   { return nil, nil }
func (NopStore) Save(state *State) error { return nil }
