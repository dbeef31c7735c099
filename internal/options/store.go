// Package options persists the small set of user settings: the Readwise API
// token and the last run-level error.
package options

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const (
	// TokenKey holds the Readwise API token.
	TokenKey = "readwiseToken"
	// LastErrorKey holds the message of the last run that failed outright.
	LastErrorKey = "lastError"
)

// Store is a JSON key-value file. Every write rewrites the whole file
// through a temp file and rename.
type Store struct {
	path string
	mu   sync.RWMutex
}

// NewStore creates a Store and ensures the parent directory exists.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("options store: mkdir %s: %w", dir, err)
		}
	}
	return &Store{path: path}, nil
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, err := s.readLocked()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.readLocked()
	if err != nil {
		return err
	}
	values[key] = value
	return s.writeLocked(values)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.readLocked()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return s.writeLocked(values)
}

func (s *Store) readLocked() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("options store: read: %w", err)
	}
	values := map[string]string{}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("options store: unmarshal: %w", err)
	}
	return values, nil
}

func (s *Store) writeLocked(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("options store: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".options-*.json")
	if err != nil {
		return fmt.Errorf("options store: temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		s.removeTemp(tmpPath)
		return fmt.Errorf("options store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.removeTemp(tmpPath)
		return fmt.Errorf("options store: close: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		s.removeTemp(tmpPath)
		return fmt.Errorf("options store: chmod: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		s.removeTemp(tmpPath)
		return fmt.Errorf("options store: rename: %w", err)
	}
	return nil
}

func (s *Store) removeTemp(path string) {
	if err := os.Remove(path); err != nil {
		slog.Debug("options temp cleanup failed", "path", path, "error", err)
	}
}
