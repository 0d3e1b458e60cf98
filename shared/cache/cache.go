// Package cache is the watcher's persistent local cache: a keyed JSON store
// backed by one file per key. It is a durable fallback, never a source of
// truth once the in-memory state is live, so every operation is best-effort
// from the caller's point of view.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// Store persists JSON values under string keys inside a single directory.
type Store struct {
	dir    string
	mu     sync.Mutex
	logger *logrus.Entry
}

// New creates the backing directory if needed and returns a ready store.
func New(dir string, logger *logrus.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger.WithField("component", "cache"),
	}, nil
}

// Put serializes v and writes it under key. The write goes through a temp
// file and rename so a crash mid-write never leaves a torn entry behind.
func (s *Store) Put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache entry %q: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit cache entry %q: %w", key, err)
	}
	return nil
}

// Get reads the entry under key into v. The boolean reports whether the key
// exists; a present-but-unparseable entry returns (true, error) so callers
// can treat corruption differently from absence.
func (s *Store) Get(key string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry %q: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("failed to decode cache entry %q: %w", key, err)
	}
	return true, nil
}

// Delete removes the entry under key. Deleting a missing key is a no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache entry %q: %w", key, err)
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}
