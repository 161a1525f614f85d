// Package hashstore persists an append-only archive-name→digest mapping as a
// JSON file next to the download directory. It is an audit aid independent of
// the relational store.
package hashstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store is a file-backed name→digest map. Safe for concurrent use.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// New creates a Store writing to path. The file is created lazily on the
// first Save.
func New(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

// Save records the digest for name, merging with the existing file content.
// An unreadable or corrupt existing file is quarantined under a timestamped
// name so prior entries stay recoverable, and a fresh file is started.
func (s *Store) Save(name, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.loadLocked()
	data[name] = digest

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode hash file: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o600); err != nil {
		return fmt.Errorf("write hash file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace hash file: %w", err)
	}
	return nil
}

// Load returns the current mapping. A missing file yields an empty map; a
// corrupt file is quarantined and also yields an empty map.
func (s *Store) Load() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Get looks up the digest recorded for name.
func (s *Store) Get(name string) (string, bool) {
	digest, ok := s.Load()[name]
	return digest, ok
}

func (s *Store) loadLocked() map[string]string {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}
	}
	if err != nil {
		s.logger.Error("read hash file failed, starting fresh",
			zap.String("path", s.path), zap.Error(err))
		return map[string]string{}
	}

	data := map[string]string{}
	if err := json.Unmarshal(raw, &data); err != nil {
		s.quarantineLocked(err)
		return map[string]string{}
	}
	return data
}

// quarantineLocked moves a corrupt hash file aside instead of overwriting it.
func (s *Store) quarantineLocked(cause error) {
	dest := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, dest); err != nil {
		s.logger.Error("quarantine of corrupt hash file failed",
			zap.String("path", s.path), zap.Error(err))
		return
	}
	s.logger.Warn("corrupt hash file quarantined",
		zap.String("path", s.path),
		zap.String("quarantined_as", dest),
		zap.Error(cause))
}
