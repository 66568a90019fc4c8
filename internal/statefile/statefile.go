// Package statefile provides crash-safe JSON persistence for process state
// (bot state, AI cache and counters, mock exchange balances).
//
// Every write goes to a temp file first, is fsynced, then renamed over the
// target so a crash mid-write never leaves a torn file behind.
package statefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists one JSON document at a fixed path. All operations are
// mutex-protected so concurrent read-modify-write cycles stay consistent.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a store for the given file path, creating parent directories
// as needed.
func New(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	return &Store{path: path}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Save atomically persists v as indented JSON: write temp, fsync, rename.
func (s *Store) Save(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write state: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync state: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close state: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Load reads the stored document into v. Returns false when no file exists
// yet. A corrupt file returns an error so the caller can decide whether to
// reset to a zero state.
func (s *Store) Load(v interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read state: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal state: %w", err)
	}
	return true, nil
}
