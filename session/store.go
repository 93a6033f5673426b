// Package session persists show state between runs. The store writes
// whole documents atomically so a crash mid-save can never leave a
// half-written session behind.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the on-disk session document. Workspaces carries the
// workspace manager's own persisted shape untouched; the store does not
// interpret it.
type State struct {
	SavedAt         time.Time       `json:"savedAt"`
	SampleRate      float64         `json:"sampleRate"`
	BlockSize       int             `json:"blockSize"`
	OutputDeviceUID string          `json:"outputDeviceUID,omitempty"`
	InputDeviceUID  string          `json:"inputDeviceUID,omitempty"`
	Workspaces      json.RawMessage `json:"workspaces,omitempty"`
}

// Store reads and writes JSON documents at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store for the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Save marshals v and atomically replaces the backing file via a temp
// file and rename.
func (s *Store) Save(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}

// Load unmarshals the backing file into v. A missing or corrupt file
// surfaces as an error.
func (s *Store) Load(v any) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading session: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding session: %w", err)
	}
	return nil
}

// Exists reports whether a session file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}
