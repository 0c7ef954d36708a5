// Package store persists the selected printer between runs.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the selection file inside the data directory.
const FileName = "selected_printer.json"

type selection struct {
	Printer string `json:"printer"`
}

// FileStore keeps the selection as {"printer": name} in one JSON file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore stores the selection in dir/selected_printer.json.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, FileName)}
}

func (s *FileStore) Path() string { return s.path }

// Load returns the selected printer, or "" when none is saved.
func (s *FileStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read selection: %w", err)
	}

	var sel selection
	if err := json.Unmarshal(data, &sel); err != nil {
		return "", fmt.Errorf("parse selection: %w", err)
	}
	return sel.Printer, nil
}

// Save replaces the selection atomically.
func (s *FileStore) Save(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(selection{Printer: name})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), FileName+".*")
	if err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save selection: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save selection: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}

// Clear forgets the selection.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear selection: %w", err)
	}
	return nil
}
