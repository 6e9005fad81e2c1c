package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/google/renameio/v2"
)

// StatusFile persists scheduler status for other processes (the now command).
type StatusFile struct {
	path string
}

// NewStatusFile returns a status file at path, creating its directory.
func NewStatusFile(path string) (*StatusFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create status directory: %w", err)
	}
	return &StatusFile{path: path}, nil
}

// Path returns the file location.
func (f *StatusFile) Path() string {
	return f.path
}

// Write replaces the file contents atomically.
func (f *StatusFile) Write(st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	if err := renameio.WriteFile(f.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	return nil
}

// ReadStatus loads a status file written by a running daemon.
func ReadStatus(path string) (Status, error) {
	var st Status

	data, err := os.ReadFile(path)
	if err != nil {
		return st, err
	}

	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("failed to decode status file: %w", err)
	}
	return st, nil
}
