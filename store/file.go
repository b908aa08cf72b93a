// Package store persists scheduler and execution state as JSON documents
// on the local filesystem. One process owns every file, all writes go
// through a full read-modify-write under a lock.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File persists a single JSON document at a fixed path.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a store backed by the given path. The file and its
// directory are created on the first Save.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the location of the backing file.
func (f *File) Path() string {
	return f.path
}

// Load reads the document into v. A missing file is reported as
// fs.ErrNotExist so callers can start from empty state.
func (f *File) Load(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", f.path, err)
	}
	return nil
}

// Save writes v as indented JSON, creating the parent directory when
// needed.
func (f *File) Save(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", f.path, err)
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}
