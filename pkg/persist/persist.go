// Package persist provides the atomic snapshot write primitive shared by the
// project registry and the notification queue. A snapshot is written to a
// temporary file colocated with the target and atomically renamed over it, so
// a reader never observes a partially written file.
package persist

import (
	"fmt"
	"os"
	"path/filepath"
)

// PersistenceError indicates a durability failure. The prior on-disk state
// remains authoritative; the caller is expected to roll back the in-memory
// mutation and retry the whole logical operation.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Save writes data to path atomically: the bytes land in a temporary file in
// the same directory, are synced, and the temp file replaces path in one
// rename. On any failure the temp file is removed and the prior file is left
// untouched.
func Save(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return &PersistenceError{Path: path, Op: "create temp", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &PersistenceError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &PersistenceError{Path: path, Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &PersistenceError{Path: path, Op: "close", Err: err}
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return &PersistenceError{Path: path, Op: "rename", Err: err}
	}
	return nil
}

// Load reads the snapshot at path. A missing file is reported via
// os.ErrNotExist so callers can treat it as an empty state.
func Load(path string) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // snapshot paths are controlled by the application
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", path, err)
	}
	return data, nil
}
