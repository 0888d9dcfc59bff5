// Package fsstore provides the small file primitives the client registry is
// built on: atomic JSON writes and advisory file locks.
package fsstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	DirPerm  os.FileMode = 0o700
	FilePerm os.FileMode = 0o600
)

var (
	ErrInvalidPath     = errors.New("fsstore: invalid path")
	ErrLockTimeout     = errors.New("fsstore: lock timeout")
	ErrLockUnavailable = errors.New("fsstore: lock unavailable")
	ErrDecodeFailed    = errors.New("fsstore: decode failed")
	ErrWriteFailed     = errors.New("fsstore: write failed")
)

func EnsureDir(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty dir path", ErrInvalidPath)
	}
	if err := os.MkdirAll(path, DirPerm); err != nil {
		return fmt.Errorf("fsstore ensure dir %s: %w", path, err)
	}
	return nil
}

// ReadJSON decodes the file at path into out. A missing or empty file is not
// an error; the first return value reports whether anything was loaded.
func ReadJSON(path string, out any) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("%w: empty file path", ErrInvalidPath)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read json %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", ErrDecodeFailed, path, err)
	}
	return true, nil
}

// WriteJSONAtomic writes v as indented JSON via a temp file in the target
// directory followed by a rename, so readers never observe a partial record.
func WriteJSONAtomic(path string, v any) error {
	if path == "" {
		return fmt.Errorf("%w: empty file path", ErrInvalidPath)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrWriteFailed, path, err)
	}
	data = append(data, '\n')
	return writeAtomic(path, data)
}

func writeAtomic(path string, content []byte) error {
	parentDir := filepath.Dir(path)
	if err := EnsureDir(parentDir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(parentDir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", ErrWriteFailed, path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("%w: write temp for %s: %v", ErrWriteFailed, path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync temp for %s: %v", ErrWriteFailed, path, err)
	}
	if err := tmp.Chmod(FilePerm); err != nil {
		return fmt.Errorf("%w: chmod temp for %s: %v", ErrWriteFailed, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp for %s: %v", ErrWriteFailed, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: rename temp for %s: %v", ErrWriteFailed, path, err)
	}

	// Best effort directory sync for durability; ignore failures.
	if dirFD, err := os.Open(parentDir); err == nil {
		_ = dirFD.Sync()
		_ = dirFD.Close()
	}
	return nil
}
