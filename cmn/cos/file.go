// Package cos ("common os") collects small OS- and hash-level helpers used
// throughout the module: atomic file writes, checksum types, and the tie
// breaker used to generate collision-free temporary names.
/*
 * Copyright (c) 2024, fragstore authors. All rights reserved.
 */
package cos

import (
	"os"
	"path/filepath"
)

// CreateFile creates (or truncates) the file at path, including any
// missing parent directories.
func CreateFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
}

// FlushClose fsyncs and closes f, returning the first error encountered.
func FlushClose(f *os.File) error {
	errSync := f.Sync()
	errClose := f.Close()
	if errSync != nil {
		return errSync
	}
	return errClose
}

// Close closes f, swallowing the error (used from defer in error paths
// where the original error already takes precedence).
func Close(f *os.File) {
	_ = f.Close()
}

// RemoveFile removes path, treating "already gone" as success.
func RemoveFile(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
