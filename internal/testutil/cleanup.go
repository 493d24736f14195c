// Package testutil provides helpers for examples and tests.
package testutil

import (
	"os"
	"path/filepath"
)

// RemoveAll removes the path and any children. Errors are ignored.
// Use for defer cleanup in examples and tests.
//
// Usage:
//
//	defer testutil.RemoveAll(tmpDir)
func RemoveAll(path string) { _ = os.RemoveAll(path) }

// WriteFile writes data to path, creating parent directories as needed.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
