package weir

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FS is a provider over a local filesystem rooted at a directory.
//
// File identifiers are slash-separated paths relative to the root; anything
// that would escape the root is rejected with ErrInvalidPath.
type FS struct {
	fsys afero.Fs
}

var _ Provider = (*FS)(nil)

// NewFS creates a filesystem-backed provider rooted at the given directory.
// The directory must exist.
func NewFS(root string) (*FS, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, os.ErrNotExist
	}
	return &FS{fsys: afero.NewBasePathFs(afero.NewOsFs(), root)}, nil
}

// NewFSFrom creates a provider over an arbitrary afero filesystem. Useful
// with afero.NewMemMapFs for tests.
func NewFSFrom(fsys afero.Fs) *FS {
	return &FS{fsys: fsys}
}

// Metadata implements MetadataPort. Directories are not readable files and
// report ErrNotFound.
func (f *FS) Metadata(_ context.Context, id FileID) (Metadata, error) {
	name, err := safeName(id)
	if err != nil {
		return Metadata{}, err
	}

	info, err := f.fsys.Stat(name)
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, ErrNotFound
		}
		return Metadata{}, err
	}
	if info.IsDir() {
		return Metadata{}, ErrNotFound
	}
	return Metadata{Size: info.Size(), ModTime: info.ModTime()}, nil
}

// ReadAt implements ContentPort.
func (f *FS) ReadAt(_ context.Context, id FileID, p []byte, off int64) (int, error) {
	name, err := safeName(id)
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, ErrInvalidPath
	}

	file, err := f.fsys.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	defer func() { _ = file.Close() }()

	n, err := file.ReadAt(p, off)
	if errors.Is(err, io.EOF) {
		// Short count at end of file is not an error for the content port.
		err = nil
	}
	return n, err
}

// safeName validates a file identifier and normalizes it to a clean
// relative path.
func safeName(id FileID) (string, error) {
	p := string(id)
	if p == "" {
		return "", ErrInvalidPath
	}

	cleaned := filepath.Clean(filepath.FromSlash(p))
	if cleaned == "." || filepath.IsAbs(cleaned) {
		return "", ErrInvalidPath
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}

	return cleaned, nil
}
