package weir

import (
	"context"
	"sync"
	"time"
)

// memoryFile is a single fixture file.
type memoryFile struct {
	data    []byte
	modTime time.Time
}

// Memory is a deterministic in-memory provider. It backs tests and embedded
// content; files are mutable through Put, Touch, and Remove so callers can
// stage snapshot-mismatch scenarios.
//
// Memory is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	files map[FileID]memoryFile
}

var _ Provider = (*Memory)(nil)

// NewMemory creates an empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{files: make(map[FileID]memoryFile)}
}

// Put stores a file, replacing any previous content.
func (m *Memory) Put(id FileID, data []byte, modTime time.Time) {
	cp := make([]byte, len(data))
	copy(cp, data)

	m.mu.Lock()
	m.files[id] = memoryFile{data: cp, modTime: modTime}
	m.mu.Unlock()
}

// Touch updates a file's modification time without changing its content.
// Touching a missing file is a no-op.
func (m *Memory) Touch(id FileID, modTime time.Time) {
	m.mu.Lock()
	if f, ok := m.files[id]; ok {
		f.modTime = modTime
		m.files[id] = f
	}
	m.mu.Unlock()
}

// Remove deletes a file if present.
func (m *Memory) Remove(id FileID) {
	m.mu.Lock()
	delete(m.files, id)
	m.mu.Unlock()
}

// Metadata implements MetadataPort.
func (m *Memory) Metadata(_ context.Context, id FileID) (Metadata, error) {
	m.mu.RLock()
	f, ok := m.files[id]
	m.mu.RUnlock()

	if !ok {
		return Metadata{}, ErrNotFound
	}
	return Metadata{Size: int64(len(f.data)), ModTime: f.modTime}, nil
}

// ReadAt implements ContentPort.
func (m *Memory) ReadAt(_ context.Context, id FileID, p []byte, off int64) (int, error) {
	m.mu.RLock()
	f, ok := m.files[id]
	m.mu.RUnlock()

	if !ok {
		return 0, ErrNotFound
	}
	if off < 0 {
		return 0, ErrInvalidPath
	}
	if off >= int64(len(f.data)) {
		return 0, nil
	}
	return copy(p, f.data[off:]), nil
}
