package weir

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
)

// countingSource wraps a Source and counts inner reads.
type countingSource struct {
	inner Source

	mu     sync.Mutex
	reads  int
	closed bool
}

func (c *countingSource) Read(ctx context.Context, p []byte) Pending {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.inner.Read(ctx, p)
}

func (c *countingSource) Length(ctx context.Context) Pending {
	return c.inner.Length(ctx)
}

func (c *countingSource) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.inner.Close()
}

func (c *countingSource) readCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func newDocSource() *countingSource {
	return &countingSource{
		inner: NewStreamReader(newDocProvider(), "doc.txt", 0, docModTime),
	}
}

func TestBufferedReader_ByteAtATime(t *testing.T) {
	ctx := context.Background()
	src := newDocSource()
	b := NewBufferedReader(src, 4, 16)
	defer func() { _ = b.Close() }()

	var got bytes.Buffer
	for {
		buf := make([]byte, 1)
		n, err := b.Read(ctx, buf).Wait(ctx)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if n == 0 {
			break
		}
		got.Write(buf[:n])
	}

	if got.String() != docContent {
		t.Errorf("expected %q, got %q", docContent, got.String())
	}
	// Two fills (4 bytes, then the doubled 8-byte preload clamped to the
	// remaining 6) plus the EOF probe.
	if reads := src.readCount(); reads != 3 {
		t.Errorf("expected 3 inner reads, got %d", reads)
	}
}

func TestBufferedReader_LargeReadBypassesBuffer(t *testing.T) {
	ctx := context.Background()
	src := newDocSource()
	b := NewBufferedReader(src, 4, 16)
	defer func() { _ = b.Close() }()

	buf := make([]byte, len(docContent))
	n, err := b.Read(ctx, buf).Wait(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != int64(len(docContent)) || string(buf) != docContent {
		t.Errorf("expected %q, got %q", docContent, string(buf[:n]))
	}
	if reads := src.readCount(); reads != 1 {
		t.Errorf("expected 1 inner read, got %d", reads)
	}
}

func TestBufferedReader_LengthPassthrough(t *testing.T) {
	ctx := context.Background()
	src := newDocSource()
	b := NewBufferedReader(src, 4, 16)
	defer func() { _ = b.Close() }()

	n, err := b.Length(ctx).Wait(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if n != int64(len(docContent)) {
		t.Errorf("expected %d, got %d", len(docContent), n)
	}
	if reads := src.readCount(); reads != 0 {
		t.Errorf("Length triggered %d inner reads", reads)
	}
}

func TestBufferedReader_PropagatesError(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{
		inner: NewStreamReader(newDocProvider(), "missing.txt", 0, docModTime),
	}
	b := NewBufferedReader(src, 4, 16)
	defer func() { _ = b.Close() }()

	_, err := b.Read(ctx, make([]byte, 4)).Wait(ctx)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestBufferedReader_CloseClosesSource(t *testing.T) {
	src := newDocSource()
	b := NewBufferedReader(src, 0, 0)

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	src.mu.Lock()
	closed := src.closed
	src.mu.Unlock()
	if !closed {
		t.Error("inner source not closed")
	}
}

func TestBufferedReader_DefaultSizing(t *testing.T) {
	b := NewBufferedReader(newDocSource(), 0, 0)
	defer func() { _ = b.Close() }()

	if b.preload != DefaultPreloadLength {
		t.Errorf("expected default preload %d, got %d", DefaultPreloadLength, b.preload)
	}
	if b.max != DefaultMaxPreloadLength {
		t.Errorf("expected default max %d, got %d", DefaultMaxPreloadLength, b.max)
	}
}
