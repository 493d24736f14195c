package weir

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Fault-Injection Provider Wrapper (test-only)
// -----------------------------------------------------------------------------
//
// countingProvider wraps a Provider and enables deterministic fault injection
// for testing failure paths. It provides:
//   - Error injection on specific operations
//   - Call counting
//   - Blocking/synchronization points
//
// This is NOT production code. It exists to verify contract guarantees under
// controlled failure conditions without relying on timing.

type countingProvider struct {
	inner Provider

	mu sync.Mutex

	// Error injection: set these to inject errors on specific operations.
	metadataErr error
	readErr     error
	readErrOnce bool // if set, readErr is cleared after one injection

	// Call counting.
	metadataCalls int
	readCalls     int

	// Blocking: if non-nil, Metadata blocks until the channel is closed.
	metadataBlock chan struct{}
}

func (c *countingProvider) Metadata(ctx context.Context, id FileID) (Metadata, error) {
	c.mu.Lock()
	c.metadataCalls++
	block := c.metadataBlock
	injected := c.metadataErr
	c.mu.Unlock()

	if block != nil {
		<-block
	}
	if injected != nil {
		return Metadata{}, injected
	}
	return c.inner.Metadata(ctx, id)
}

func (c *countingProvider) ReadAt(ctx context.Context, id FileID, p []byte, off int64) (int, error) {
	c.mu.Lock()
	c.readCalls++
	injected := c.readErr
	if injected != nil && c.readErrOnce {
		c.readErr = nil
	}
	c.mu.Unlock()

	if injected != nil {
		return 0, injected
	}
	return c.inner.ReadAt(ctx, id, p, off)
}

func (c *countingProvider) metadataCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadataCalls
}

func (c *countingProvider) readCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readCalls
}

// -----------------------------------------------------------------------------
// Fault tests
// -----------------------------------------------------------------------------

func TestStreamReader_ContentFailureDoesNotPoison(t *testing.T) {
	ctx := context.Background()
	transient := errors.New("provider: connection reset")
	provider := &countingProvider{
		inner:       newDocProvider(),
		readErr:     transient,
		readErrOnce: true,
	}

	r := NewStreamReader(provider, "doc.txt", 0, docModTime)
	defer func() { _ = r.Close() }()

	buf := make([]byte, 4)
	_, err := r.Read(ctx, buf).Wait(ctx)
	if !errors.Is(err, transient) {
		t.Fatalf("expected injected error, got: %v", err)
	}
	if off := r.Offset(); off != 0 {
		t.Errorf("cursor advanced on failed read: %d", off)
	}

	// The cached Validated state survives; the retry succeeds without a
	// second metadata fetch.
	n, err := r.Read(ctx, buf).Wait(ctx)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if n != 4 || string(buf) != "abcd" {
		t.Errorf("expected %q, got %q", "abcd", string(buf[:n]))
	}
	if calls := provider.metadataCount(); calls != 1 {
		t.Errorf("expected 1 metadata fetch, got %d", calls)
	}
}

func TestStreamReader_MetadataFailureIsTerminal(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("provider: internal error")
	provider := &countingProvider{inner: newDocProvider(), metadataErr: boom}

	r := NewStreamReader(provider, "doc.txt", 0, docModTime)
	defer func() { _ = r.Close() }()

	res := <-r.Read(ctx, make([]byte, 4)).Done()
	if !errors.Is(res.Err, boom) {
		t.Fatalf("expected injected error, got: %v", res.Err)
	}
	if res.Code() != CodeProviderFailure {
		t.Errorf("expected code %d, got %d", CodeProviderFailure, res.Code())
	}

	// The failure is cached; no second fetch happens.
	if _, err := r.Length(ctx).Wait(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected cached error, got: %v", err)
	}
	if calls := provider.metadataCount(); calls != 1 {
		t.Errorf("expected 1 metadata fetch, got %d", calls)
	}
}

func TestStreamReader_OperationQueuedBehindValidation(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	provider := &countingProvider{inner: newDocProvider(), metadataBlock: gate}

	r := NewStreamReader(provider, "doc.txt", 0, docModTime)
	defer func() { _ = r.Close() }()

	buf := make([]byte, 4)
	pending := r.Read(ctx, buf)

	// Validation is in flight; nothing may complete yet.
	select {
	case res := <-pending.Done():
		t.Fatalf("completed before validation resolved: %+v", res)
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)

	n, err := pending.Wait(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != 4 || string(buf) != "abcd" {
		t.Errorf("expected %q, got %q", "abcd", string(buf[:n]))
	}
}

func TestStreamReader_Close_SuppressesCompletion(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	provider := &countingProvider{inner: newDocProvider(), metadataBlock: gate}

	r := NewStreamReader(provider, "doc.txt", 0, docModTime)

	pending := r.Read(ctx, make([]byte, 4))

	// Close while validation is still blocked, then release it.
	_ = r.Close()
	close(gate)

	select {
	case res := <-pending.Done():
		t.Fatalf("completion delivered after Close: %+v", res)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStreamReader_Close_Idempotent(t *testing.T) {
	r := NewStreamReader(newDocProvider(), "doc.txt", 0, docModTime)
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestStreamReader_ContextCanceledWhileQueued(t *testing.T) {
	gate := make(chan struct{})
	provider := &countingProvider{inner: newDocProvider(), metadataBlock: gate}

	r := NewStreamReader(provider, "doc.txt", 0, docModTime)
	defer func() { _ = r.Close() }()

	first := r.Read(context.Background(), make([]byte, 4))

	// Wait for the first operation to own the metadata fetch.
	for i := 0; provider.metadataCount() == 0 && i < 1000; i++ {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	queued := r.Length(ctx)
	cancel()

	if _, err := queued.Wait(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}

	close(gate)
	if _, err := first.Wait(context.Background()); err != nil {
		t.Fatalf("first Read failed: %v", err)
	}
}
