package weir

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// discardHandler matches slog.DiscardHandler (Go 1.24+), which is
// unavailable on the Go 1.21 toolchain this module builds with.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }

// validationState tracks the reader's one-time metadata validation.
// Transitions are monotonic: notStarted → inFlight → validated | failed.
type validationState int

const (
	validationNotStarted validationState = iota
	validationInFlight
	validationValidated
	validationFailed
)

// StreamReader serves sequential byte ranges of a single provider file,
// validated once against a caller-supplied modification-time snapshot.
//
// Construction performs no I/O. The first Read or Length triggers a single
// metadata fetch; its outcome is cached for the reader's lifetime. If the
// provider's modification time differs from the snapshot, every operation
// fails with ErrContentChanged. A zero expected time disables the check.
//
// A StreamReader is single-flight: callers must wait for an operation's
// completion before issuing the next one on the same instance. Concurrent
// operations on one instance are undefined behavior, mirroring sequential
// stream semantics. Completions are delivered in issue order.
type StreamReader struct {
	provider Provider
	id       FileID
	expected time.Time
	log      *slog.Logger

	mu     sync.Mutex
	cursor int64
	state  validationState
	meta   Metadata
	verr   error         // terminal validation error, set iff state == validationFailed
	ready  chan struct{} // closed when validation resolves

	closeOnce sync.Once
	closed    chan struct{}
}

var _ Source = (*StreamReader)(nil)

// NewStreamReader creates a reader for id bound to the given provider.
//
// offset is the initial cursor position and must be non-negative.
// expectedModTime is the caller's snapshot of the file's modification time;
// the zero time disables the consistency check.
func NewStreamReader(provider Provider, id FileID, offset int64, expectedModTime time.Time, opts ...ReaderOption) *StreamReader {
	cfg := readerConfig{log: slog.New(discardHandler{})}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &StreamReader{
		provider: provider,
		id:       id,
		expected: expectedModTime,
		cursor:   offset,
		log:      cfg.log,
		closed:   make(chan struct{}),
	}
}

// Read reads up to len(p) bytes at the current cursor into p.
//
// The returned Pending completes with the number of bytes delivered.
// Requests past the validated size are clamped to the remaining bytes; a
// read at or past end-of-file completes with 0 without contacting the
// provider. The cursor advances only by bytes actually delivered.
//
// The caller must not touch p until the operation completes.
func (r *StreamReader) Read(ctx context.Context, p []byte) Pending {
	pending := newPending()
	go r.read(ctx, p, pending)
	return pending
}

// Length reports the validated file size. It shares Read's validation gate
// and never moves the cursor or contacts the content port.
func (r *StreamReader) Length(ctx context.Context) Pending {
	pending := newPending()
	go r.length(ctx, pending)
	return pending
}

// Offset returns the current cursor position.
func (r *StreamReader) Offset() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Close releases the reader. Completions of in-flight operations observed
// after Close are suppressed; their Pending handles never deliver.
func (r *StreamReader) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}

func (r *StreamReader) read(ctx context.Context, p []byte, pending Pending) {
	if err := r.validate(ctx); err != nil {
		r.deliver(pending, Result{Err: err})
		return
	}

	r.mu.Lock()
	if r.state == validationFailed {
		verr := r.verr
		r.mu.Unlock()
		r.deliver(pending, Result{Err: verr})
		return
	}
	cursor := r.cursor
	size := r.meta.Size
	r.mu.Unlock()

	available := size - cursor
	if available < 0 {
		available = 0
	}
	want := int64(len(p))
	if want > available {
		want = available
	}
	if want == 0 {
		// EOF. The content port is not contacted and the cursor stays put.
		r.deliver(pending, Result{N: 0})
		return
	}

	n, err := r.provider.ReadAt(ctx, r.id, p[:want], cursor)
	if err != nil && !(errors.Is(err, io.EOF) && n > 0) {
		// A transient content failure does not poison the cached
		// validation; a later Read on this reader may still succeed.
		r.deliver(pending, Result{Err: err})
		return
	}

	r.mu.Lock()
	r.cursor += int64(n)
	r.mu.Unlock()

	r.log.Debug("read", "id", string(r.id), "offset", cursor, "bytes", n)
	r.deliver(pending, Result{N: int64(n)})
}

func (r *StreamReader) length(ctx context.Context, pending Pending) {
	if err := r.validate(ctx); err != nil {
		r.deliver(pending, Result{Err: err})
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == validationFailed {
		r.deliver(pending, Result{Err: r.verr})
		return
	}
	r.deliver(pending, Result{N: r.meta.Size})
}

// validate resolves the reader's validation state, fetching metadata exactly
// once per instance. Operations arriving while the fetch is in flight wait
// for it to resolve. The returned error is non-nil only when ctx ended
// before resolution; the validation outcome itself lives in the state.
func (r *StreamReader) validate(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case validationValidated, validationFailed:
		r.mu.Unlock()
		return nil
	case validationInFlight:
		ready := r.ready
		r.mu.Unlock()
		select {
		case <-ready:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.state = validationInFlight
	r.ready = make(chan struct{})
	ready := r.ready
	r.mu.Unlock()

	meta, err := r.provider.Metadata(ctx, r.id)

	r.mu.Lock()
	switch {
	case err != nil:
		r.state = validationFailed
		r.verr = err
	case !r.expected.IsZero() && !meta.ModTime.Equal(r.expected):
		// Optimistic-concurrency guard: the file mutated between the
		// caller's snapshot and this first access.
		r.state = validationFailed
		r.verr = ErrContentChanged
	default:
		r.state = validationValidated
		r.meta = meta
	}
	verr := r.verr
	r.mu.Unlock()
	close(ready)

	r.log.Debug("validation resolved", "id", string(r.id), "size", meta.Size, "err", verr)
	return nil
}

// deliver completes pending unless the reader was closed first.
func (r *StreamReader) deliver(pending Pending, res Result) {
	select {
	case <-r.closed:
		return
	default:
	}
	pending.complete(res)
}
