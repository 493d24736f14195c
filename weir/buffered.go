package weir

import (
	"context"
	"sync"
)

// Preload sizing defaults for BufferedReader.
const (
	// DefaultPreloadLength is the initial read-ahead length.
	DefaultPreloadLength = 512 * 1024

	// DefaultMaxPreloadLength caps read-ahead growth.
	DefaultMaxPreloadLength = 4 * 1024 * 1024
)

// BufferedReader wraps a Source with read-ahead: small sequential reads are
// served from an internal buffer filled by larger inner reads, and the
// preload length doubles after each fill up to a cap. This converts
// byte-at-a-time consumers into a handful of provider round-trips.
//
// BufferedReader keeps the Source contract: always-asynchronous completion,
// single-flight callers, Length passthrough.
type BufferedReader struct {
	src Source

	mu      sync.Mutex
	buf     []byte // buffered window of the stream
	pos     int    // consumed prefix of buf
	preload int
	max     int

	closeOnce sync.Once
	closed    chan struct{}
}

var _ Source = (*BufferedReader)(nil)

// NewBufferedReader wraps src with read-ahead buffering.
//
// preload is the initial read-ahead length and max caps its growth; values
// at or below zero select the defaults.
func NewBufferedReader(src Source, preload, max int) *BufferedReader {
	if preload <= 0 {
		preload = DefaultPreloadLength
	}
	if max <= 0 {
		max = DefaultMaxPreloadLength
	}
	if max < preload {
		max = preload
	}

	return &BufferedReader{
		src:     src,
		preload: preload,
		max:     max,
		closed:  make(chan struct{}),
	}
}

// Read serves from the buffered window when possible, otherwise fills it
// with one inner read of the current preload length. Requests at least as
// large as the preload bypass the buffer entirely.
func (b *BufferedReader) Read(ctx context.Context, p []byte) Pending {
	pending := newPending()
	go b.read(ctx, p, pending)
	return pending
}

// Length passes through to the wrapped source.
func (b *BufferedReader) Length(ctx context.Context) Pending {
	return b.src.Length(ctx)
}

// Close closes the wrapped source and suppresses in-flight completions.
func (b *BufferedReader) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closed)
		err = b.src.Close()
	})
	return err
}

func (b *BufferedReader) read(ctx context.Context, p []byte, pending Pending) {
	b.mu.Lock()
	if b.pos < len(b.buf) {
		n := copy(p, b.buf[b.pos:])
		b.pos += n
		b.mu.Unlock()
		b.deliver(pending, Result{N: int64(n)})
		return
	}
	preload := b.preload
	b.mu.Unlock()

	if len(p) >= preload {
		// Large request: no point staging through the buffer.
		n, err := b.src.Read(ctx, p).Wait(ctx)
		if err != nil {
			b.deliver(pending, Result{Err: err})
			return
		}
		b.deliver(pending, Result{N: n})
		return
	}

	chunk := make([]byte, preload)
	n, err := b.src.Read(ctx, chunk).Wait(ctx)
	if err != nil {
		b.deliver(pending, Result{Err: err})
		return
	}
	if n == 0 {
		b.deliver(pending, Result{N: 0})
		return
	}

	b.mu.Lock()
	b.buf = chunk[:n]
	served := copy(p, b.buf)
	b.pos = served
	if b.preload < b.max {
		b.preload *= 2
		if b.preload > b.max {
			b.preload = b.max
		}
	}
	b.mu.Unlock()

	b.deliver(pending, Result{N: int64(served)})
}

func (b *BufferedReader) deliver(pending Pending, res Result) {
	select {
	case <-b.closed:
		return
	default:
	}
	pending.complete(res)
}
