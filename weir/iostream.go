package weir

import (
	"context"
	"io"
)

// blockingReader adapts a Source to io.ReadCloser.
type blockingReader struct {
	ctx context.Context
	src Source
}

// NewBlockingReader wraps src in a plain io.ReadCloser for callers that
// want io.Copy semantics. Each Read blocks until the underlying operation
// completes or ctx is done; a byte count of 0 is surfaced as io.EOF.
func NewBlockingReader(ctx context.Context, src Source) io.ReadCloser {
	return &blockingReader{ctx: ctx, src: src}
}

func (b *blockingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := b.src.Read(b.ctx, p).Wait(b.ctx)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return int(n), nil
}

func (b *blockingReader) Close() error {
	return b.src.Close()
}
