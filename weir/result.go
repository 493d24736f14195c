package weir

import (
	"context"
	"errors"
)

// -----------------------------------------------------------------------------
// Completion
// -----------------------------------------------------------------------------

// Result is the outcome of a single Read or Length operation.
//
// Exactly one of the two views applies: Err == nil and N holds a byte count
// or size, or Err != nil and N is zero.
type Result struct {
	N   int64
	Err error
}

// Code renders the result in the int64 wire encoding: non-negative byte
// count or size on success, a negative code otherwise.
func (r Result) Code() int64 {
	switch {
	case r.Err == nil:
		return r.N
	case errors.Is(r.Err, ErrNotFound):
		return CodeNotFound
	case errors.Is(r.Err, ErrContentChanged):
		return CodeContentChanged
	default:
		return CodeProviderFailure
	}
}

// Pending is a single-shot completion handle. The operation that returned it
// delivers exactly one Result, unless the owning reader was closed first, in
// which case nothing is ever delivered.
type Pending struct {
	ch chan Result
}

func newPending() Pending {
	return Pending{ch: make(chan Result, 1)}
}

// Done returns the completion channel. At most one Result is ever sent.
func (p Pending) Done() <-chan Result {
	return p.ch
}

// Wait blocks until the operation completes or ctx is done.
//
// If the owning reader was closed while the operation was in flight, the
// completion is suppressed and Wait returns only once ctx is done.
func (p Pending) Wait(ctx context.Context) (int64, error) {
	select {
	case res := <-p.ch:
		return res.N, res.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// complete delivers a result. The channel is buffered, so the send never
// blocks the operation goroutine.
func (p Pending) complete(res Result) {
	p.ch <- res
}
