// Package weir provides validated, offset-addressable stream reading over
// pluggable file system providers.
//
// Weir focuses on the read path: a caller takes a modification-time snapshot
// of a file exposed by a provider (in-memory, local filesystem, HTTP, S3),
// then reads byte ranges through a StreamReader that validates the snapshot
// before the first byte is served. It does not implement writes, directory
// listing, or provider mounting policy.
package weir

import (
	"context"
	"time"
)

// -----------------------------------------------------------------------------
// Core types
// -----------------------------------------------------------------------------

// FileID names a file within a provider's namespace. It is opaque to the
// reader; equality is by value.
type FileID string

// Metadata describes a provider file at validation time.
//
// A Metadata value is produced once per reader instance and is immutable
// once obtained.
type Metadata struct {
	// Size is the file size in bytes.
	Size int64

	// ModTime is the provider's last-modification timestamp.
	ModTime time.Time
}

// -----------------------------------------------------------------------------
// Provider ports
// -----------------------------------------------------------------------------

// MetadataPort is the provider capability for metadata lookups.
type MetadataPort interface {
	// Metadata returns size and last-modification time for a file.
	// Returns ErrNotFound if the file does not exist.
	Metadata(ctx context.Context, id FileID) (Metadata, error)
}

// ContentPort is the provider capability for ranged content reads.
type ContentPort interface {
	// ReadAt reads up to len(p) bytes starting at off into p and reports
	// the number of bytes read. A short count is not an error, and
	// implementations must not return io.EOF; a read at or past the end
	// of the file reports 0, nil.
	// Returns ErrNotFound if the file does not exist.
	ReadAt(ctx context.Context, id FileID, p []byte, off int64) (int, error)
}

// Provider combines the metadata and content capabilities.
//
// Implementations may target memory, local filesystems, HTTP servers, or
// object stores. Both ports must agree on the namespace of FileIDs.
type Provider interface {
	MetadataPort
	ContentPort
}

// -----------------------------------------------------------------------------
// Source
// -----------------------------------------------------------------------------

// Source is the asynchronous read surface shared by StreamReader and its
// wrappers.
//
// Every operation completes exactly once through the returned Pending, even
// when the outcome is already known. Callers must not issue a second
// operation on the same Source before the previous one completed.
type Source interface {
	// Read reads up to len(p) bytes at the current cursor.
	Read(ctx context.Context, p []byte) Pending

	// Length reports the validated file size. It never moves the cursor.
	Length(ctx context.Context) Pending

	// Close releases the source and suppresses any in-flight completion.
	Close() error
}

// -----------------------------------------------------------------------------
// Result codes
// -----------------------------------------------------------------------------

// Negative result codes for the int64 completion encoding.
// Non-negative values are byte counts or sizes.
const (
	// CodeProviderFailure covers provider-side errors other than the two
	// dedicated kinds below.
	CodeProviderFailure int64 = -1

	// CodeNotFound indicates the file did not exist at validation time.
	CodeNotFound int64 = -2

	// CodeContentChanged indicates the file mutated between the caller's
	// snapshot and validation.
	CodeContentChanged int64 = -3
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values for common conditions.
var (
	// ErrNotFound indicates the identified file does not exist in the
	// provider.
	ErrNotFound = errNotFound{}

	// ErrContentChanged indicates the provider's modification time differs
	// from the caller-supplied snapshot.
	ErrContentChanged = errContentChanged{}

	// ErrInvalidPath indicates a file identifier that would escape the
	// provider's namespace.
	ErrInvalidPath = errInvalidPath{}
)

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

type errContentChanged struct{}

func (errContentChanged) Error() string { return "content changed since snapshot" }

type errInvalidPath struct{}

func (errInvalidPath) Error() string { return "invalid path: escapes provider namespace" }
