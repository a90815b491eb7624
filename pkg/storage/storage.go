// Package storage defines a unified access layer for remote object
// storage services. A backend implements the Accessor interface once and
// callers get the same filesystem-like surface (stat, read, write,
// delete, copy, list, presign) regardless of how the remote service
// actually speaks: true multipart upload or sequential append, cursor
// pagination in whatever shape, and whatever error vocabulary the
// service invented.
//
// An Accessor is configured once and immutable afterwards; it is safe to
// share across goroutines. Write and List do not return results
// directly: they hand back a Writer or Pager that the caller drives
// incrementally and that must not be shared or reused after its terminal
// call.
//
// The layer adds no caching and no consistency guarantees of its own.
// The remote service is the sole source of truth.
package storage

import (
	"context"
	"io"
)

// Accessor is the operation contract every backend implements.
//
// All paths are relative to the accessor's configured root; callers
// never see or supply root-qualified paths. Backends must consult their
// own Capability before attempting an operation variant and return an
// Unsupported error for anything they cannot express.
type Accessor interface {
	// Info reports the backend's identity and declared capability.
	// It never touches the network.
	Info() Info

	// Stat returns metadata for the object at path. Stat of the root
	// path ("/" or "") returns directory metadata without a network
	// call. A not-found response for a path ending in "/" is reported
	// as a synthetic directory, not an error.
	Stat(ctx context.Context, path string, args OpStat) (Metadata, error)

	// Read returns the object content. A fully out-of-range request is
	// a successful empty read, not an error.
	Read(ctx context.Context, path string, args OpRead) (*ReadResult, error)

	// Write returns a Writer bound to path. No upload happens until the
	// writer is driven; for multipart backends the object only becomes
	// visible when the writer is closed.
	Write(ctx context.Context, path string, args OpWrite) (Writer, error)

	// Delete removes the object at path. Deleting an absent object
	// succeeds.
	Delete(ctx context.Context, path string) error

	// Copy copies the object at from to to, replacing any existing
	// object at the destination.
	Copy(ctx context.Context, from, to string) error

	// CreateDir ensures path can be statted as a directory. Backends
	// without a native directory concept succeed without side effects.
	CreateDir(ctx context.Context, path string) error

	// List returns a Pager over the entries under path. Nothing is
	// fetched until the pager is driven.
	List(ctx context.Context, path string, args OpList) (Pager, error)

	// Presign builds and query-signs a request for the given operation
	// without sending it.
	Presign(ctx context.Context, path string, args OpPresign) (*PresignedRequest, error)
}

// Info describes a constructed accessor.
type Info struct {
	// Scheme is the backend type, e.g. "s3", "cos", "ghac", "memory".
	Scheme string

	// Name identifies the remote namespace, typically the bucket.
	Name string

	// Root is the normalized path prefix applied to every operation.
	Root string

	// Capability is the feature set this instance supports.
	Capability Capability
}

// ReadResult carries a successful read: the content length the backend
// reported for the selected range and the body stream. The caller owns
// Body and must close it.
type ReadResult struct {
	Size int64
	Body io.ReadCloser
}
