// Package riffle provides random-access and sequential retrieval of
// individually framed binary records stored across one or more container
// files.
//
// Riffle builds a flat, order-preserving index over many containers under
// bounded worker and open-file concurrency, then serves single-record
// reads and lazy streams through a per-handle cached file handle. It is a
// read path only: containers are produced elsewhere and never mutated.
package riffle

import (
	"context"
	"fmt"
	"io"

	"github.com/pithecene-io/riffle/internal/tfrecord"
)

// -----------------------------------------------------------------------------
// Core types
// -----------------------------------------------------------------------------

// RecordRef locates one record's payload within a container. Refs are
// immutable once the index is built.
type RecordRef struct {
	// Path is the container the record lives in.
	Path string

	// Offset is the byte offset of the payload within the container.
	Offset int64

	// Length is the payload size in bytes.
	Length int64
}

// -----------------------------------------------------------------------------
// Source interface
// -----------------------------------------------------------------------------

// Container is an open, random-access handle to one container file.
//
// A Container counts against the configured open-file cap from Open until
// Close.
type Container interface {
	io.ReaderAt
	io.Closer

	// Size returns the container's total size in bytes.
	Size() int64
}

// Source opens containers for reading.
//
// Implementations may target the local filesystem, memory, or object
// stores. The interface is intentionally minimal to avoid backend-specific
// leakage.
type Source interface {
	// Open returns a handle to the container at the given path.
	// Returns ErrNotFound if the path does not exist.
	Open(ctx context.Context, path string) (Container, error)
}

// -----------------------------------------------------------------------------
// Codec interface
// -----------------------------------------------------------------------------

// Codec decodes one record payload into a typed value.
//
// Codecs are pluggable and orthogonal to storage and framing. A codec
// failure is surfaced for that record only; it never invalidates the index
// or other records.
type Codec interface {
	// Name returns the codec identifier (for example, "bytes" or "json").
	Name() string

	// Decode turns a record's payload bytes into a value.
	Decode(data []byte) (any, error)
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values for common conditions.
var (
	// ErrNotFound indicates a container path that does not exist.
	ErrNotFound = errNotFound{}

	// ErrCorrupted indicates a frame that fails its integrity checks: a
	// checksum mismatch or a frame that starts but cannot be completed.
	// During an index build it aborts the build; no partial index is
	// returned.
	ErrCorrupted = tfrecord.ErrCorrupted
)

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

// DecodeError reports a codec failure for a single record.
type DecodeError struct {
	// Index is the record's position in the dataset.
	Index int

	// Err is the error returned by the codec.
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("riffle: decoding record %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
