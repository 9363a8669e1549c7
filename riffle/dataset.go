package riffle

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// datasetConfig holds the resolved configuration for an index build.
type datasetConfig struct {
	source         Source
	codec          Codec
	checkIntegrity bool
	maxOpenFiles   int // 0 = unbounded
	maxWorkers     int // 0 = available parallelism
}

// scannerConfig holds the resolved configuration for a sequential scanner.
type scannerConfig struct {
	checkIntegrity bool
}

// Option configures Open or NewScanner.
// Options implement methods for the constructors they support.
// Using an option with an unsupported constructor returns an error.
type Option interface {
	applyDataset(*datasetConfig) error
	applyScanner(*scannerConfig) error
}

// ErrOptionNotValidForScanner indicates an option was used with NewScanner
// that only applies to Open.
var ErrOptionNotValidForScanner = errors.New("option not valid for scanner")

// integrityOption implements Option for WithIntegrityCheck.
type integrityOption struct {
	check bool
}

// WithIntegrityCheck controls frame checksum verification.
// Default: true. Verification happens during the index build (or scan)
// only; random reads through an already built index never re-check.
func WithIntegrityCheck(check bool) Option {
	return &integrityOption{check: check}
}

func (o *integrityOption) applyDataset(cfg *datasetConfig) error {
	cfg.checkIntegrity = o.check
	return nil
}

func (o *integrityOption) applyScanner(cfg *scannerConfig) error {
	cfg.checkIntegrity = o.check
	return nil
}

// maxOpenFilesOption implements Option for WithMaxOpenFiles (dataset-only).
type maxOpenFilesOption struct {
	n int
}

// WithMaxOpenFiles caps the number of simultaneously open containers,
// shared between the index build and all later reads through the dataset
// and its clones. Default: unbounded.
// This option is only valid for Open.
func WithMaxOpenFiles(n int) Option {
	return &maxOpenFilesOption{n: n}
}

func (o *maxOpenFilesOption) applyDataset(cfg *datasetConfig) error {
	if o.n <= 0 {
		return errors.New("WithMaxOpenFiles: value must be positive")
	}
	cfg.maxOpenFiles = o.n
	return nil
}

func (o *maxOpenFilesOption) applyScanner(*scannerConfig) error {
	return fmt.Errorf("WithMaxOpenFiles: %w", ErrOptionNotValidForScanner)
}

// maxWorkersOption implements Option for WithMaxWorkers (dataset-only).
type maxWorkersOption struct {
	n int
}

// WithMaxWorkers caps the number of concurrently active indexing tasks.
// Default: the number of available CPUs.
// This option is only valid for Open.
func WithMaxWorkers(n int) Option {
	return &maxWorkersOption{n: n}
}

func (o *maxWorkersOption) applyDataset(cfg *datasetConfig) error {
	if o.n <= 0 {
		return errors.New("WithMaxWorkers: value must be positive")
	}
	cfg.maxWorkers = o.n
	return nil
}

func (o *maxWorkersOption) applyScanner(*scannerConfig) error {
	return fmt.Errorf("WithMaxWorkers: %w", ErrOptionNotValidForScanner)
}

// codecOption implements Option for WithCodec (dataset-only).
type codecOption struct {
	codec Codec
}

// WithCodec sets the codec that Get and Stream hand record payloads to.
// Default: NewBytesCodec() (payloads pass through as []byte).
// This option is only valid for Open.
func WithCodec(c Codec) Option {
	return &codecOption{codec: c}
}

func (o *codecOption) applyDataset(cfg *datasetConfig) error {
	cfg.codec = o.codec
	return nil
}

func (o *codecOption) applyScanner(*scannerConfig) error {
	return fmt.Errorf("WithCodec: %w", ErrOptionNotValidForScanner)
}

// sourceOption implements Option for WithSource (dataset-only).
type sourceOption struct {
	source Source
}

// WithSource sets the source containers are opened through.
// Default: NewFSSource() (local filesystem).
// This option is only valid for Open.
func WithSource(s Source) Option {
	return &sourceOption{source: s}
}

func (o *sourceOption) applyDataset(cfg *datasetConfig) error {
	cfg.source = o.source
	return nil
}

func (o *sourceOption) applyScanner(*scannerConfig) error {
	return fmt.Errorf("WithSource: %w", ErrOptionNotValidForScanner)
}

// -----------------------------------------------------------------------------
// Dataset
// -----------------------------------------------------------------------------

// datasetState is the immutable state shared by every clone of a Dataset:
// the record index, the source, the codec, and the open-file limiter.
// It is never mutated after Open returns, so clones read it without locks.
type datasetState struct {
	refs   []RecordRef
	source Source
	codec  Codec
	sem    *semaphore.Weighted // nil when open files are unbounded
}

// Dataset serves record payloads by position over a built index.
//
// A Dataset handle is not safe for concurrent use: it caches at most one
// open container between reads. For concurrent access, give each goroutine
// its own Clone; clones share the index and the open-file limiter but
// never an open container.
type Dataset struct {
	state *datasetState
	open  *openContainer
}

// NumRecords returns the number of records in the index.
func (d *Dataset) NumRecords() int {
	return len(d.state.refs)
}

// Ref returns the locator for record i, and false when i is out of range.
func (d *Dataset) Ref(i int) (RecordRef, bool) {
	if i < 0 || i >= len(d.state.refs) {
		return RecordRef{}, false
	}
	return d.state.refs[i], true
}

// Clone returns a new handle over the same index. The clone starts with no
// open container and opens its own on first access, even if this handle
// currently has that container open.
func (d *Dataset) Clone() *Dataset {
	return &Dataset{state: d.state}
}

// Close releases the handle's cached container and its open-file permit,
// if any. The index and any clones remain usable.
func (d *Dataset) Close() error {
	if d.open == nil {
		return nil
	}
	o := d.open
	d.open = nil
	return o.close()
}

// GetBytes returns the raw payload of record i, bypassing the codec.
// ok is false when i is out of range; that is the end-of-sequence signal,
// not an error.
func (d *Dataset) GetBytes(ctx context.Context, i int) (data []byte, ok bool, err error) {
	if i < 0 || i >= len(d.state.refs) {
		return nil, false, nil
	}
	ref := d.state.refs[i]

	c, err := d.container(ctx, ref.Path)
	if err != nil {
		return nil, false, err
	}

	buf := make([]byte, ref.Length)
	if _, err := c.ReadAt(buf, ref.Offset); err != nil {
		return nil, false, fmt.Errorf("riffle: reading record %d from %s: %w", i, ref.Path, err)
	}
	return buf, true, nil
}

// Get returns record i decoded through the dataset's codec.
// ok is false when i is out of range. A codec failure is returned as a
// *DecodeError for that record only.
func (d *Dataset) Get(ctx context.Context, i int) (record any, ok bool, err error) {
	data, ok, err := d.GetBytes(ctx, i)
	if err != nil || !ok {
		return nil, ok, err
	}

	record, err = d.state.codec.Decode(data)
	if err != nil {
		return nil, false, &DecodeError{Index: i, Err: err}
	}
	return record, true, nil
}

// container returns an open container for path, reusing the cached handle
// when the path matches and rotating the cache otherwise. Rotation closes
// the previous container and releases its permit before a new permit is
// acquired, so a handle never holds two containers or two permits.
func (d *Dataset) container(ctx context.Context, path string) (Container, error) {
	if d.open != nil && d.open.path == path {
		return d.open.c, nil
	}

	if d.open != nil {
		o := d.open
		d.open = nil
		if err := o.close(); err != nil {
			return nil, fmt.Errorf("riffle: closing %s: %w", o.path, err)
		}
	}

	o, err := openWithPermit(ctx, d.state.source, d.state.sem, path)
	if err != nil {
		return nil, err
	}
	d.open = o
	return o.c, nil
}

// -----------------------------------------------------------------------------
// Open-file permits
// -----------------------------------------------------------------------------

// openContainer pairs an open container with the permit it holds.
type openContainer struct {
	path    string
	c       Container
	release func() // nil once spent
}

// close closes the container and releases its permit exactly once,
// covering both rotation and handle shutdown.
func (o *openContainer) close() error {
	err := o.c.Close()
	if o.release != nil {
		o.release()
		o.release = nil
	}
	return err
}

// openWithPermit acquires one open-file permit (when the limiter is
// bounded) and opens path. The returned container owns the permit; close
// releases both on every exit path. Acquisition suspends the caller while
// the limiter is exhausted.
func openWithPermit(ctx context.Context, src Source, sem *semaphore.Weighted, path string) (*openContainer, error) {
	var release func()
	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		release = func() { sem.Release(1) }
	}

	c, err := src.Open(ctx, path)
	if err != nil {
		if release != nil {
			release()
		}
		return nil, fmt.Errorf("riffle: opening %s: %w", path, err)
	}

	return &openContainer{path: path, c: c, release: release}, nil
}
