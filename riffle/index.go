package riffle

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pithecene-io/riffle/internal/tfrecord"
)

// scanBufferSize is the read-ahead buffer for per-container scans.
const scanBufferSize = 64 * 1024

// Open scans every container in paths and builds a Dataset over the
// records found.
//
// One scan task runs per path, with at most WithMaxWorkers tasks active at
// once; each task holds one open-file permit for the duration of its scan.
// The resulting index concatenates per-path results in the order paths
// were given; task completion order never affects record order.
//
// The first corruption or I/O error aborts the build and is returned; no
// partial index is ever returned. Frame checksums are verified during the
// build when WithIntegrityCheck is left at its default; they are never
// re-checked on later reads.
func Open(ctx context.Context, paths []string, opts ...Option) (*Dataset, error) {
	cfg := &datasetConfig{
		source:         NewFSSource(),
		codec:          NewBytesCodec(),
		checkIntegrity: true,
	}

	for _, opt := range opts {
		if err := opt.applyDataset(cfg); err != nil {
			return nil, fmt.Errorf("riffle: %w", err)
		}
	}

	if cfg.source == nil {
		return nil, errors.New("riffle: source must not be nil")
	}
	if cfg.codec == nil {
		return nil, errors.New("riffle: codec must not be nil")
	}

	maxWorkers := cfg.maxWorkers
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}

	var sem *semaphore.Weighted
	if cfg.maxOpenFiles > 0 {
		sem = semaphore.NewWeighted(int64(cfg.maxOpenFiles))
	}

	// Results land in a slot per input position, not in completion order.
	perPath := make([][]RecordRef, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			refs, err := scanContainer(gctx, cfg.source, sem, path, cfg.checkIntegrity)
			if err != nil {
				return err
			}
			perPath[i] = refs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var refs []RecordRef
	for _, rs := range perPath {
		refs = append(refs, rs...)
	}

	return &Dataset{
		state: &datasetState{
			refs:   refs,
			source: cfg.source,
			codec:  cfg.codec,
			sem:    sem,
		},
	}, nil
}

// scanContainer records a locator for every frame in one container. The
// open-file permit is held for the whole scan and released when the scan
// completes or fails.
func scanContainer(ctx context.Context, src Source, sem *semaphore.Weighted, path string, verify bool) ([]RecordRef, error) {
	o, err := openWithPermit(ctx, src, sem, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = o.close() }()

	size := o.c.Size()
	br := bufio.NewReaderSize(io.NewSectionReader(o.c, 0, size), scanBufferSize)

	var refs []RecordRef
	pos := int64(0)
	for {
		length, ok, err := tfrecord.ReadLength(br, verify)
		if err != nil {
			return nil, fmt.Errorf("riffle: indexing %s at offset %d: %w", path, pos, err)
		}
		if !ok {
			return refs, nil
		}
		pos += tfrecord.HeaderSize

		// The declared frame must fit the container, verified or not.
		if rem := uint64(size - pos); length > rem || length+tfrecord.FooterSize > rem {
			return nil, fmt.Errorf("riffle: indexing %s at offset %d: %w: frame extends past end of container", path, pos, ErrCorrupted)
		}

		refs = append(refs, RecordRef{Path: path, Offset: pos, Length: int64(length)})

		if verify {
			if _, err := tfrecord.ReadPayload(br, length, true); err != nil {
				return nil, fmt.Errorf("riffle: indexing %s at offset %d: %w", path, pos, err)
			}
		} else if err := tfrecord.Skip(br, length); err != nil {
			return nil, fmt.Errorf("riffle: indexing %s at offset %d: %w", path, pos, err)
		}

		pos += int64(length) + tfrecord.FooterSize
	}
}
