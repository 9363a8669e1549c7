package riffle

import (
	"bytes"
	"context"
	"fmt"
	"os"
)

// -----------------------------------------------------------------------------
// Filesystem Source
// -----------------------------------------------------------------------------

// fsSource opens containers from the local filesystem.
type fsSource struct{}

// NewFSSource creates the default Source, backed by the local filesystem.
// Paths are passed to the OS as given.
func NewFSSource() Source {
	return fsSource{}
}

func (fsSource) Open(_ context.Context, path string) (Container, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &fileContainer{File: f, size: info.Size()}, nil
}

// fileContainer wraps an open file with its size at open time.
type fileContainer struct {
	*os.File
	size int64
}

func (c *fileContainer) Size() int64 {
	return c.size
}

// -----------------------------------------------------------------------------
// Memory Source
// -----------------------------------------------------------------------------

// memorySource serves containers from an in-memory map.
type memorySource struct {
	data map[string][]byte
}

// NewMemorySource creates a Source over the given container contents,
// keyed by path. The contents are copied; later changes to the input map
// or its slices do not affect the source.
//
// The source is immutable after construction and safe for concurrent use.
func NewMemorySource(containers map[string][]byte) Source {
	data := make(map[string][]byte, len(containers))
	for path, b := range containers {
		data[path] = append([]byte(nil), b...)
	}
	return &memorySource{data: data}
}

func (m *memorySource) Open(_ context.Context, path string) (Container, error) {
	data, exists := m.data[path]
	if !exists {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return memoryContainer{Reader: bytes.NewReader(data)}, nil
}

// memoryContainer adapts a bytes.Reader to the Container interface.
// ReadAt and Size are promoted from the embedded reader.
type memoryContainer struct {
	*bytes.Reader
}

func (memoryContainer) Close() error {
	return nil
}
