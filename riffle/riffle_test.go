package riffle

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/riffle/internal/tfrecord"
)

// buildContainer fabricates a container holding the given payloads as
// consecutive frames.
func buildContainer(payloads ...[]byte) []byte {
	var container []byte
	for _, p := range payloads {
		container = tfrecord.AppendFrame(container, p)
	}
	return container
}

// countingSource wraps a Source and tracks how many containers are open,
// the high-water mark, and the total number of opens.
type countingSource struct {
	inner Source

	mu      sync.Mutex
	open    int
	maxOpen int
	opens   int
}

func newCountingSource(inner Source) *countingSource {
	return &countingSource{inner: inner}
}

func (s *countingSource) Open(ctx context.Context, path string) (Container, error) {
	c, err := s.inner.Open(ctx, path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.open++
	s.opens++
	if s.open > s.maxOpen {
		s.maxOpen = s.open
	}
	s.mu.Unlock()

	return &countedContainer{Container: c, src: s}, nil
}

func (s *countingSource) stats() (open, maxOpen, opens int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open, s.maxOpen, s.opens
}

type countedContainer struct {
	Container
	src    *countingSource
	closed bool
}

func (c *countedContainer) Close() error {
	if !c.closed {
		c.closed = true
		c.src.mu.Lock()
		c.src.open--
		c.src.mu.Unlock()
	}
	return c.Container.Close()
}

// delaySource wraps a Source and delays Open for selected paths, to force
// a specific task completion order during index builds.
type delaySource struct {
	inner  Source
	delays map[string]time.Duration
}

func (s *delaySource) Open(ctx context.Context, path string) (Container, error) {
	if d, ok := s.delays[path]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.inner.Open(ctx, path)
}
