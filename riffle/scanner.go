package riffle

import (
	"bufio"
	"fmt"
	"io"

	"github.com/pithecene-io/riffle/internal/tfrecord"
)

// Scanner reads record payloads in on-disk order from a single container
// stream, without building an index. Use it when records are consumed once
// front to back; use Open when random access or multi-container order
// matters.
type Scanner struct {
	r      *bufio.Reader
	verify bool
}

// NewScanner creates a Scanner over one container stream.
//
// Default behavior:
//   - Integrity checking: enabled
//
// Use WithIntegrityCheck(false) to skip checksum verification. Options
// that configure index builds return an error here.
func NewScanner(r io.Reader, opts ...Option) (*Scanner, error) {
	cfg := &scannerConfig{checkIntegrity: true}

	for _, opt := range opts {
		if err := opt.applyScanner(cfg); err != nil {
			return nil, fmt.Errorf("riffle: %w", err)
		}
	}

	return &Scanner{
		r:      bufio.NewReaderSize(r, scanBufferSize),
		verify: cfg.checkIntegrity,
	}, nil
}

// Next returns the next record payload. ok is false at a clean end of the
// container. A frame that starts but cannot be completed is ErrCorrupted.
func (s *Scanner) Next() (payload []byte, ok bool, err error) {
	length, ok, err := tfrecord.ReadLength(s.r, s.verify)
	if err != nil || !ok {
		return nil, false, err
	}

	payload, err = tfrecord.ReadPayload(s.r, length, s.verify)
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}
