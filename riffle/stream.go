package riffle

import (
	"context"
	"errors"
)

// Stream is a lazy, ordered, finite cursor over every record in a Dataset,
// equivalent to calling Get(0), Get(1), ... until the absent result.
type Stream struct {
	ds  *Dataset
	pos int
}

// Stream returns a new cursor positioned before the first record.
//
// The cursor runs over its own clone of the handle: it opens containers
// independently and leaves the originating handle's cache untouched. Every
// call returns a fresh cursor at position zero; cursors never share state.
func (d *Dataset) Stream() *Stream {
	return &Stream{ds: d.Clone()}
}

// Next returns the next decoded record. ok is false once the cursor has
// moved past the final record; that is the normal termination signal, not
// an error.
//
// A *DecodeError is reported for the failing record only and the cursor
// advances past it; callers may keep consuming or stop, at their choice.
// Any other error leaves the cursor in place.
func (s *Stream) Next(ctx context.Context) (record any, ok bool, err error) {
	record, ok, err = s.ds.Get(ctx, s.pos)
	if err != nil {
		var decErr *DecodeError
		if errors.As(err, &decErr) {
			s.pos++
		}
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	s.pos++
	return record, true, nil
}

// Pos returns the cursor's current position: the index Next will read.
func (s *Stream) Pos() int {
	return s.pos
}

// Close releases the cursor's cached container, if any.
func (s *Stream) Close() error {
	return s.ds.Close()
}
