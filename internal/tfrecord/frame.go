// Package tfrecord implements the on-disk framing used by record
// containers.
//
// A container is a sequential concatenation of frames. Each frame is:
//
//	uint64 LE  payload length
//	uint32 LE  masked CRC32-C of the 8 length bytes
//	payload    (length bytes)
//	uint32 LE  masked CRC32-C of the payload
//
// The checksum masking matches the TFRecord format: the raw CRC32-C is
// rotated right by 15 bits and offset by a fixed delta, so that checksums
// of data that itself contains checksums remain well distributed.
package tfrecord

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
)

// Frame field sizes in bytes.
const (
	LengthSize   = 8
	ChecksumSize = 4
	HeaderSize   = LengthSize + ChecksumSize
	FooterSize   = ChecksumSize
)

// ErrCorrupted indicates a frame that starts but cannot be completed: a
// truncated length field, a truncated payload, or a checksum mismatch.
// A clean end of container at a frame boundary is not corruption.
var ErrCorrupted = errors.New("corrupted frame")

const maskDelta = 0xa282ead8

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// MaskedChecksum returns the masked CRC32-C of data.
func MaskedChecksum(data []byte) uint32 {
	c := crc32.Checksum(data, castagnoli)
	return ((c >> 15) | (c << 17)) + maskDelta
}

// ReadLength reads the next frame's length field and its checksum.
// It returns ok=false on a clean end of container, i.e. EOF exactly at a
// frame boundary. EOF anywhere inside the header is ErrCorrupted. The
// header checksum is validated only when verify is set.
func ReadLength(r io.Reader, verify bool) (length uint64, ok bool, err error) {
	var header [HeaderSize]byte

	if _, err := io.ReadFull(r, header[:LengthSize]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, false, nil
		}
		return 0, false, corruptOnEOF(err, "truncated length field")
	}
	if _, err := io.ReadFull(r, header[LengthSize:]); err != nil {
		return 0, false, corruptOnEOF(err, "truncated length checksum")
	}

	if verify {
		want := binary.LittleEndian.Uint32(header[LengthSize:])
		if got := MaskedChecksum(header[:LengthSize]); got != want {
			return 0, false, fmt.Errorf("%w: length checksum mismatch", ErrCorrupted)
		}
	}

	return binary.LittleEndian.Uint64(header[:LengthSize]), true, nil
}

// ReadPayload reads a frame's payload and its trailing checksum. The
// checksum bytes are always consumed so the reader lands on the next frame
// boundary; they are validated only when verify is set.
func ReadPayload(r io.Reader, length uint64, verify bool) ([]byte, error) {
	if length > uint64(math.MaxInt) {
		return nil, fmt.Errorf("%w: frame length %d overflows", ErrCorrupted, length)
	}

	payload := make([]byte, int(length))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, corruptOnEOF(err, "truncated payload")
	}

	var footer [FooterSize]byte
	if _, err := io.ReadFull(r, footer[:]); err != nil {
		return nil, corruptOnEOF(err, "truncated payload checksum")
	}

	if verify {
		if MaskedChecksum(payload) != binary.LittleEndian.Uint32(footer[:]) {
			return nil, fmt.Errorf("%w: payload checksum mismatch", ErrCorrupted)
		}
	}

	return payload, nil
}

// Skip advances the reader past a frame's payload and trailing checksum
// without retaining the bytes.
func Skip(r io.Reader, length uint64) error {
	if length > uint64(math.MaxInt64-FooterSize) {
		return fmt.Errorf("%w: frame length %d overflows", ErrCorrupted, length)
	}
	if _, err := io.CopyN(io.Discard, r, int64(length)+FooterSize); err != nil {
		return corruptOnEOF(err, "truncated payload")
	}
	return nil
}

// AppendFrame appends one complete frame holding payload to dst and
// returns the extended slice. Used by tests and examples to fabricate
// containers; riffle itself never writes.
func AppendFrame(dst, payload []byte) []byte {
	var header [HeaderSize]byte
	binary.LittleEndian.PutUint64(header[:LengthSize], uint64(len(payload)))
	binary.LittleEndian.PutUint32(header[LengthSize:], MaskedChecksum(header[:LengthSize]))

	var footer [FooterSize]byte
	binary.LittleEndian.PutUint32(footer[:], MaskedChecksum(payload))

	dst = append(dst, header[:]...)
	dst = append(dst, payload...)
	return append(dst, footer[:]...)
}

// corruptOnEOF converts short-read errors into ErrCorrupted and passes
// everything else through.
func corruptOnEOF(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s", ErrCorrupted, what)
	}
	return err
}
