// Package wire frames a cache item for storage.
//
//	magic(4) | ver(1) | kind(1=item) | expiresAt(i64 be) | createdAt(i64 be) | plen(u32 be) | payload(plen)
//
// Timestamps are unix nanoseconds; expiresAt == 0 means "never expires".
// The payload is opaque here; it is produced by a codec.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

const (
	version  byte = 1
	kindItem byte = 1

	headerLen = 4 + 1 + 1 + 8 + 8 + 4
)

var (
	ErrCorrupt = errors.New("stash: corrupt entry")
	ErrTooLong = errors.New("stash: payload exceeds 4GiB")
	magic4     = [...]byte{'S', 'T', 'S', 'H'}
)

// Frame is a decoded record. Payload aliases the input buffer.
type Frame struct {
	ExpiresAt int64
	CreatedAt int64
	Payload   []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode returns the framed record.
func Encode(f Frame) ([]byte, error) {
	if uint64(len(f.Payload)) > math.MaxUint32 {
		return nil, ErrTooLong
	}
	var buf bytes.Buffer
	buf.Grow(headerLen + len(f.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindItem)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], uint64(f.ExpiresAt))
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(f.CreatedAt))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(f.Payload)))
	buf.Write(u4[:])

	buf.Write(f.Payload)
	return buf.Bytes(), nil
}

// DecodeHeader parses everything but the payload. It is enough for
// expiry checks and listings.
func DecodeHeader(b []byte) (expiresAt, createdAt int64, plen int, err error) {
	if len(b) < headerLen || !hasMagic(b) || b[4] != version || b[5] != kindItem {
		return 0, 0, 0, ErrCorrupt
	}
	off := 6
	expiresAt = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	createdAt = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	plen = int(binary.BigEndian.Uint32(b[off : off+4]))
	return expiresAt, createdAt, plen, nil
}

// Decode parses a full record. Trailing bytes are rejected.
func Decode(b []byte) (Frame, error) {
	exp, created, plen, err := DecodeHeader(b)
	if err != nil {
		return Frame{}, err
	}
	if plen < 0 || plen != len(b)-headerLen { // overflow-safe exact length check
		return Frame{}, ErrCorrupt
	}
	return Frame{
		ExpiresAt: exp,
		CreatedAt: created,
		Payload:   b[headerLen:],
	}, nil
}
