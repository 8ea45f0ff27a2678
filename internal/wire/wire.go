// Package wire frames values stored in external byte stores so that a
// provider-backed node can enforce per-entry expiry itself, even when the
// store only supports a global lifetime (bigcache) or none at all.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version   byte = 1
	kindEntry byte = 1

	headerLen = 4 + 1 + 1 + 8 + 4
)

var (
	ErrCorrupt = errors.New("ringcache: corrupt entry")
	magic4     = [...]byte{'R', 'N', 'G', 'C'}
)

// Entry is a decoded envelope. Payload aliases the input buffer.
type Entry struct {
	ExpiresAt time.Time // zero => never
	Payload   []byte
}

// Expired reports whether e is past its deadline at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Encode frames payload:
//
//	magic(4) | ver(1) | kind(1) | expiresAt(i64 be, unix nanos, 0 = never) | vlen(u32 be) | payload
func Encode(expiresAt time.Time, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(headerLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte

	var exp int64
	if !expiresAt.IsZero() {
		exp = expiresAt.UnixNano()
	}
	binary.BigEndian.PutUint64(u8[:], uint64(exp))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// Decode parses an envelope. Anything but an exact, well-formed frame is ErrCorrupt.
func Decode(b []byte) (Entry, error) {
	if len(b) < headerLen || !bytes.Equal(b[:4], magic4[:]) || b[4] != version || b[5] != kindEntry {
		return Entry{}, ErrCorrupt
	}
	off := 6

	exp := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}

	e := Entry{Payload: b[off:]}
	if exp != 0 {
		e.ExpiresAt = time.Unix(0, exp)
	}
	return e, nil
}
