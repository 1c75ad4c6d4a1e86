// Package wire frames parked snapshots.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version      byte = 1
	kindSnapshot byte = 1

	maxKeyLen = 0xFFFF
)

var (
	ErrCorrupt = errors.New("swrcache: corrupt snapshot")
	ErrKeyLen  = errors.New("swrcache: snapshot key too long")
	magic4     = [...]byte{'S', 'W', 'R', 'C'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

type Snapshot struct {
	Key       string
	Gen       uint64
	FetchedAt time.Time // zero survives as zero
	Payload   []byte
}

// Snapshot:
//
//	magic(4) | ver(1) | kind(1=snapshot) | gen(u64 be) | fetchedAt(i64 be, unix nanos; 0 = zero time)
//	keyLen(u16 be) | key(keyLen) | vlen(u32 be) | payload(vlen)
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	if len(s.Key) > maxKeyLen {
		return nil, ErrKeyLen
	}

	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 8 + 8 + 2 + len(s.Key) + 4 + len(s.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindSnapshot)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], s.Gen)
	buf.Write(u8[:])

	var nanos int64
	if !s.FetchedAt.IsZero() {
		nanos = s.FetchedAt.UnixNano()
	}
	binary.BigEndian.PutUint64(u8[:], uint64(nanos))
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(s.Key)))
	buf.Write(u2[:])
	buf.WriteString(s.Key)

	binary.BigEndian.PutUint32(u4[:], uint32(len(s.Payload)))
	buf.Write(u4[:])

	buf.Write(s.Payload)
	return buf.Bytes(), nil
}

// DecodeSnapshot is strict: trailing bytes are corruption. The returned
// Payload aliases b.
func DecodeSnapshot(b []byte) (Snapshot, error) {
	const hdr = 4 + 1 + 1 + 8 + 8 + 2
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindSnapshot {
		return Snapshot{}, ErrCorrupt
	}

	off := 6
	var s Snapshot

	s.Gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	if nanos := int64(binary.BigEndian.Uint64(b[off : off+8])); nanos != 0 {
		s.FetchedAt = time.Unix(0, nanos).UTC()
	}
	off += 8

	// key
	kl := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if kl > len(b)-off {
		return Snapshot{}, ErrCorrupt
	}
	s.Key = string(b[off : off+kl])
	off += kl

	// vlen
	if off+4 > len(b) {
		return Snapshot{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen > len(b)-off { // overflow-safe bound check
		return Snapshot{}, ErrCorrupt
	}
	s.Payload = b[off : off+vlen]
	off += vlen

	if off != len(b) {
		return Snapshot{}, ErrCorrupt
	}
	return s, nil
}
