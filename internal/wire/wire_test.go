package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func mustEncode(t *testing.T, s Snapshot) []byte {
	t.Helper()
	b, err := EncodeSnapshot(s)
	if err != nil {
		t.Fatalf("EncodeSnapshot error: %v", err)
	}
	return b
}

func mustDecode(t *testing.T, b []byte) Snapshot {
	t.Helper()
	s, err := DecodeSnapshot(b)
	if err != nil {
		t.Fatalf("DecodeSnapshot error: %v", err)
	}
	return s
}

func TestSnapshotRT(t *testing.T) {
	at := time.Date(2024, 5, 17, 8, 0, 0, 123, time.UTC)
	cases := []Snapshot{
		{Key: "portfolio:123", Gen: 0, Payload: nil},
		{Key: "holdings:42?sort=value", Gen: 42, FetchedAt: at, Payload: []byte(`{"totalValue":9035.41}`)},
		{Key: "k", Gen: math.MaxUint64, FetchedAt: at, Payload: []byte{0, 1, 2, 3, 4}},
		{Key: "", Gen: 1, Payload: []byte("x")},
	}
	for _, tc := range cases {
		got := mustDecode(t, mustEncode(t, tc))
		if got.Key != tc.Key || got.Gen != tc.Gen {
			t.Fatalf("key/gen mismatch: got %q/%d want %q/%d", got.Key, got.Gen, tc.Key, tc.Gen)
		}
		if !got.FetchedAt.Equal(tc.FetchedAt) {
			t.Fatalf("fetchedAt: got %v want %v", got.FetchedAt, tc.FetchedAt)
		}
		if !bytes.Equal(got.Payload, tc.Payload) {
			t.Fatalf("payload mismatch: got %x want %x", got.Payload, tc.Payload)
		}
	}
}

func TestSnapshotZeroTimeStaysZero(t *testing.T) {
	got := mustDecode(t, mustEncode(t, Snapshot{Key: "k", Payload: []byte("v")}))
	if !got.FetchedAt.IsZero() {
		t.Fatalf("expected zero time, got %v", got.FetchedAt)
	}
}

func TestSnapshotRejectsTrailingBytes(t *testing.T) {
	enc := mustEncode(t, Snapshot{Key: "k", Gen: 7, Payload: []byte("x")})
	enc = append(enc, 0xDE, 0xAD) // add junk
	if _, err := DecodeSnapshot(enc); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt on trailing bytes, got %v", err)
	}
}

func TestSnapshotCorruptHeadersAndLengths(t *testing.T) {
	enc := mustEncode(t, Snapshot{Key: "abc", Gen: 1, Payload: []byte("payload")})
	keyLenOff := 4 + 1 + 1 + 8 + 8
	vlenOff := keyLenOff + 2 + 3

	mutate := func(f func(b []byte) []byte) []byte {
		return f(append([]byte(nil), enc...))
	}

	cases := []struct {
		name string
		b    []byte
	}{
		{"bad magic", mutate(func(b []byte) []byte { b[0] = 'X'; return b })},
		{"bad version", mutate(func(b []byte) []byte { b[4] = version + 1; return b })},
		{"bad kind", mutate(func(b []byte) []byte { b[5] = kindSnapshot + 1; return b })},
		{"short header", enc[:10]},
		{"key overflows", mutate(func(b []byte) []byte {
			binary.BigEndian.PutUint16(b[keyLenOff:], math.MaxUint16)
			return b
		})},
		{"vlen overflows", mutate(func(b []byte) []byte {
			binary.BigEndian.PutUint32(b[vlenOff:], math.MaxUint32)
			return b
		})},
		{"truncated payload", enc[:len(enc)-1]},
		{"missing vlen", enc[:vlenOff+2]},
		{"empty", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeSnapshot(tc.b); !errors.Is(err, ErrCorrupt) {
				t.Fatalf("expected ErrCorrupt, got %v", err)
			}
		})
	}
}

func TestSnapshotKeyTooLong(t *testing.T) {
	_, err := EncodeSnapshot(Snapshot{Key: strings.Repeat("k", maxKeyLen+1)})
	if !errors.Is(err, ErrKeyLen) {
		t.Fatalf("expected ErrKeyLen, got %v", err)
	}
	if _, err := EncodeSnapshot(Snapshot{Key: strings.Repeat("k", maxKeyLen)}); err != nil {
		t.Fatalf("max key length must encode: %v", err)
	}
}

func TestSnapshotPayloadAliasesInput(t *testing.T) {
	enc := mustEncode(t, Snapshot{Key: "k", Payload: []byte("abc")})
	s := mustDecode(t, enc)
	enc[len(enc)-1] = 'z'
	if string(s.Payload) != "abz" {
		t.Fatalf("payload should alias the frame, got %q", s.Payload)
	}
}
