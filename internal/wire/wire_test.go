package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func mustDecode(t *testing.T, b []byte) Frame {
	t.Helper()
	f, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return f
}

func mustEncode(t *testing.T, f Frame) []byte {
	t.Helper()
	b, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	return b
}

func TestRoundTripEmptyAndNonEmpty(t *testing.T) {
	cases := []Frame{
		{},
		{ExpiresAt: 42, CreatedAt: 7, Payload: []byte("hello")},
		{ExpiresAt: math.MaxInt64, CreatedAt: math.MinInt64, Payload: []byte{0, 1, 2, 3, 4}},
		{ExpiresAt: -1, CreatedAt: 1, Payload: nil}, // deadline before the epoch is still a deadline
	}
	for _, tc := range cases {
		got := mustDecode(t, mustEncode(t, tc))
		if got.ExpiresAt != tc.ExpiresAt || got.CreatedAt != tc.CreatedAt {
			t.Fatalf("timestamps mismatch: got %+v want %+v", got, tc)
		}
		if !bytes.Equal(got.Payload, tc.Payload) {
			t.Fatalf("payload mismatch: got %x want %x", got.Payload, tc.Payload)
		}
	}
}

func TestRejectsTrailingBytes(t *testing.T) {
	enc := mustEncode(t, Frame{ExpiresAt: 7, Payload: []byte("x")})
	enc = append(enc, 0xDE, 0xAD) // add junk
	if _, err := Decode(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestCorruptHeadersAndLengths(t *testing.T) {
	enc := mustEncode(t, Frame{ExpiresAt: 1, CreatedAt: 2, Payload: []byte("abc")})

	// bad magic
	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := Decode(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	// wrong version
	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := Decode(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// wrong kind
	badKind := append([]byte(nil), enc...)
	badKind[5] = kindItem + 1
	if _, err := Decode(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// plen too large (announce more than available)
	tooLong := append([]byte(nil), enc...)
	// plen is at offset 22..25 (4 magic +1 ver +1 kind +8 exp +8 created)
	binary.BigEndian.PutUint32(tooLong[22:26], uint32(len("abc")+1))
	if _, err := Decode(tooLong); err == nil {
		t.Fatalf("expected error on plen beyond buffer")
	}

	// truncated buffer
	if _, err := Decode(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}

	// shorter than a header
	if _, err := Decode(enc[:headerLen-1]); err == nil {
		t.Fatalf("expected error on short header")
	}
}

func TestForeignBytesAreCorrupt(t *testing.T) {
	for _, b := range [][]byte{nil, []byte("not-wire-format"), []byte(`a:1:{s:4:"data";b:0;}`)} {
		if _, err := Decode(b); err != ErrCorrupt {
			t.Fatalf("Decode(%q) err=%v want ErrCorrupt", b, err)
		}
	}
}

func TestDecodeHeaderWithoutPayload(t *testing.T) {
	enc := mustEncode(t, Frame{ExpiresAt: 99, CreatedAt: 11, Payload: []byte("payload")})
	exp, created, plen, err := DecodeHeader(enc[:headerLen])
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if exp != 99 || created != 11 || plen != len("payload") {
		t.Fatalf("got exp=%d created=%d plen=%d", exp, created, plen)
	}
}

func TestZeroCopyPayload(t *testing.T) {
	enc := mustEncode(t, Frame{Payload: []byte("Z")})
	f := mustDecode(t, enc)
	// mutate payload slice. should mutate underlying enc bytes (zero-copy)
	f.Payload[0] = 'Q'
	if mustDecode(t, enc).Payload[0] != 'Q' {
		t.Fatalf("expected zero-copy slice into enc buffer")
	}
}
