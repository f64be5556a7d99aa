package item

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/unkn0wn-root/stash"
	c "github.com/unkn0wn-root/stash/codec"
	"github.com/unkn0wn-root/stash/internal/wire"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewTTLSemantics(t *testing.T) {
	cases := []struct {
		name    string
		minutes int
		forever bool
		freshAt map[time.Duration]bool
	}{
		{"forever", 0, true, map[time.Duration]bool{0: true, 100 * 365 * 24 * time.Hour: true}},
		{"five_minutes", 5, false, map[time.Duration]bool{0: true, 4 * time.Minute: true, 5 * time.Minute: false}},
		{"negative_is_expired", -5, false, map[time.Duration]bool{0: false}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			it := New("v", tc.minutes, t0)
			if it.Forever() != tc.forever {
				t.Fatalf("Forever=%v want %v", it.Forever(), tc.forever)
			}
			if !it.CreatedAt.Equal(t0) {
				t.Fatalf("CreatedAt=%v", it.CreatedAt)
			}
			for off, want := range tc.freshAt {
				if got := it.Fresh(t0.Add(off)); got != want {
					t.Fatalf("Fresh(+%v)=%v want %v", off, got, want)
				}
			}
		})
	}
}

func TestTTL(t *testing.T) {
	if ttl := New(1, 0, t0).TTL(t0); ttl != 0 {
		t.Fatalf("forever TTL=%v", ttl)
	}
	if ttl := New(1, 2, t0).TTL(t0.Add(time.Minute)); ttl != time.Minute {
		t.Fatalf("TTL=%v want 1m", ttl)
	}
	if ttl := New(1, -1, t0).TTL(t0); ttl >= 0 {
		t.Fatalf("expired TTL=%v want negative", ttl)
	}
}

func TestIncrement(t *testing.T) {
	it := New(int64(1336), 5, t0)
	exp := it.ExpiresAt
	for _, step := range []struct {
		delta int64
		want  int64
	}{{1, 1337}, {10, 1347}, {-10, 1337}} {
		got, err := it.Increment(step.delta)
		if err != nil || got != step.want {
			t.Fatalf("Increment(%d)=%d,%v want %d", step.delta, got, err, step.want)
		}
	}
	if it.Data != int64(1337) || !it.ExpiresAt.Equal(exp) {
		t.Fatalf("item after increments: %+v", it)
	}
}

func TestHugeMinutesSaturate(t *testing.T) {
	for _, minutes := range []int{200_000_000, 1 << 40, math.MaxInt} {
		it := New("v", minutes, t0)
		if it.Forever() || !it.Fresh(t0.Add(100*365*24*time.Hour)) {
			t.Fatalf("minutes=%d: ExpiresAt=%v", minutes, it.ExpiresAt)
		}
		b, err := it.Encode(c.Msgpack[any]{})
		if err != nil {
			t.Fatal(err)
		}
		out, err := Decode(c.Msgpack[any]{}, b)
		if err != nil || !out.ExpiresAt.Equal(it.ExpiresAt) {
			t.Fatalf("minutes=%d: deadline did not survive encoding: %v %v", minutes, out.ExpiresAt, err)
		}
	}
	if it := New("v", math.MinInt, t0); it.Fresh(t0) {
		t.Fatalf("hugely negative minutes must be expired")
	}
	if d := Lifetime(math.MaxInt); d <= 0 || d < Lifetime(200_000_000) {
		t.Fatalf("Lifetime did not saturate: %v", d)
	}
	if d := Lifetime(-5); d != -5*time.Minute {
		t.Fatalf("Lifetime(-5)=%v", d)
	}
}

func TestIncrementOverflow(t *testing.T) {
	cases := []struct {
		start, delta int64
	}{
		{math.MaxInt64, 1},
		{math.MaxInt64 - 5, 10},
		{math.MinInt64, -1},
		{-10, math.MinInt64},
	}
	for _, tc := range cases {
		it := Item{Data: tc.start}
		if _, err := it.Increment(tc.delta); !errors.Is(err, ErrOverflow) || !errors.Is(err, stash.ErrOverflow) {
			t.Fatalf("Increment(%d) on %d: err=%v", tc.delta, tc.start, err)
		}
		if it.Data != tc.start {
			t.Fatalf("payload modified: %#v", it.Data)
		}
	}
	it := Item{Data: int64(math.MaxInt64 - 1)}
	if n, err := it.Increment(1); err != nil || n != math.MaxInt64 {
		t.Fatalf("Increment to the limit=%d,%v", n, err)
	}
}

func TestIncrementRejectsNonIntegers(t *testing.T) {
	for _, v := range []any{"potato", "5", nil, false, 1.5, math.Inf(1), uint64(math.MaxUint64), []any{1}} {
		it := Item{Data: v}
		if _, err := it.Increment(1); !errors.Is(err, ErrNotInteger) || !errors.Is(err, stash.ErrNotNumeric) {
			t.Fatalf("Increment on %#v: err=%v", v, err)
		}
		if !reflect.DeepEqual(it.Data, v) {
			t.Fatalf("payload modified: %#v -> %#v", v, it.Data)
		}
	}
}

func TestInt64Conversions(t *testing.T) {
	for _, v := range []any{int(7), int8(7), int16(7), int32(7), int64(7), uint(7), uint8(7), uint16(7), uint32(7), uint64(7), float32(7), float64(7), json.Number("7")} {
		if n, ok := Int64(v); !ok || n != 7 {
			t.Fatalf("Int64(%T)=%d,%v", v, n, ok)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payloads := []any{
		false, int64(0), "", nil,
		"jabberwocky",
		[]any{"Hope", "Pink Panther", "Tiffany"},
		map[string]any{"a": int64(1), "b": true},
	}
	for _, p := range payloads {
		for _, minutes := range []int{0, 5, -5} {
			in := New(p, minutes, t0)
			b, err := in.Encode(c.Msgpack[any]{})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			out, err := Decode(c.Msgpack[any]{}, b)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(out.Data, p) {
				t.Fatalf("payload: got %#v want %#v", out.Data, p)
			}
			if !out.ExpiresAt.Equal(in.ExpiresAt) || !out.CreatedAt.Equal(in.CreatedAt) {
				t.Fatalf("timestamps: got %+v want %+v", out, in)
			}
			if out.Forever() != (minutes == 0) {
				t.Fatalf("Forever=%v for minutes=%d", out.Forever(), minutes)
			}
		}
	}
}

func TestDecodeCorrupt(t *testing.T) {
	if _, err := Decode(c.Msgpack[any]{}, []byte("garbage")); !errors.Is(err, wire.ErrCorrupt) {
		t.Fatalf("want ErrCorrupt, got %v", err)
	}
	// valid frame, payload the codec cannot parse
	b, _ := wire.Encode(wire.Frame{Payload: []byte{0xc1}}) // 0xc1 is never used in msgpack
	if _, err := Decode(c.Msgpack[any]{}, b); err == nil {
		t.Fatalf("want decode error for bad payload")
	}
}

func TestDecodeMeta(t *testing.T) {
	in := New("abc", 5, t0)
	b, _ := in.Encode(c.Msgpack[any]{})
	m, err := DecodeMeta(b)
	if err != nil {
		t.Fatal(err)
	}
	if !m.ExpiresAt.Equal(in.ExpiresAt) || !m.CreatedAt.Equal(t0) || m.Size == 0 {
		t.Fatalf("meta=%+v", m)
	}
	if !m.Fresh(t0) || m.Fresh(t0.Add(time.Hour)) {
		t.Fatalf("meta freshness wrong")
	}
}

func TestEpochIsNotNever(t *testing.T) {
	it := Item{Data: 1, ExpiresAt: time.Unix(0, 0)}
	b, _ := it.Encode(c.Msgpack[any]{})
	out, _ := Decode(c.Msgpack[any]{}, b)
	if out.Forever() {
		t.Fatalf("deadline at the epoch decoded as forever")
	}
}
