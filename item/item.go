// Package item defines the unit every serializing driver stores: a payload
// plus its expiry metadata.
package item

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/unkn0wn-root/stash"
	c "github.com/unkn0wn-root/stash/codec"
	"github.com/unkn0wn-root/stash/internal/wire"
)

var (
	// ErrNotInteger is returned by Increment for non-integer payloads.
	ErrNotInteger = fmt.Errorf("item: payload is not an integer: %w", stash.ErrNotNumeric)
	// ErrOverflow is returned by Increment when the result does not fit
	// in an int64.
	ErrOverflow = fmt.Errorf("item: increment out of int64 range: %w", stash.ErrOverflow)
)

// maxMinutes is the longest lifetime a time.Duration can hold.
const maxMinutes = math.MaxInt64 / int64(time.Minute)

// Deadlines are clamped to what the wire format (unix nanoseconds) holds.
var (
	maxDeadline = time.Unix(0, math.MaxInt64)
	minDeadline = time.Unix(0, math.MinInt64+1)
)

// Item is a payload with expiry metadata. A zero ExpiresAt means the item
// never expires.
type Item struct {
	Data      any
	ExpiresAt time.Time
	CreatedAt time.Time
}

// New builds an item created at now that lives for minutes.
// 0 means forever; a negative value yields an item that is already expired.
func New(data any, minutes int, now time.Time) Item {
	it := Item{Data: data, CreatedAt: now}
	if minutes != 0 {
		it.ExpiresAt = now.Add(Lifetime(minutes))
		switch {
		case it.ExpiresAt.After(maxDeadline):
			it.ExpiresAt = maxDeadline
		case it.ExpiresAt.Before(minDeadline):
			it.ExpiresAt = minDeadline
		}
	}
	return it
}

// Lifetime converts minutes to a duration, saturating instead of
// overflowing.
func Lifetime(minutes int) time.Duration {
	m := int64(minutes)
	switch {
	case m > maxMinutes:
		m = maxMinutes
	case m < -maxMinutes:
		m = -maxMinutes
	}
	return time.Duration(m) * time.Minute
}

// Forever reports whether the item never expires.
func (it Item) Forever() bool { return it.ExpiresAt.IsZero() }

// Fresh reports whether the item is still valid at now.
func (it Item) Fresh(now time.Time) bool {
	return it.Forever() || now.Before(it.ExpiresAt)
}

// TTL returns the remaining lifetime at now: 0 for forever items and a
// negative duration once expired.
func (it Item) TTL(now time.Time) time.Duration {
	if it.Forever() {
		return 0
	}
	return it.ExpiresAt.Sub(now)
}

// Increment adds delta to an integer payload in place and returns the new
// value. The payload is normalized to int64. On ErrNotInteger or
// ErrOverflow Data is left
// untouched.
func (it *Item) Increment(delta int64) (int64, error) {
	n, ok := Int64(it.Data)
	if !ok {
		return 0, ErrNotInteger
	}
	if (delta > 0 && n > math.MaxInt64-delta) || (delta < 0 && n < math.MinInt64-delta) {
		return 0, ErrOverflow
	}
	n += delta
	it.Data = n
	return n, nil
}

// Int64 converts integer payloads to int64. Floats qualify only when they
// hold a whole number; numeric strings never do.
func Int64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return uintToInt64(uint64(n))
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return uintToInt64(n)
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func uintToInt64(u uint64) (int64, bool) {
	if u > math.MaxInt64 {
		return 0, false
	}
	return int64(u), true
}

func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// Encode serializes the whole item: the payload through codec, the
// timestamps through the wire frame.
func (it Item) Encode(codec c.Codec[any]) ([]byte, error) {
	payload, err := codec.Encode(it.Data)
	if err != nil {
		return nil, err
	}
	return wire.Encode(wire.Frame{
		ExpiresAt: unixNano(it.ExpiresAt),
		CreatedAt: unixNano(it.CreatedAt),
		Payload:   payload,
	})
}

// Decode parses an item written by Encode.
func Decode(codec c.Codec[any], b []byte) (Item, error) {
	f, err := wire.Decode(b)
	if err != nil {
		return Item{}, err
	}
	data, err := codec.Decode(f.Payload)
	if err != nil {
		return Item{}, err
	}
	return Item{
		Data:      data,
		ExpiresAt: fromUnixNano(f.ExpiresAt),
		CreatedAt: fromUnixNano(f.CreatedAt),
	}, nil
}

// Meta is the item metadata without the payload.
type Meta struct {
	ExpiresAt time.Time
	CreatedAt time.Time
	Size      int // payload bytes
}

// DecodeMeta parses metadata only; the payload is not decoded.
func DecodeMeta(b []byte) (Meta, error) {
	f, err := wire.Decode(b)
	if err != nil {
		return Meta{}, err
	}
	return Meta{
		ExpiresAt: fromUnixNano(f.ExpiresAt),
		CreatedAt: fromUnixNano(f.CreatedAt),
		Size:      len(f.Payload),
	}, nil
}

// Fresh reports whether an item with this metadata is still valid at now.
func (m Meta) Fresh(now time.Time) bool {
	return Item{ExpiresAt: m.ExpiresAt}.Fresh(now)
}

// unixNano maps the zero time to 0 (the "never" sentinel on the wire).
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	n := t.UnixNano()
	if n == 0 { // the epoch itself; keep it distinct from "never"
		n = 1
	}
	return n
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
