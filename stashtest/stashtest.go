// Package stashtest is a conformance suite for stash.Driver implementations.
//
//	func TestConformance(t *testing.T) {
//	    clk := stashtest.NewClock()
//	    stashtest.Run(t, stashtest.Harness{
//	        New: func(t *testing.T) stash.Driver { return newDriver(t, clk.Now) },
//	        Advance: clk.Advance,
//	    })
//	}
package stashtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/stash"
)

// Harness describes the driver under test.
type Harness struct {
	// New returns an empty driver. Called once per subtest.
	New func(t *testing.T) stash.Driver
	// Advance moves the driver's clock forward. nil skips the tests that
	// need time to pass.
	Advance func(d time.Duration)
	// StrictForget: Forget on a missing key must fail with ErrNotFound.
	StrictForget bool
}

// Clock is a manually advanced clock for drivers that accept Options.Now.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Entry is one line captured by Logger.
type Entry struct {
	Level  string
	Msg    string
	Fields stash.Fields
}

// Logger records every line for later assertions. Safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	entries []Entry
}

var _ stash.Logger = (*Logger)(nil)

func (l *Logger) Debug(msg string, f stash.Fields) { l.add("debug", msg, f) }
func (l *Logger) Info(msg string, f stash.Fields)  { l.add("info", msg, f) }
func (l *Logger) Warn(msg string, f stash.Fields)  { l.add("warn", msg, f) }
func (l *Logger) Error(msg string, f stash.Fields) { l.add("error", msg, f) }

func (l *Logger) add(level, msg string, f stash.Fields) {
	l.mu.Lock()
	l.entries = append(l.entries, Entry{Level: level, Msg: msg, Fields: f})
	l.mu.Unlock()
}

// Find returns the first entry with the given level and message.
func (l *Logger) Find(level, msg string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Level == level && e.Msg == msg {
			return e, true
		}
	}
	return Entry{}, false
}

type absent struct{}

// sentinel is a default value no driver can ever store.
var sentinel = &absent{}

// Payloads are the values every driver must round-trip exactly. Integers
// are int64, the type all serializing codecs normalize to.
var Payloads = map[string]any{
	"false":  false,
	"true":   true,
	"zero":   int64(0),
	"int":    int64(1337),
	"neg":    int64(-42),
	"empty":  "",
	"string": "jabberwocky",
	"nil":    nil,
	"list":   []any{"Hope", "Pink Panther", "Tiffany"},
	"map":    map[string]any{"id": int64(7), "name": "Ada", "admin": false},
}

// Run runs the suite.
func Run(t *testing.T, h Harness) {
	tests := []struct {
		name string
		fn   func(*testing.T, Harness)
	}{
		{"put_get_round_trip", testPutGet},
		{"get_default_on_miss", testGetDefault},
		{"overwrite", testOverwrite},
		{"forever", testForever},
		{"negative_ttl_is_expired", testNegativeTTL},
		{"ttl_expiry", testTTLExpiry},
		{"huge_ttl", testHugeTTL},
		{"has_stored_false", testHasFalse},
		{"remember_existing", testRememberExisting},
		{"remember_existing_false", testRememberExistingFalse},
		{"remember_missing", testRememberMissing},
		{"remember_forever", testRememberForever},
		{"remember_compute_error", testRememberComputeError},
		{"increment_scenario", testIncrementScenario},
		{"decrement", testDecrement},
		{"increment_non_numeric", testIncrementNonNumeric},
		{"increment_missing", testIncrementMissing},
		{"increment_keeps_expiry", testIncrementKeepsExpiry},
		{"increment_overflow", testIncrementOverflow},
		{"forget", testForget},
		{"flush", testFlush},
		{"concurrent_puts_single_winner", testConcurrentPuts},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) { tc.fn(t, h) })
	}
}

func newDriver(t *testing.T, h Harness) (context.Context, stash.Driver) {
	t.Helper()
	d := h.New(t)
	ctx := context.Background()
	t.Cleanup(func() { _ = d.Close(ctx) })
	return ctx, d
}

func mustPut(t *testing.T, ctx context.Context, d stash.Driver, key string, v any, minutes int) {
	t.Helper()
	if err := d.Put(ctx, key, v, minutes); err != nil {
		t.Fatalf("Put(%q): %v", key, err)
	}
}

func never(t *testing.T) stash.Compute {
	return func() (any, error) {
		t.Errorf("compute must not run on a hit")
		return "computed", nil
	}
}

func testPutGet(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	for name, p := range Payloads {
		key := "put-" + name
		mustPut(t, ctx, d, key, p, 5)
		v, ok, err := d.Lookup(ctx, key)
		if err != nil || !ok {
			t.Fatalf("Lookup(%q): ok=%v err=%v", key, ok, err)
		}
		if !reflect.DeepEqual(v, p) {
			t.Fatalf("Lookup(%q)=%#v want %#v", key, v, p)
		}
		if got := d.Get(ctx, key, sentinel); !reflect.DeepEqual(got, p) {
			t.Fatalf("Get(%q)=%#v want %#v", key, got, p)
		}
		if !d.Has(ctx, key) {
			t.Fatalf("Has(%q)=false", key)
		}
	}
}

func testGetDefault(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	if v, ok, err := d.Lookup(ctx, "nonexistent-item"); ok || err != nil || v != nil {
		t.Fatalf("Lookup miss: v=%v ok=%v err=%v", v, ok, err)
	}
	if got := d.Get(ctx, "nonexistent-item", false); got != false {
		t.Fatalf("Get default false: %#v", got)
	}
	if got := d.Get(ctx, "nonexistent-item", nil); got != nil {
		t.Fatalf("Get default nil: %#v", got)
	}
	if got := d.Get(ctx, "nonexistent-item", "fallback"); got != "fallback" {
		t.Fatalf("Get default string: %#v", got)
	}
	if d.Has(ctx, "nonexistent-item") {
		t.Fatalf("Has on a missing key")
	}
}

func testOverwrite(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	mustPut(t, ctx, d, "k", "first", 5)
	mustPut(t, ctx, d, "k", "second", 5)
	if got := d.Get(ctx, "k", sentinel); got != "second" {
		t.Fatalf("Get after overwrite: %#v", got)
	}
}

func testForever(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	want := []any{"Hope", "Pink Panther", "Tiffany"}
	if err := d.Forever(ctx, "diamonds", want); err != nil {
		t.Fatalf("Forever: %v", err)
	}
	mustPut(t, ctx, d, "zero-ttl", "permanent", 0)
	if h.Advance != nil {
		h.Advance(100 * 365 * 24 * time.Hour)
	}
	if got := d.Get(ctx, "diamonds", sentinel); !reflect.DeepEqual(got, want) {
		t.Fatalf("Get forever item: %#v", got)
	}
	if got := d.Get(ctx, "zero-ttl", sentinel); got != "permanent" {
		t.Fatalf("Get zero-ttl item: %#v", got)
	}
}

func testNegativeTTL(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	mustPut(t, ctx, d, "expired", "qwerty", -5)
	if d.Has(ctx, "expired") {
		t.Fatalf("Has on an item stored with negative ttl")
	}
	if got := d.Get(ctx, "expired", false); got != false {
		t.Fatalf("Get on expired item: %#v", got)
	}
}

func testTTLExpiry(t *testing.T, h Harness) {
	if h.Advance == nil {
		t.Skip("driver clock cannot be advanced")
	}
	ctx, d := newDriver(t, h)
	mustPut(t, ctx, d, "short", "lived", 5)
	h.Advance(4*time.Minute + 59*time.Second)
	if !d.Has(ctx, "short") {
		t.Fatalf("item expired early")
	}
	h.Advance(time.Second)
	if d.Has(ctx, "short") {
		t.Fatalf("item still present at its deadline")
	}
	if got := d.Get(ctx, "short", sentinel); got != sentinel {
		t.Fatalf("Get after expiry: %#v", got)
	}
}

func testHugeTTL(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	for _, minutes := range []int{200_000_000, 1 << 40, math.MaxInt} {
		key := fmt.Sprintf("huge-%d", minutes)
		mustPut(t, ctx, d, key, "v", minutes)
		if h.Advance != nil {
			h.Advance(365 * 24 * time.Hour)
		}
		if !d.Has(ctx, key) {
			t.Fatalf("Put with %d minutes is not readable", minutes)
		}
		if got := d.Get(ctx, key, sentinel); got != "v" {
			t.Fatalf("Get(%q)=%#v", key, got)
		}
	}
}

func testHasFalse(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	mustPut(t, ctx, d, "false", false, 5)
	if !d.Has(ctx, "false") {
		t.Fatalf("Has must see a stored false")
	}
	if got := d.Get(ctx, "false", sentinel); got != false {
		t.Fatalf("Get stored false: %#v", got)
	}
}

func testRememberExisting(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	mustPut(t, ctx, d, "remember-pre-existing", "Don't override me", 5)
	v, err := d.Remember(ctx, "remember-pre-existing", 5, never(t))
	if err != nil || v != "Don't override me" {
		t.Fatalf("Remember: v=%#v err=%v", v, err)
	}
}

func testRememberExistingFalse(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	mustPut(t, ctx, d, "boolean", false, 0)
	v, err := d.Remember(ctx, "boolean", 5, never(t))
	if err != nil || v != false {
		t.Fatalf("Remember stored false: v=%#v err=%v", v, err)
	}
}

func testRememberMissing(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	calls := 0
	v, err := d.Remember(ctx, "remember-new-item", 5, func() (any, error) {
		calls++
		return "Pork Chops", nil
	})
	if err != nil || v != "Pork Chops" || calls != 1 {
		t.Fatalf("Remember miss: v=%#v err=%v calls=%d", v, err, calls)
	}
	v, err = d.Remember(ctx, "remember-new-item", 5, func() (any, error) {
		calls++
		return "Lamb Chops", nil
	})
	if err != nil || v != "Pork Chops" || calls != 1 {
		t.Fatalf("Remember second call: v=%#v err=%v calls=%d", v, err, calls)
	}
}

func testRememberForever(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	mustPut(t, ctx, d, "remember-forever-pre-existing", "I already exist", 5)
	v, err := d.RememberForever(ctx, "remember-forever-pre-existing", never(t))
	if err != nil || v != "I already exist" {
		t.Fatalf("RememberForever hit: v=%#v err=%v", v, err)
	}
	v, err = d.RememberForever(ctx, "remember-remember", func() (any, error) { return "November 5th", nil })
	if err != nil || v != "November 5th" {
		t.Fatalf("RememberForever miss: v=%#v err=%v", v, err)
	}
	if h.Advance != nil {
		h.Advance(10 * 365 * 24 * time.Hour)
	}
	if got := d.Get(ctx, "remember-remember", sentinel); got != "November 5th" {
		t.Fatalf("RememberForever did not store permanently: %#v", got)
	}
}

func testRememberComputeError(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	boom := errors.New("boom")
	v, err := d.Remember(ctx, "fails", 5, func() (any, error) { return nil, boom })
	if !errors.Is(err, boom) || v != nil {
		t.Fatalf("Remember compute error: v=%#v err=%v", v, err)
	}
	if d.Has(ctx, "fails") {
		t.Fatalf("failed compute must not be stored")
	}
}

func mustIncr(t *testing.T, ctx context.Context, d stash.Driver, key string, delta, want int64) {
	t.Helper()
	got, err := d.Increment(ctx, key, delta)
	if err != nil || got != want {
		t.Fatalf("Increment(%q, %d)=%d,%v want %d", key, delta, got, err, want)
	}
}

func testIncrementScenario(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	mustPut(t, ctx, d, "inc", int64(1336), 0)
	mustIncr(t, ctx, d, "inc", 1, 1337)
	mustIncr(t, ctx, d, "inc", 10, 1347)
	got, err := d.Decrement(ctx, "inc", 10)
	if err != nil || got != 1337 {
		t.Fatalf("Decrement=%d,%v want 1337", got, err)
	}
	if v := d.Get(ctx, "inc", sentinel); v != int64(1337) {
		t.Fatalf("persisted value %#v want int64(1337)", v)
	}
}

func testDecrement(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	mustPut(t, ctx, d, "dec", int64(1338), 0)
	if got, err := d.Decrement(ctx, "dec", 1); err != nil || got != 1337 {
		t.Fatalf("Decrement=%d,%v", got, err)
	}
	mustPut(t, ctx, d, "dec-custom", int64(1347), 0)
	if got, err := d.Decrement(ctx, "dec-custom", 10); err != nil || got != 1337 {
		t.Fatalf("Decrement custom=%d,%v", got, err)
	}
}

func testIncrementNonNumeric(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	mustPut(t, ctx, d, "non-integer", "potato", 0)
	if _, err := d.Increment(ctx, "non-integer", 1); !errors.Is(err, stash.ErrNotNumeric) {
		t.Fatalf("want ErrNotNumeric, got %v", err)
	}
	if v := d.Get(ctx, "non-integer", sentinel); v != "potato" {
		t.Fatalf("payload changed: %#v", v)
	}
}

func testIncrementMissing(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	if _, err := d.Increment(ctx, "nonexistent-item", 1); !errors.Is(err, stash.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := d.Decrement(ctx, "nonexistent-item", 1); !errors.Is(err, stash.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if d.Has(ctx, "nonexistent-item") {
		t.Fatalf("increment on a missing key created it")
	}
}

func testIncrementKeepsExpiry(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	mustPut(t, ctx, d, "ttl-counter", int64(1), 5)
	mustIncr(t, ctx, d, "ttl-counter", 1, 2)
	if !d.Has(ctx, "ttl-counter") {
		t.Fatalf("counter vanished after increment")
	}
	if h.Advance == nil {
		return
	}
	h.Advance(6 * time.Minute)
	if d.Has(ctx, "ttl-counter") {
		t.Fatalf("increment extended the expiry")
	}
}

func testIncrementOverflow(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	mustPut(t, ctx, d, "max", int64(math.MaxInt64), 0)
	if _, err := d.Increment(ctx, "max", 1); !errors.Is(err, stash.ErrOverflow) {
		t.Fatalf("want ErrOverflow, got %v", err)
	}
	if v := d.Get(ctx, "max", sentinel); v != int64(math.MaxInt64) {
		t.Fatalf("payload changed: %#v", v)
	}
	mustPut(t, ctx, d, "min", int64(math.MinInt64), 0)
	if _, err := d.Decrement(ctx, "min", 1); !errors.Is(err, stash.ErrOverflow) {
		t.Fatalf("want ErrOverflow, got %v", err)
	}
}

func testForget(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	mustPut(t, ctx, d, "forgettable", "asdf", 5)
	if err := d.Forget(ctx, "forgettable"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if d.Has(ctx, "forgettable") {
		t.Fatalf("Has after Forget")
	}
	if got := d.Get(ctx, "forgettable", false); got != false {
		t.Fatalf("Get after Forget: %#v", got)
	}
	if h.StrictForget {
		if err := d.Forget(ctx, "forgettable"); !errors.Is(err, stash.ErrNotFound) {
			t.Fatalf("Forget missing: want ErrNotFound, got %v", err)
		}
	}
}

func testFlush(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	if err := d.Flush(ctx); err != nil {
		t.Fatalf("Flush empty: %v", err)
	}
	keys := make([]string, 0, len(Payloads))
	for name, p := range Payloads {
		keys = append(keys, "flush-"+name)
		mustPut(t, ctx, d, "flush-"+name, p, 0)
	}
	if err := d.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	for _, k := range keys {
		if d.Has(ctx, k) {
			t.Fatalf("Has(%q) after Flush", k)
		}
	}
}

func testConcurrentPuts(t *testing.T, h Harness) {
	ctx, d := newDriver(t, h)
	const writers = 16
	valid := make(map[string]bool, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		v := fmt.Sprintf("writer-%02d-%s", i, string(make([]byte, 512)))
		valid[v] = true
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Put(ctx, "contended", v, 5); err != nil {
				t.Errorf("Put: %v", err)
			}
		}()
	}
	wg.Wait()
	got, ok := d.Get(ctx, "contended", sentinel).(string)
	if !ok || !valid[got] {
		t.Fatalf("contended key holds an invalid value (len=%d ok=%v)", len(got), ok)
	}
}
