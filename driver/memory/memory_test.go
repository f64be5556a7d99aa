package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/unkn0wn-root/stash"
	"github.com/unkn0wn-root/stash/stashtest"
)

func newTestDriver(t *testing.T, cfg Config) *Driver {
	t.Helper()
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

func TestConformance(t *testing.T) {
	clk := stashtest.NewClock()
	stashtest.Run(t, stashtest.Harness{
		New: func(t *testing.T) stash.Driver {
			return newTestDriver(t, Config{Options: stash.Options{Now: clk.Now}})
		},
		Advance:      clk.Advance,
		StrictForget: true,
	})
}

func TestNewRejectsNegativeSizes(t *testing.T) {
	if _, err := New(Config{MaxCost: -1}); err == nil {
		t.Fatalf("want error for negative MaxCost")
	}
}

func TestValuesAreNotCopied(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t, Config{})
	m := map[string]any{"a": 1}
	if err := d.Put(ctx, "m", m, 0); err != nil {
		t.Fatal(err)
	}
	got, ok := d.Get(ctx, "m", nil).(map[string]any)
	if !ok {
		t.Fatalf("Get returned %T", got)
	}
	got["b"] = 2
	if _, ok := m["b"]; !ok {
		t.Fatalf("expected the stored map to be shared")
	}
}

func TestPrefixesAreDistinctKeys(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t, Config{Options: stash.Options{Prefix: "a:"}})
	if err := d.Put(ctx, "k", "v", 0); err != nil {
		t.Fatal(err)
	}
	if _, ok := d.c.Get("a:k"); !ok {
		t.Fatalf("entry not stored under the prefixed key")
	}
	if _, ok := d.c.Get("k"); ok {
		t.Fatalf("entry stored under the bare key")
	}
}

func TestForeignEntryIsDropped(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t, Config{})
	d.c.Set("k", []byte("raw"), 1)
	d.c.Wait()
	if d.Has(ctx, "k") {
		t.Fatalf("foreign value read as a hit")
	}
	if _, ok := d.c.Get("k"); ok {
		t.Fatalf("foreign value not removed")
	}
}

func TestNegativeTTLRemovesExistingEntry(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t, Config{})
	if err := d.Put(ctx, "k", "v", 0); err != nil {
		t.Fatal(err)
	}
	if err := d.Put(ctx, "k", "v", -1); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Increment(ctx, "k", 1); !errors.Is(err, stash.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t, Config{Metrics: true})
	_ = d.Put(ctx, "k", "v", 0)
	d.Has(ctx, "k")
	d.Has(ctx, "missing")
	m := d.Metrics()
	if m == nil || m.Hits() != 1 || m.Misses() != 1 {
		t.Fatalf("metrics=%v", m)
	}
}
