package bigcache

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/unkn0wn-root/stash"
	"github.com/unkn0wn-root/stash/stashtest"
)

type corruptHooks struct {
	stash.NopHooks
	reasons []string
}

func (h *corruptHooks) CorruptItem(_, reason string, _ error) { h.reasons = append(h.reasons, reason) }

func newTestDriver(t *testing.T, cfg Config) *Driver {
	t.Helper()
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
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

func TestCorruptEntryIsDropped(t *testing.T) {
	ctx := context.Background()
	hooks := &corruptHooks{}
	d := newTestDriver(t, Config{Options: stash.Options{Prefix: "p:", Hooks: hooks}})
	defer d.Close(ctx)

	if err := d.c.Set("p:k", []byte("garbage")); err != nil {
		t.Fatal(err)
	}
	if d.Has(ctx, "k") {
		t.Fatalf("corrupt entry read as a hit")
	}
	if len(hooks.reasons) != 1 || hooks.reasons[0] != "corrupt" {
		t.Fatalf("hooks=%v", hooks.reasons)
	}
	if d.Len() != 0 {
		t.Fatalf("corrupt entry not removed")
	}
}

func TestEntryTooLargeFailsPut(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t, Config{Shards: 1, MaxEntriesInWindow: 1, MaxEntrySize: 64, HardMaxCacheSizeMB: 1})
	defer d.Close(ctx)
	if err := d.Put(ctx, "big", strings.Repeat("x", 2<<20), 0); err == nil {
		t.Fatalf("Put of an entry larger than the cache must fail")
	}
	if d.Has(ctx, "big") {
		t.Fatalf("oversized entry stored")
	}
}

func TestNegativeTTLRemovesExistingEntry(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver(t, Config{})
	defer d.Close(ctx)
	if err := d.Put(ctx, "k", int64(1), 0); err != nil {
		t.Fatal(err)
	}
	if err := d.Put(ctx, "k", int64(1), -5); err != nil {
		t.Fatal(err)
	}
	if d.Len() != 0 {
		t.Fatalf("expired put left an entry behind")
	}
	if _, err := d.Increment(ctx, "k", 1); !errors.Is(err, stash.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
