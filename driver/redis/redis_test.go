package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/stash"
	"github.com/unkn0wn-root/stash/stashtest"
)

// Integration tests run against STASH_REDIS_ADDR (e.g. localhost:6379).
func client(t *testing.T) goredis.UniversalClient {
	t.Helper()
	addr := os.Getenv("STASH_REDIS_ADDR")
	if addr == "" {
		t.Skip("STASH_REDIS_ADDR not set")
	}
	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: []string{addr}})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func newTestDriver(t *testing.T, rdb goredis.UniversalClient) *Driver {
	t.Helper()
	d, err := New(Config{
		Client:  rdb,
		Options: stash.Options{Prefix: "stashtest:" + t.Name() + ":"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.Flush(context.Background()) })
	return d
}

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("want ErrNilClient, got %v", err)
	}
}

func TestFlushWithoutPrefixRefusesByDefault(t *testing.T) {
	// Nothing listens on port 1: a sent command would fail with a dial error.
	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: []string{"127.0.0.1:1"}})
	t.Cleanup(func() { _ = rdb.Close() })

	d, err := New(Config{Client: rdb})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Flush(context.Background()); !errors.Is(err, ErrUnscopedFlush) {
		t.Fatalf("want ErrUnscopedFlush, got %v", err)
	}

	d, err = New(Config{Client: rdb, AllowFlushDB: true})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Flush(ctx); err == nil || errors.Is(err, ErrUnscopedFlush) {
		t.Fatalf("AllowFlushDB should reach the server, got %v", err)
	}
}

func TestEscapeGlob(t *testing.T) {
	cases := map[string]string{
		"app:":    "app:",
		"a*b":     `a\*b`,
		"x?[y]":   `x\?\[y\]`,
		`back\sl`: `back\\sl`,
	}
	for in, want := range cases {
		if got := escapeGlob(in); got != want {
			t.Fatalf("escapeGlob(%q)=%q want %q", in, got, want)
		}
	}
}

func TestConformance(t *testing.T) {
	rdb := client(t)
	stashtest.Run(t, stashtest.Harness{
		New: func(t *testing.T) stash.Driver {
			return newTestDriver(t, rdb)
		},
		StrictForget: true,
	})
}

func TestIncrementKeepsServerTTL(t *testing.T) {
	ctx := context.Background()
	rdb := client(t)
	d := newTestDriver(t, rdb)
	if err := d.Put(ctx, "n", int64(1), 5); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Increment(ctx, "n", 1); err != nil {
		t.Fatal(err)
	}
	ttl, err := rdb.TTL(ctx, d.keys.Native("n")).Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("TTL after increment=%v,%v", ttl, err)
	}
}

func TestFlushKeepsOtherPrefixes(t *testing.T) {
	ctx := context.Background()
	rdb := client(t)
	a := newTestDriver(t, rdb)
	other := rdb.Set(ctx, "stashtest-other:k", "v", 0)
	if other.Err() != nil {
		t.Fatal(other.Err())
	}
	t.Cleanup(func() { rdb.Del(ctx, "stashtest-other:k") })

	if err := a.Put(ctx, "k", "v", 0); err != nil {
		t.Fatal(err)
	}
	if err := a.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if a.Has(ctx, "k") {
		t.Fatalf("Flush left a prefixed key")
	}
	if n, _ := rdb.Exists(ctx, "stashtest-other:k").Result(); n != 1 {
		t.Fatalf("Flush removed a key outside its prefix")
	}
}

func TestUndecodableValueIsAMiss(t *testing.T) {
	ctx := context.Background()
	rdb := client(t)
	d := newTestDriver(t, rdb)
	if err := rdb.Set(ctx, d.keys.Native("k"), []byte{0xc1}, 0).Err(); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := d.Lookup(ctx, "k"); ok || err != nil {
		t.Fatalf("Lookup: ok=%v err=%v", ok, err)
	}
	if n, _ := rdb.Exists(ctx, d.keys.Native("k")).Result(); n != 0 {
		t.Fatalf("undecodable value not removed")
	}
}
