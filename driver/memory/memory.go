// Package memory is an in-process stash driver backed by dgraph-io/ristretto.
//
// Values are held as item.Item without serialization, so Get returns the
// value that was stored (maps and slices are shared, not copied). Ristretto
// expires entries on its own clock; freshness is additionally checked
// against Options.Now on every read.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/stash"
	"github.com/unkn0wn-root/stash/item"
	"github.com/unkn0wn-root/stash/keys"
)

type Config struct {
	stash.Options

	NumCounters int64 // 0 => 1e6
	MaxCost     int64 // 0 => 1e5; every entry costs 1 unless Cost is set
	BufferItems int64 // 0 => 64
	Metrics     bool

	// Cost returns the admission cost of a value. nil => 1.
	Cost func(value any) int64
}

type Driver struct {
	c     *rc.Cache
	keys  keys.Codec
	log   stash.Logger
	hooks stash.Hooks
	now   func() time.Time
	cost  func(any) int64

	incrMu sync.Mutex
}

var _ stash.Driver = (*Driver)(nil)

func New(cfg Config) (*Driver, error) {
	if cfg.NumCounters < 0 || cfg.MaxCost < 0 || cfg.BufferItems < 0 {
		return nil, fmt.Errorf("memory: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: coalesceInt(cfg.NumCounters, 1e6),
		MaxCost:     coalesceInt(cfg.MaxCost, 1e5),
		BufferItems: coalesceInt(cfg.BufferItems, 64),
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}
	opts := cfg.Options.WithDefaults()
	d := &Driver{
		c:     c,
		keys:  opts.Keys(),
		log:   opts.Logger,
		hooks: opts.Hooks,
		now:   opts.Now,
		cost:  cfg.Cost,
	}
	if d.cost == nil {
		d.cost = func(any) int64 { return 1 }
	}
	return d, nil
}

func coalesceInt(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}

func (d *Driver) Put(_ context.Context, key string, value any, minutes int) error {
	return d.set(d.keys.Native(key), item.New(value, minutes, d.now()))
}

func (d *Driver) Forever(ctx context.Context, key string, value any) error {
	return d.Put(ctx, key, value, 0)
}

// set stores it under its remaining lifetime. An already expired item
// replaces nothing; it removes the key.
func (d *Driver) set(k string, it item.Item) error {
	ttl := it.TTL(d.now())
	if !it.Forever() && ttl <= 0 {
		d.c.Del(k)
		return nil
	}
	if !d.c.SetWithTTL(k, it, d.cost(it.Data), ttl) {
		d.hooks.WriteFailed(k, stash.ErrRejected)
		d.log.Debug("write dropped", stash.Fields{"key": k})
		return fmt.Errorf("put %q: %w", k, stash.ErrRejected)
	}
	// make the write visible to the next Get
	d.c.Wait()
	return nil
}

func (d *Driver) get(k string) (item.Item, bool) {
	v, ok := d.c.Get(k)
	if !ok {
		return item.Item{}, false
	}
	it, ok := v.(item.Item)
	if !ok {
		// self-heal: drop unexpected entry shape
		d.hooks.CorruptItem(k, "type", fmt.Errorf("unexpected %T", v))
		d.c.Del(k)
		return item.Item{}, false
	}
	if !it.Fresh(d.now()) {
		return item.Item{}, false
	}
	return it, true
}

func (d *Driver) Lookup(_ context.Context, key string) (any, bool, error) {
	it, ok := d.get(d.keys.Native(key))
	if !ok {
		return nil, false, nil
	}
	return it.Data, true, nil
}

func (d *Driver) Get(ctx context.Context, key string, def any) any {
	return stash.GetOr(ctx, d, key, def)
}

func (d *Driver) Has(_ context.Context, key string) bool {
	_, ok := d.get(d.keys.Native(key))
	return ok
}

func (d *Driver) Remember(ctx context.Context, key string, minutes int, compute stash.Compute) (any, error) {
	return stash.Remember(ctx, d, key, minutes, compute)
}

func (d *Driver) RememberForever(ctx context.Context, key string, compute stash.Compute) (any, error) {
	return stash.RememberForever(ctx, d, key, compute)
}

// Increment is atomic with respect to other Increment/Decrement calls on
// this driver. A concurrent Put may still be overwritten.
func (d *Driver) Increment(_ context.Context, key string, delta int64) (int64, error) {
	k := d.keys.Native(key)
	d.incrMu.Lock()
	defer d.incrMu.Unlock()

	it, ok := d.get(k)
	if !ok {
		return 0, fmt.Errorf("increment %q: %w", key, stash.ErrNotFound)
	}
	n, err := it.Increment(delta)
	if err != nil {
		return 0, fmt.Errorf("increment %q: %w", key, err)
	}
	if err := d.set(k, it); err != nil {
		return 0, err
	}
	return n, nil
}

func (d *Driver) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	return d.Increment(ctx, key, -delta)
}

func (d *Driver) Forget(_ context.Context, key string) error {
	k := d.keys.Native(key)
	_, ok := d.get(k)
	d.c.Del(k)
	if !ok {
		return fmt.Errorf("forget %q: %w", key, stash.ErrNotFound)
	}
	return nil
}

// Flush drops every entry in the cache, regardless of prefix.
func (d *Driver) Flush(context.Context) error {
	d.c.Clear()
	return nil
}

func (d *Driver) Close(context.Context) error {
	d.c.Wait()
	d.c.Close()
	return nil
}

// Metrics exposes ristretto's counters. nil unless Config.Metrics is set.
func (d *Driver) Metrics() *rc.Metrics { return d.c.Metrics }
