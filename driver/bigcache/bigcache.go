// Package bigcache is an in-process stash driver backed by
// allegro/bigcache. Entries are wire-framed items, so values are serialized
// with the configured codec exactly as the file driver stores them.
//
// BigCache only knows one global LifeWindow; per-entry expiry is evaluated
// from the item's own deadline on every read. An entry older than
// LifeWindow may be evicted before its deadline.
package bigcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/stash"
	c "github.com/unkn0wn-root/stash/codec"
	"github.com/unkn0wn-root/stash/internal/wire"
	"github.com/unkn0wn-root/stash/item"
	"github.com/unkn0wn-root/stash/keys"
)

const defaultLifeWindow = 100 * 365 * 24 * time.Hour

type Config struct {
	stash.Options

	LifeWindow         time.Duration // 0 => effectively unbounded
	CleanWindow        time.Duration
	Shards             int // power of two; 0 => 64
	MaxEntriesInWindow int // 0 => 1024
	MaxEntrySize       int // 0 => 512
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

type Driver struct {
	c     *bc.BigCache
	keys  keys.Codec
	codec c.Codec[any]
	log   stash.Logger
	hooks stash.Hooks
	now   func() time.Time

	incrMu sync.Mutex
}

var _ stash.Driver = (*Driver)(nil)

// printfLogger routes bigcache's verbose output to stash.Logger.
type printfLogger struct{ log stash.Logger }

func (l printfLogger) Printf(format string, v ...any) {
	l.log.Debug(fmt.Sprintf(format, v...), stash.Fields{"component": "bigcache"})
}

func New(cfg Config) (*Driver, error) {
	opts := cfg.Options.WithDefaults()

	life := cfg.LifeWindow
	if life <= 0 {
		life = defaultLifeWindow
	}
	conf := bc.DefaultConfig(life)
	conf.Shards = 64
	conf.MaxEntriesInWindow = 1024
	conf.MaxEntrySize = 512
	conf.Logger = printfLogger{log: opts.Logger}
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	cache, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, fmt.Errorf("bigcache: %w", err)
	}
	return &Driver{
		c:     cache,
		keys:  opts.Keys(),
		codec: opts.Codec,
		log:   opts.Logger,
		hooks: opts.Hooks,
		now:   opts.Now,
	}, nil
}

func (d *Driver) Put(_ context.Context, key string, value any, minutes int) error {
	if err := d.set(d.keys.Native(key), item.New(value, minutes, d.now())); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

func (d *Driver) Forever(ctx context.Context, key string, value any) error {
	return d.Put(ctx, key, value, 0)
}

func (d *Driver) set(k string, it item.Item) error {
	if !it.Fresh(d.now()) {
		if err := d.c.Delete(k); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
			return err
		}
		return nil
	}
	b, err := it.Encode(d.codec)
	if err != nil {
		return err
	}
	if err := d.c.Set(k, b); err != nil {
		d.hooks.WriteFailed(k, err)
		d.log.Warn("write failed", stash.Fields{"key": k, "err": err})
		return err
	}
	return nil
}

func (d *Driver) get(k string) (item.Item, bool) {
	b, err := d.c.Get(k)
	if err != nil {
		return item.Item{}, false
	}
	it, err := item.Decode(d.codec, b)
	if err != nil {
		reason := "decode"
		if errors.Is(err, wire.ErrCorrupt) {
			reason = "corrupt"
		}
		// self-heal: drop what cannot be read back
		d.hooks.CorruptItem(k, reason, err)
		_ = d.c.Delete(k)
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
		return 0, fmt.Errorf("increment %q: %w", key, err)
	}
	return n, nil
}

func (d *Driver) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	return d.Increment(ctx, key, -delta)
}

func (d *Driver) Forget(_ context.Context, key string) error {
	k := d.keys.Native(key)
	if err := d.c.Delete(k); err != nil {
		if errors.Is(err, bc.ErrEntryNotFound) {
			return fmt.Errorf("forget %q: %w", key, stash.ErrNotFound)
		}
		d.hooks.DeleteFailed(k, err)
		return fmt.Errorf("forget %q: %w", key, err)
	}
	return nil
}

// Flush drops every entry in the cache, regardless of prefix.
func (d *Driver) Flush(context.Context) error {
	if err := d.c.Reset(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func (d *Driver) Close(context.Context) error { return d.c.Close() }

// Len returns the number of entries held, expired ones included.
func (d *Driver) Len() int { return d.c.Len() }
