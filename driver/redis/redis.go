// Package redis is a stash driver over a go-redis UniversalClient.
//
// Keys are stored as prefix+key, values as codec-encoded payloads with a
// native TTL. Expiry is enforced by the server; Options.Now is unused.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/stash"
	c "github.com/unkn0wn-root/stash/codec"
	"github.com/unkn0wn-root/stash/item"
	"github.com/unkn0wn-root/stash/keys"
)

var (
	ErrNilClient = errors.New("redis driver: nil client")

	// ErrUnscopedFlush is returned by Flush when the driver has no prefix
	// and Config.AllowFlushDB is false.
	ErrUnscopedFlush = errors.New("redis driver: flush without a prefix requires AllowFlushDB")
)

const (
	defaultIncrRetries = 16
	scanCount          = 512
)

type Config struct {
	stash.Options

	Client      goredis.UniversalClient
	CloseClient bool // set true only if this driver exclusively owns the client

	// IncrRetries bounds optimistic retries of Increment when the key is
	// modified between WATCH and EXEC. 0 => 16.
	IncrRetries int

	// AllowFlushDB lets Flush run FLUSHDB when Prefix is empty.
	// DANGER: that empties the whole logical database on every master,
	// including keys written by other applications. Leave false unless the
	// database belongs to this driver alone.
	AllowFlushDB bool
}

type Driver struct {
	rdb         goredis.UniversalClient
	closeClient bool
	keys        keys.Codec
	codec       c.Codec[any]
	log         stash.Logger
	hooks       stash.Hooks
	retries     int
	flushDB     bool
}

var _ stash.Driver = (*Driver)(nil)

func New(cfg Config) (*Driver, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	opts := cfg.Options.WithDefaults()
	d := &Driver{
		rdb:         cfg.Client,
		closeClient: cfg.CloseClient,
		keys:        opts.Keys(),
		codec:       opts.Codec,
		log:         opts.Logger,
		hooks:       opts.Hooks,
		retries:     cfg.IncrRetries,
		flushDB:     cfg.AllowFlushDB,
	}
	if d.retries <= 0 {
		d.retries = defaultIncrRetries
	}
	return d, nil
}

func (d *Driver) Put(ctx context.Context, key string, value any, minutes int) error {
	k := d.keys.Native(key)
	if minutes < 0 {
		if err := d.rdb.Del(ctx, k).Err(); err != nil {
			return fmt.Errorf("put %q: %w", key, err)
		}
		return nil
	}
	b, err := d.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	if err := d.rdb.Set(ctx, k, b, item.Lifetime(minutes)).Err(); err != nil {
		d.hooks.WriteFailed(k, err)
		d.log.Warn("write failed", stash.Fields{"key": k, "err": err})
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

func (d *Driver) Forever(ctx context.Context, key string, value any) error {
	return d.Put(ctx, key, value, 0)
}

// Lookup reports transport errors. A value the codec cannot read is
// deleted and reported as a miss.
func (d *Driver) Lookup(ctx context.Context, key string) (any, bool, error) {
	k := d.keys.Native(key)
	b, err := d.rdb.Get(ctx, k).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup %q: %w", key, err)
	}
	v, err := d.codec.Decode(b)
	if err != nil {
		d.hooks.CorruptItem(k, "decode", err)
		d.log.Debug("undecodable value dropped", stash.Fields{"key": k, "err": err})
		_ = d.rdb.Del(ctx, k).Err()
		return nil, false, nil
	}
	return v, true, nil
}

func (d *Driver) Get(ctx context.Context, key string, def any) any {
	return stash.GetOr(ctx, d, key, def)
}

// Has uses EXISTS and does not decode the value.
func (d *Driver) Has(ctx context.Context, key string) bool {
	n, err := d.rdb.Exists(ctx, d.keys.Native(key)).Result()
	return err == nil && n > 0
}

func (d *Driver) Remember(ctx context.Context, key string, minutes int, compute stash.Compute) (any, error) {
	return stash.Remember(ctx, d, key, minutes, compute)
}

func (d *Driver) RememberForever(ctx context.Context, key string, compute stash.Compute) (any, error) {
	return stash.RememberForever(ctx, d, key, compute)
}

// Increment is a WATCH/MULTI read-modify-write that keeps the key's TTL
// (SET ... KEEPTTL, Redis >= 6). It retries when another client changes the
// key concurrently.
func (d *Driver) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	k := d.keys.Native(key)
	var n int64
	txf := func(tx *goredis.Tx) error {
		b, err := tx.Get(ctx, k).Bytes()
		if err == goredis.Nil {
			return stash.ErrNotFound
		}
		if err != nil {
			return err
		}
		v, err := d.codec.Decode(b)
		if err != nil {
			return stash.ErrNotNumeric
		}
		it := item.Item{Data: v}
		if n, err = it.Increment(delta); err != nil {
			return err
		}
		out, err := d.codec.Encode(it.Data)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.SetArgs(ctx, k, out, goredis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}

	for i := 0; i < d.retries; i++ {
		err := d.rdb.Watch(ctx, txf, k)
		if err == nil {
			return n, nil
		}
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return 0, fmt.Errorf("increment %q: %w", key, err)
	}
	return 0, fmt.Errorf("increment %q: %w", key, goredis.TxFailedErr)
}

func (d *Driver) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	return d.Increment(ctx, key, -delta)
}

func (d *Driver) Forget(ctx context.Context, key string) error {
	k := d.keys.Native(key)
	n, err := d.rdb.Del(ctx, k).Result()
	if err != nil {
		d.hooks.DeleteFailed(k, err)
		return fmt.Errorf("forget %q: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("forget %q: %w", key, stash.ErrNotFound)
	}
	return nil
}

// Flush deletes every key under the prefix (SCAN + DEL). Without a prefix
// it empties the whole database (FLUSHDB), but only if Config.AllowFlushDB
// is set; otherwise it returns ErrUnscopedFlush and sends nothing. On a
// cluster every master is visited.
func (d *Driver) Flush(ctx context.Context) error {
	if d.keys.Prefix == "" && !d.flushDB {
		return fmt.Errorf("flush: %w", ErrUnscopedFlush)
	}
	err := d.forEachNode(ctx, func(ctx context.Context, node goredis.Cmdable) error {
		if d.keys.Prefix == "" {
			return node.FlushDB(ctx).Err()
		}
		return d.deleteMatching(ctx, node, escapeGlob(d.keys.Prefix)+"*")
	})
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func (d *Driver) deleteMatching(ctx context.Context, node goredis.Cmdable, pattern string) error {
	var (
		cursor  uint64
		removed int64
	)
	for {
		batch, next, err := node.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return err
		}
		if len(batch) > 0 {
			n, err := node.Del(ctx, batch...).Result()
			if err != nil {
				d.hooks.FlushPartial(int(removed), len(batch))
				return err
			}
			removed += n
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	d.log.Debug("flushed", stash.Fields{"pattern": pattern, "removed": removed})
	return nil
}

func (d *Driver) forEachNode(ctx context.Context, fn func(context.Context, goredis.Cmdable) error) error {
	if cc, ok := d.rdb.(*goredis.ClusterClient); ok {
		return cc.ForEachMaster(ctx, func(ctx context.Context, c *goredis.Client) error {
			return fn(ctx, c)
		})
	}
	return fn(ctx, d.rdb)
}

// Close releases the underlying redis client only when this driver owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (d *Driver) Close(context.Context) error {
	if d.closeClient {
		if err := d.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
