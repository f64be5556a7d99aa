// Package file is the file-backed stash driver: one file per key in a
// single directory, named hash(prefix+key).cache, holding a framed
// item.Item.
//
// Writes hold an exclusive flock for the duration of the write, so a reader
// (which takes a shared lock) never sees a partial item and concurrent Puts
// to one key leave one complete winner. Increment is a read-modify-write
// that, by default, does not hold a lock across the read and the write;
// concurrent increments of one key may lose updates. Set
// Config.AtomicIncrement to hold one exclusive lock for the whole cycle.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/unkn0wn-root/stash"
	c "github.com/unkn0wn-root/stash/codec"
	"github.com/unkn0wn-root/stash/internal/wire"
	"github.com/unkn0wn-root/stash/item"
	"github.com/unkn0wn-root/stash/keys"
)

const defaultFileMode os.FileMode = 0o600

type Config struct {
	stash.Options

	FileMode     os.FileMode // 0 => 0o600
	MaxItemBytes int         // payloads larger than this read as a miss; 0 => unlimited

	// AtomicIncrement holds an exclusive lock across the read and the
	// write of Increment/Decrement. Off by default.
	AtomicIncrement bool
}

type Driver struct {
	dir        string
	keys       keys.Codec
	codec      c.Codec[any]
	log        stash.Logger
	hooks      stash.Hooks
	now        func() time.Time
	mode       os.FileMode
	atomicIncr bool
}

var _ stash.Driver = (*Driver)(nil)

// New returns a driver storing items in dir. The directory must already
// exist and be writable; it is never created. Trailing separators are
// stripped and relative paths resolved.
func New(dir string, cfg Config) (*Driver, error) {
	clean, err := storageDir(dir)
	if err != nil {
		return nil, err
	}
	opts := cfg.Options.WithDefaults()

	d := &Driver{
		dir:        clean,
		keys:       opts.Keys(),
		codec:      opts.Codec,
		log:        opts.Logger,
		hooks:      opts.Hooks,
		now:        opts.Now,
		mode:       cfg.FileMode,
		atomicIncr: cfg.AtomicIncrement,
	}
	if d.mode == 0 {
		d.mode = defaultFileMode
	}
	if cfg.MaxItemBytes > 0 {
		d.codec = c.LimitCodec[any]{Inner: opts.Codec, MaxDecode: cfg.MaxItemBytes}
	}
	return d, nil
}

func storageDir(dir string) (string, error) {
	if trimmed := strings.TrimRight(dir, string(os.PathSeparator)); trimmed != "" {
		dir = trimmed
	}
	if dir == "" {
		return "", fmt.Errorf("%w: empty path", stash.ErrStorageDir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", stash.ErrStorageDir, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", stash.ErrStorageDir, err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", stash.ErrStorageDir, abs)
	}
	// permission bits alone lie for root and ACLs
	tmp, err := os.CreateTemp(abs, ".stash-writable-*")
	if err != nil {
		return "", fmt.Errorf("%w: %w", stash.ErrStorageDir, err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	_ = os.Remove(name)
	return abs, nil
}

// Dir returns the storage directory.
func (d *Driver) Dir() string { return d.dir }

// Path returns the file that holds key.
func (d *Driver) Path(key string) string { return d.keys.Path(d.dir, key) }

func (d *Driver) Put(_ context.Context, key string, value any, minutes int) error {
	return d.putContents(key, value, minutes)
}

func (d *Driver) Forever(ctx context.Context, key string, value any) error {
	return d.Put(ctx, key, value, 0)
}

func (d *Driver) Lookup(_ context.Context, key string) (any, bool, error) {
	it, ok := d.getContents(key)
	if !ok {
		return nil, false, nil
	}
	if !it.Fresh(d.now()) {
		d.log.Debug("item expired", stash.Fields{"key": key, "expiresAt": it.ExpiresAt})
		return nil, false, nil
	}
	return it.Data, true, nil
}

func (d *Driver) Get(ctx context.Context, key string, def any) any {
	return stash.GetOr(ctx, d, key, def)
}

func (d *Driver) Has(ctx context.Context, key string) bool {
	_, ok, _ := d.Lookup(ctx, key)
	return ok
}

func (d *Driver) Remember(ctx context.Context, key string, minutes int, compute stash.Compute) (any, error) {
	return stash.Remember(ctx, d, key, minutes, compute)
}

func (d *Driver) RememberForever(ctx context.Context, key string, compute stash.Compute) (any, error) {
	return stash.RememberForever(ctx, d, key, compute)
}

func (d *Driver) Increment(_ context.Context, key string, delta int64) (int64, error) {
	if d.atomicIncr {
		return d.incrementLocked(key, delta)
	}
	it, ok := d.getContents(key)
	if !ok || !it.Fresh(d.now()) {
		return 0, fmt.Errorf("increment %q: %w", key, stash.ErrNotFound)
	}
	n, err := it.Increment(delta)
	if err != nil {
		return 0, fmt.Errorf("increment %q: %w", key, err)
	}
	if err := d.write(d.Path(key), it); err != nil {
		return 0, fmt.Errorf("increment %q: %w", key, err)
	}
	return n, nil
}

func (d *Driver) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	return d.Increment(ctx, key, -delta)
}

func (d *Driver) Forget(_ context.Context, key string) error {
	path := d.Path(key)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("forget %q: %w: %w", key, stash.ErrNotFound, err)
		}
		d.hooks.DeleteFailed(path, err)
		d.log.Warn("forget failed", stash.Fields{"key": key, "path": path, "err": err})
		return fmt.Errorf("forget %q: %w", key, err)
	}
	return nil
}

// Flush removes every *.cache file in the storage directory, including
// files written under other prefixes. It keeps going after a failed
// removal and reports all failures in a *stash.FlushError.
func (d *Driver) Flush(_ context.Context) error {
	names, err := d.cacheFiles()
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	fe := &stash.FlushError{}
	for _, name := range names {
		path := filepath.Join(d.dir, name)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			d.hooks.DeleteFailed(path, err)
			fe.Failures = append(fe.Failures, stash.FlushFailure{Path: path, Err: err})
			continue
		}
		fe.Removed++
	}
	if len(fe.Failures) > 0 {
		d.hooks.FlushPartial(fe.Removed, len(fe.Failures))
		d.log.Warn("flush incomplete", stash.Fields{"removed": fe.Removed, "failed": len(fe.Failures)})
		return fe
	}
	d.log.Debug("flushed", stash.Fields{"removed": fe.Removed})
	return nil
}

func (d *Driver) Close(context.Context) error { return nil }

func (d *Driver) putContents(key string, data any, minutes int) error {
	it := item.New(data, minutes, d.now())
	if err := d.write(d.Path(key), it); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// getContents never fails loudly: missing, unreadable and undecodable
// files are all reported as "no item".
func (d *Driver) getContents(key string) (item.Item, bool) {
	path := d.Path(key)
	b, err := readLocked(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			d.hooks.CorruptItem(path, "read", err)
			d.log.Warn("read failed", stash.Fields{"key": key, "path": path, "err": err})
		}
		return item.Item{}, false
	}
	it, err := item.Decode(d.codec, b)
	if err != nil {
		reason := "decode"
		if errors.Is(err, wire.ErrCorrupt) {
			reason = "corrupt"
		}
		d.hooks.CorruptItem(path, reason, err)
		d.log.Debug("unreadable item treated as miss", stash.Fields{"key": key, "reason": reason, "err": err})
		return item.Item{}, false
	}
	return it, true
}

func (d *Driver) write(path string, it item.Item) error {
	b, err := it.Encode(d.codec)
	if err != nil {
		return err
	}
	if err := writeLocked(path, b, d.mode); err != nil {
		d.hooks.WriteFailed(path, err)
		d.log.Warn("write failed", stash.Fields{"path": path, "err": err})
		return err
	}
	return nil
}

// incrementLocked is Increment under one exclusive lock. The file is not
// created when missing.
func (d *Driver) incrementLocked(key string, delta int64) (int64, error) {
	path := d.Path(key)
	var n int64
	err := withLock(path, os.O_RDWR, 0, true, func(f *os.File) error {
		b, err := io.ReadAll(f)
		if err != nil {
			return err
		}
		it, err := item.Decode(d.codec, b)
		if err != nil || !it.Fresh(d.now()) {
			return stash.ErrNotFound
		}
		if n, err = it.Increment(delta); err != nil {
			return err
		}
		out, err := it.Encode(d.codec)
		if err != nil {
			return err
		}
		return rewrite(f, out)
	})
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, fs.ErrNotExist):
		return 0, fmt.Errorf("increment %q: %w", key, stash.ErrNotFound)
	case errors.Is(err, stash.ErrNotFound), errors.Is(err, stash.ErrNotNumeric), errors.Is(err, stash.ErrOverflow):
		return 0, fmt.Errorf("increment %q: %w", key, err)
	}
	d.hooks.WriteFailed(path, err)
	return 0, fmt.Errorf("increment %q: %w", key, err)
}

func (d *Driver) cacheFiles() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), keys.Ext) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
