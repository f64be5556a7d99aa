package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/unkn0wn-root/stash"
	"github.com/unkn0wn-root/stash/item"
)

// Entry describes one file in the storage directory. Keys cannot be
// recovered from file names.
type Entry struct {
	Name    string
	Path    string
	Size    int64
	Meta    item.Meta
	Corrupt bool
}

// Entries lists every *.cache file with its metadata. Payloads are not
// decoded.
func (d *Driver) Entries(ctx context.Context) ([]Entry, error) {
	names, err := d.cacheFiles()
	if err != nil {
		return nil, fmt.Errorf("entries: %w", err)
	}
	out := make([]Entry, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		path := filepath.Join(d.dir, name)
		b, err := readLocked(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue // removed since ReadDir
		}
		e := Entry{Name: name, Path: path, Size: int64(len(b))}
		if err != nil {
			e.Corrupt = true
		} else if e.Meta, err = item.DecodeMeta(b); err != nil {
			e.Corrupt = true
		}
		out = append(out, e)
	}
	return out, nil
}

// Prune deletes expired and corrupt items and returns how many it removed.
// It only runs when called; drivers never sweep in the background.
func (d *Driver) Prune(ctx context.Context) (int, error) {
	entries, err := d.Entries(ctx)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	now := d.now()
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.Corrupt && e.Meta.Fresh(now) {
			continue
		}
		ok, err := d.removeIfStale(e.Path, now)
		if err != nil {
			d.hooks.DeleteFailed(e.Path, err)
			errs = append(errs, err)
			continue
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		d.log.Info("pruned stale items", stash.Fields{"removed": removed, "scanned": len(entries)})
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("prune: %w", errors.Join(errs...))
	}
	return removed, nil
}

// removeIfStale re-reads path under an exclusive lock and removes it only if
// it is still expired or unreadable. The listing Prune works from may be
// out of date by the time a file is visited.
func (d *Driver) removeIfStale(path string, now time.Time) (bool, error) {
	stale := false
	err := withLock(path, os.O_RDWR, 0, true, func(f *os.File) error {
		b, err := io.ReadAll(f)
		if err != nil {
			return err
		}
		if m, err := item.DecodeMeta(b); err == nil && m.Fresh(now) {
			return nil
		}
		stale = true
		if removeWhileLocked {
			return os.Remove(path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil || !stale {
		return false, err
	}
	if !removeWhileLocked {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
	}
	return true, nil
}
