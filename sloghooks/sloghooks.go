// Package sloghooks implements stash.Hooks by logging each event to a
// *slog.Logger. Locations (file paths or backend keys) are redacted.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/unkn0wn-root/stash"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	CorruptEvery uint64
	// Optional location redactor. Defaults to a SHA-256 prefix of the
	// location; file paths keep their directory.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	corruptCtr atomic.Uint64
}

var _ stash.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(loc string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(loc)
	}
	dir, base := filepath.Split(loc)
	sum := sha256.Sum256([]byte(base))
	return dir + hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) CorruptItem(location, reason string, err error) {
	if h.l == nil || !sample(h.opts.CorruptEvery, &h.corruptCtr) {
		return
	}
	h.l.Debug("stash.corrupt_item",
		"location", h.redact(location),
		"reason", reason,
		"err", err)
}

func (h *Hooks) WriteFailed(location string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("stash.write_failed",
		"location", h.redact(location),
		"err", err)
}

func (h *Hooks) DeleteFailed(location string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("stash.delete_failed",
		"location", h.redact(location),
		"err", err)
}

func (h *Hooks) FlushPartial(removed, failed int) {
	if h.l == nil {
		return
	}
	h.l.Error("stash.flush_partial",
		"removed", removed,
		"failed", failed)
}
