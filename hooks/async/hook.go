// Package asynchook runs stash.Hooks off the caller's goroutine.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{CorruptEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	d, _ := file.New("/var/cache/app", file.Config{
//	    Options: stash.Options{Hooks: hooks},
//	})
//
// Events are dropped when the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/stash"
)

type Hooks struct {
	inner   stash.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ stash.Hooks = (*Hooks)(nil)

func New(inner stash.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) CorruptItem(loc, reason string, err error) {
	h.try(func() { h.inner.CorruptItem(loc, reason, err) })
}
func (h *Hooks) WriteFailed(loc string, err error)  { h.try(func() { h.inner.WriteFailed(loc, err) }) }
func (h *Hooks) DeleteFailed(loc string, err error) { h.try(func() { h.inner.DeleteFailed(loc, err) }) }
func (h *Hooks) FlushPartial(removed, failed int) {
	h.try(func() { h.inner.FlushPartial(removed, failed) })
}
