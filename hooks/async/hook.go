// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    ReplicaFailedEvery: 10, // sample logs: ~every 10th replica failure
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	c, _ := ringcache.New(ringcache.Options{
//	    ReplicationFactor: 3,
//	    Hooks:             hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/ringcache"
	"github.com/unkn0wn-root/ringcache/ring"
)

// Hooks forwards events to inner on background workers. Events are dropped
// when the queue is full or after Close.
type Hooks struct {
	inner ringcache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ ringcache.Hooks = (*Hooks)(nil)

func New(inner ringcache.Hooks, workers, qlen int) *Hooks {
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

// Close drains queued events and stops the workers.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns the number of events discarded so far.
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
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) ReplicaFailed(op ringcache.Op, id ring.NodeID, key string, err error) {
	h.try(func() { h.inner.ReplicaFailed(op, id, key, err) })
}
func (h *Hooks) QuorumNotReached(key string, s, r int) {
	h.try(func() { h.inner.QuorumNotReached(key, s, r) })
}
func (h *Hooks) RoutingFault(id ring.NodeID) { h.try(func() { h.inner.RoutingFault(id) }) }
func (h *Hooks) NodeAdded(id ring.NodeID)    { h.try(func() { h.inner.NodeAdded(id) }) }
func (h *Hooks) NodeRemoved(id ring.NodeID)  { h.try(func() { h.inner.NodeRemoved(id) }) }
