package node

import (
	"bytes"
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultMaxEntries is used when Config.MaxEntries is zero.
const DefaultMaxEntries = 10000

// ErrInvalidCapacity is returned by NewLRU for a negative MaxEntries.
var ErrInvalidCapacity = errors.New("node: max entries must be positive")

// EvictReason tells an OnEvict callback why an entry left the node.
type EvictReason int

const (
	EvictCapacity EvictReason = iota + 1
	EvictExpired
)

func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Config tunes an LRU node. The zero value is a 10000-entry node without expiry.
type Config struct {
	MaxEntries int           // 0 => DefaultMaxEntries
	DefaultTTL time.Duration // 0 => entries never expire unless Set passes a ttl

	// CleanupInterval > 0 starts a janitor calling CleanupExpired on that period.
	// Expiry is lazy either way, the janitor only reclaims memory earlier.
	CleanupInterval time.Duration

	// OnEvict is called under the node lock, it must not call back into the node.
	OnEvict func(key string, reason EvictReason)

	// Clock overrides time.Now (tests).
	Clock func() time.Time
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero => never
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// LRU is a bounded cache node with least-recently-used eviction and lazy TTL.
// Front of the list is most recently used.
type LRU struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	items   map[string]*list.Element
	order   *list.List
	onEvict func(string, EvictReason)
	now     func() time.Time
	closed  bool

	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ Node = (*LRU)(nil)

// NewLRU builds an LRU node from cfg.
func NewLRU(cfg Config) (*LRU, error) {
	if cfg.MaxEntries < 0 {
		return nil, ErrInvalidCapacity
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	n := &LRU{
		max:     cfg.MaxEntries,
		ttl:     cfg.DefaultTTL,
		items:   make(map[string]*list.Element, min(cfg.MaxEntries, 1024)),
		order:   list.New(),
		onEvict: cfg.OnEvict,
		now:     cfg.Clock,
	}
	if cfg.CleanupInterval > 0 {
		n.ticker = time.NewTicker(cfg.CleanupInterval)
		n.stopCh = make(chan struct{})
		n.wg.Add(1)
		go n.janitor()
	}
	return n, nil
}

// MustLRU is NewLRU that panics on error. Handy for tests and examples.
func MustLRU(cfg Config) *LRU {
	n, err := NewLRU(cfg)
	if err != nil {
		panic(err)
	}
	return n
}

// Capacity returns the maximum number of entries.
func (n *LRU) Capacity() int { return n.max }

// Get returns the stored slice, callers must not modify it.
func (n *LRU) Get(_ context.Context, key string) ([]byte, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, false, ErrClosed
	}
	el, ok := n.items[key]
	if !ok {
		return nil, false, nil
	}
	e := el.Value.(*entry)
	if e.expired(n.now()) {
		n.removeElement(el, EvictExpired)
		return nil, false, nil
	}
	n.order.MoveToFront(el)
	return e.value, true, nil
}

func (n *LRU) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}
	exp := ExpiresAt(n.now(), ttl, n.ttl)
	value = bytes.Clone(value)

	if el, ok := n.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.expiresAt = exp
		n.order.MoveToFront(el)
		return nil
	}

	if n.order.Len() >= n.max {
		if oldest := n.order.Back(); oldest != nil {
			n.removeElement(oldest, EvictCapacity)
		}
	}
	n.items[key] = n.order.PushFront(&entry{key: key, value: value, expiresAt: exp})
	return nil
}

func (n *LRU) Delete(_ context.Context, key string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return false, ErrClosed
	}
	el, ok := n.items[key]
	if !ok {
		return false, nil
	}
	n.order.Remove(el)
	delete(n.items, key)
	return true, nil
}

func (n *LRU) Exists(_ context.Context, key string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return false, ErrClosed
	}
	el, ok := n.items[key]
	if !ok {
		return false, nil
	}
	if el.Value.(*entry).expired(n.now()) {
		n.removeElement(el, EvictExpired)
		return false, nil
	}
	return true, nil
}

// CleanupExpired removes every expired entry and returns how many were removed.
func (n *LRU) CleanupExpired() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	removed := 0
	for el := n.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*entry).expired(now) {
			n.removeElement(el, EvictExpired)
			removed++
		}
		el = prev
	}
	return removed
}

// Len counts resident entries, including expired ones not yet reclaimed.
func (n *LRU) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.order.Len()
}

func (n *LRU) IsEmpty() bool { return n.Len() == 0 }

// Clear drops all entries without calling OnEvict.
func (n *LRU) Clear() {
	n.mu.Lock()
	n.items = make(map[string]*list.Element)
	n.order.Init()
	n.mu.Unlock()
}

// Keys returns resident keys from most to least recently used.
func (n *LRU) Keys() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, n.order.Len())
	for el := n.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry).key)
	}
	return out
}

// Close stops the janitor and makes further operations fail with ErrClosed.
// Safe to call multiple times.
func (n *LRU) Close(_ context.Context) error {
	n.closeOnce.Do(func() {
		if n.stopCh != nil {
			close(n.stopCh)
			n.ticker.Stop()
			n.wg.Wait()
		}
		n.mu.Lock()
		n.closed = true
		n.mu.Unlock()
	})
	return nil
}

// removeElement unlinks el. Caller holds n.mu.
func (n *LRU) removeElement(el *list.Element, reason EvictReason) {
	e := el.Value.(*entry)
	n.order.Remove(el)
	delete(n.items, e.key)
	if n.onEvict != nil {
		n.onEvict(e.key, reason)
	}
}

func (n *LRU) janitor() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ticker.C:
			n.CleanupExpired()
		case <-n.stopCh:
			return
		}
	}
}
