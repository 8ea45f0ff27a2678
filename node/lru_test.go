package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLRU(t *testing.T, cfg Config) *LRU {
	t.Helper()
	n, err := NewLRU(cfg)
	if err != nil {
		t.Fatalf("NewLRU: %v", err)
	}
	t.Cleanup(func() { _ = n.Close(context.Background()) })
	return n
}

func mustGet(t *testing.T, n *LRU, key string) ([]byte, bool) {
	t.Helper()
	v, ok, err := n.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get(%q): %v", key, err)
	}
	return v, ok
}

func mustSet(t *testing.T, n *LRU, key, value string, ttl time.Duration) {
	t.Helper()
	if err := n.Set(context.Background(), key, []byte(value), ttl); err != nil {
		t.Fatalf("Set(%q): %v", key, err)
	}
}

func TestGetSet(t *testing.T) {
	n := newTestLRU(t, Config{MaxEntries: 100})
	mustSet(t, n, "key1", "value1", DefaultTTL)

	v, ok := mustGet(t, n, "key1")
	if !ok || string(v) != "value1" {
		t.Fatalf("Get: ok=%v v=%q", ok, v)
	}
	if _, ok := mustGet(t, n, "nonexistent"); ok {
		t.Fatalf("expected miss for nonexistent key")
	}
}

func TestOverwriteKeepsSize(t *testing.T) {
	n := newTestLRU(t, Config{MaxEntries: 2})
	mustSet(t, n, "a", "1", DefaultTTL)
	mustSet(t, n, "a", "2", DefaultTTL)
	if n.Len() != 1 {
		t.Fatalf("Len=%d want 1", n.Len())
	}
	if v, _ := mustGet(t, n, "a"); string(v) != "2" {
		t.Fatalf("overwrite lost: %q", v)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	n := newTestLRU(t, Config{MaxEntries: 100})
	mustSet(t, n, "key1", "value1", DefaultTTL)

	ok, err := n.Delete(ctx, "key1")
	if err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	if _, ok := mustGet(t, n, "key1"); ok {
		t.Fatalf("key1 still present after delete")
	}
	if ok, _ := n.Delete(ctx, "key1"); ok {
		t.Fatalf("second delete reported removal")
	}
}

func TestDeleteExpiredStillReportsRemoval(t *testing.T) {
	clk := newFakeClock()
	n := newTestLRU(t, Config{MaxEntries: 10, Clock: clk.Now})
	mustSet(t, n, "k", "v", time.Second)
	clk.Advance(2 * time.Second)

	ok, err := n.Delete(context.Background(), "k")
	if err != nil || !ok {
		t.Fatalf("Delete of expired entry: ok=%v err=%v", ok, err)
	}
}

func TestLRUBound(t *testing.T) {
	for _, tc := range []struct{ capacity, extra int }{
		{1, 1}, {3, 1}, {3, 5}, {10, 10},
	} {
		t.Run(fmt.Sprintf("cap=%d/extra=%d", tc.capacity, tc.extra), func(t *testing.T) {
			n := newTestLRU(t, Config{MaxEntries: tc.capacity})
			total := tc.capacity + tc.extra
			for i := 0; i < total; i++ {
				mustSet(t, n, fmt.Sprintf("key%d", i), "v", DefaultTTL)
				if n.Len() > tc.capacity {
					t.Fatalf("Len=%d exceeds capacity %d", n.Len(), tc.capacity)
				}
			}
			for i := 0; i < total; i++ {
				_, ok := mustGet(t, n, fmt.Sprintf("key%d", i))
				if want := i >= tc.extra; ok != want {
					t.Fatalf("key%d present=%v want %v", i, ok, want)
				}
			}
		})
	}
}

func TestRecencyRefresh(t *testing.T) {
	n := newTestLRU(t, Config{MaxEntries: 2})
	mustSet(t, n, "A", "a", DefaultTTL)
	mustSet(t, n, "B", "b", DefaultTTL)

	if _, ok := mustGet(t, n, "A"); !ok {
		t.Fatalf("A missing")
	}
	mustSet(t, n, "C", "c", DefaultTTL)

	if _, ok := mustGet(t, n, "B"); ok {
		t.Fatalf("B should have been evicted")
	}
	if _, ok := mustGet(t, n, "A"); !ok {
		t.Fatalf("A should survive after being read")
	}
	if _, ok := mustGet(t, n, "C"); !ok {
		t.Fatalf("C missing")
	}
}

func TestOverwriteRefreshesRecency(t *testing.T) {
	n := newTestLRU(t, Config{MaxEntries: 2})
	mustSet(t, n, "A", "a", DefaultTTL)
	mustSet(t, n, "B", "b", DefaultTTL)
	mustSet(t, n, "A", "a2", DefaultTTL)
	mustSet(t, n, "C", "c", DefaultTTL)

	if _, ok := mustGet(t, n, "B"); ok {
		t.Fatalf("B should have been evicted")
	}
	if got := n.Keys(); len(got) != 2 || got[0] != "C" || got[1] != "A" {
		t.Fatalf("Keys=%v want [C A]", got)
	}
}

func TestExistsDoesNotRefreshRecency(t *testing.T) {
	ctx := context.Background()
	n := newTestLRU(t, Config{MaxEntries: 2})
	mustSet(t, n, "A", "a", DefaultTTL)
	mustSet(t, n, "B", "b", DefaultTTL)

	if ok, err := n.Exists(ctx, "A"); err != nil || !ok {
		t.Fatalf("Exists(A): ok=%v err=%v", ok, err)
	}
	mustSet(t, n, "C", "c", DefaultTTL)

	if ok, _ := n.Exists(ctx, "A"); ok {
		t.Fatalf("A should be evicted, Exists must not refresh recency")
	}
	if ok, _ := n.Exists(ctx, "missing"); ok {
		t.Fatalf("Exists(missing) = true")
	}
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	n := newTestLRU(t, Config{MaxEntries: 100, Clock: clk.Now})

	mustSet(t, n, "key1", "value1", 100*time.Millisecond)
	mustSet(t, n, "forever", "v", DefaultTTL)
	if _, ok := mustGet(t, n, "key1"); !ok {
		t.Fatalf("key1 missing right after set")
	}

	clk.Advance(100 * time.Millisecond)
	if ok, _ := n.Exists(ctx, "key1"); ok {
		t.Fatalf("key1 should be expired at its deadline")
	}
	if n.Len() != 1 {
		t.Fatalf("expired entry not removed lazily, Len=%d", n.Len())
	}

	clk.Advance(24 * time.Hour)
	if _, ok := mustGet(t, n, "forever"); !ok {
		t.Fatalf("entry without ttl expired")
	}
}

func TestTTLExpiryRealClock(t *testing.T) {
	n := newTestLRU(t, Config{MaxEntries: 100})
	mustSet(t, n, "key1", "value1", 50*time.Millisecond)
	if _, ok := mustGet(t, n, "key1"); !ok {
		t.Fatalf("key1 missing right after set")
	}
	time.Sleep(100 * time.Millisecond)
	if _, ok := mustGet(t, n, "key1"); ok {
		t.Fatalf("key1 should be expired")
	}
}

func TestDefaultTTLAndNoTTL(t *testing.T) {
	clk := newFakeClock()
	n := newTestLRU(t, Config{MaxEntries: 10, DefaultTTL: time.Minute, Clock: clk.Now})

	mustSet(t, n, "default", "v", DefaultTTL)
	mustSet(t, n, "none", "v", NoTTL)
	mustSet(t, n, "explicit", "v", time.Hour)

	clk.Advance(time.Minute)
	if _, ok := mustGet(t, n, "default"); ok {
		t.Fatalf("default ttl not applied")
	}
	if _, ok := mustGet(t, n, "none"); !ok {
		t.Fatalf("NoTTL entry expired")
	}
	if _, ok := mustGet(t, n, "explicit"); !ok {
		t.Fatalf("explicit ttl overridden by default")
	}
}

func TestOverwriteResetsTTL(t *testing.T) {
	clk := newFakeClock()
	n := newTestLRU(t, Config{MaxEntries: 10, Clock: clk.Now})
	mustSet(t, n, "k", "v", time.Second)
	mustSet(t, n, "k", "v2", NoTTL)
	clk.Advance(time.Hour)
	if v, ok := mustGet(t, n, "k"); !ok || string(v) != "v2" {
		t.Fatalf("overwrite did not replace ttl: ok=%v v=%q", ok, v)
	}
}

func TestCleanupExpired(t *testing.T) {
	clk := newFakeClock()
	n := newTestLRU(t, Config{MaxEntries: 100, Clock: clk.Now})

	for i := 0; i < 5; i++ {
		mustSet(t, n, fmt.Sprintf("key%d", i), "v", 50*time.Millisecond)
	}
	for i := 5; i < 10; i++ {
		mustSet(t, n, fmt.Sprintf("key%d", i), "v", DefaultTTL)
	}
	if n.Len() != 10 {
		t.Fatalf("Len=%d want 10", n.Len())
	}

	clk.Advance(100 * time.Millisecond)
	if got := n.CleanupExpired(); got != 5 {
		t.Fatalf("CleanupExpired=%d want 5", got)
	}
	if n.Len() != 5 {
		t.Fatalf("Len=%d want 5", n.Len())
	}
	if got := n.CleanupExpired(); got != 0 {
		t.Fatalf("second CleanupExpired=%d want 0", got)
	}
}

func TestJanitorReclaimsExpired(t *testing.T) {
	n := newTestLRU(t, Config{MaxEntries: 10, CleanupInterval: 10 * time.Millisecond})
	mustSet(t, n, "k", "v", 20*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for n.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("janitor did not reclaim expired entry")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOnEvictReasons(t *testing.T) {
	clk := newFakeClock()
	got := map[string]EvictReason{}
	n := newTestLRU(t, Config{
		MaxEntries: 1,
		Clock:      clk.Now,
		OnEvict:    func(k string, r EvictReason) { got[k] = r },
	})

	mustSet(t, n, "a", "1", DefaultTTL)
	mustSet(t, n, "b", "2", time.Second) // evicts a
	clk.Advance(time.Second)
	mustGet(t, n, "b") // expires b

	if got["a"] != EvictCapacity {
		t.Fatalf("a reason=%v want capacity", got["a"])
	}
	if got["b"] != EvictExpired {
		t.Fatalf("b reason=%v want expired", got["b"])
	}
}

func TestClearAndIsEmpty(t *testing.T) {
	n := newTestLRU(t, Config{MaxEntries: 10})
	if !n.IsEmpty() {
		t.Fatalf("new node not empty")
	}
	mustSet(t, n, "a", "1", DefaultTTL)
	mustSet(t, n, "b", "2", DefaultTTL)
	n.Clear()
	if !n.IsEmpty() {
		t.Fatalf("Clear left %d entries", n.Len())
	}
	mustSet(t, n, "c", "3", DefaultTTL)
	if _, ok := mustGet(t, n, "c"); !ok {
		t.Fatalf("node unusable after Clear")
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := NewLRU(Config{MaxEntries: -1}); !errors.Is(err, ErrInvalidCapacity) {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}
	n := newTestLRU(t, Config{})
	if n.Capacity() != DefaultMaxEntries {
		t.Fatalf("Capacity=%d want %d", n.Capacity(), DefaultMaxEntries)
	}
}

func TestClosedNode(t *testing.T) {
	ctx := context.Background()
	n := MustLRU(Config{MaxEntries: 4, CleanupInterval: time.Millisecond})
	if err := n.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = n.Close(ctx)

	if err := n.Set(ctx, "k", nil, DefaultTTL); !errors.Is(err, ErrClosed) {
		t.Fatalf("Set after close: %v", err)
	}
	if _, _, err := n.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Get after close: %v", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	n := newTestLRU(t, Config{MaxEntries: 64})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k := fmt.Sprintf("w%d-k%d", w, i%100)
				_ = n.Set(ctx, k, []byte("v"), DefaultTTL)
				_, _, _ = n.Get(ctx, k)
				_, _ = n.Exists(ctx, k)
				if i%7 == 0 {
					_, _ = n.Delete(ctx, k)
				}
			}
		}(w)
	}
	wg.Wait()
	if n.Len() > 64 {
		t.Fatalf("Len=%d exceeds capacity", n.Len())
	}
}

func TestConnErrorIs(t *testing.T) {
	base := errors.New("dial tcp: refused")
	err := error(&ConnError{Addr: "10.0.0.1:6379", Err: base})
	if !errors.Is(err, ErrConnectionFailed) || !errors.Is(err, base) {
		t.Fatalf("ConnError does not unwrap to sentinel and cause: %v", err)
	}
}

func TestExpiresAt(t *testing.T) {
	now := time.Unix(100, 0)
	if got := ExpiresAt(now, DefaultTTL, 0); !got.IsZero() {
		t.Fatalf("no default => no deadline, got %v", got)
	}
	if got := ExpiresAt(now, DefaultTTL, time.Second); !got.Equal(now.Add(time.Second)) {
		t.Fatalf("default not applied: %v", got)
	}
	if got := ExpiresAt(now, NoTTL, time.Second); !got.IsZero() {
		t.Fatalf("NoTTL must ignore default: %v", got)
	}
	if got := ExpiresAt(now, time.Minute, time.Second); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("explicit ttl: %v", got)
	}
}
