package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/ringcache/internal/wire"
	"github.com/unkn0wn-root/ringcache/node"
)

const defaultCooldown = 5 * time.Second

// NodeConfig configures a provider-backed node. Zero values are usable.
type NodeConfig struct {
	// Name identifies the node in errors.
	Name string

	// DefaultTTL applies when Set is called with node.DefaultTTL; 0 => no expiry.
	DefaultTTL time.Duration

	// FailureThreshold consecutive store errors mark the node unhealthy for
	// Cooldown. While unhealthy every call fails fast with node.ErrNodeUnhealthy.
	// After the cooldown one trial call at a time reaches the store and
	// concurrent callers keep failing fast. A failed trial reopens the gate and
	// a successful one closes it. 0 disables the gate.
	FailureThreshold int
	Cooldown         time.Duration // 0 => 5s

	// Cost returns the admission cost passed to the store. nil => len(value).
	Cost func(key string, value []byte) int64

	Clock func() time.Time // nil => time.Now
}

// Node serves node.Node over a Provider. Values are framed with their expiry
// deadline so the node enforces per-entry TTLs on stores that only offer a
// global lifetime. Corrupt or expired frames are deleted and read as misses.
type Node struct {
	p   Provider
	cfg NodeConfig
	now func() time.Time

	mu        sync.Mutex
	failures  int
	open      bool
	openUntil time.Time
	trial     bool

	closed atomic.Bool
}

var _ node.Node = (*Node)(nil)

// NewNode wraps p. The node owns p and closes it on Close.
func NewNode(p Provider, cfg NodeConfig) (*Node, error) {
	if p == nil {
		return nil, errors.New("provider: nil provider")
	}
	if cfg.FailureThreshold < 0 || cfg.Cooldown < 0 || cfg.DefaultTTL < 0 {
		return nil, errors.New("provider: negative node config value")
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.Cost == nil {
		cfg.Cost = func(_ string, v []byte) int64 { return int64(len(v)) }
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Node{p: p, cfg: cfg, now: now}, nil
}

// Name returns the configured node name.
func (n *Node) Name() string { return n.cfg.Name }

// Healthy reports whether a call would currently reach the store.
func (n *Node) Healthy() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.open || (!n.trial && !n.now().Before(n.openUntil))
}

func (n *Node) Get(ctx context.Context, key string) ([]byte, bool, error) {
	e, ok, err := n.load(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	return e.Payload, true, nil
}

func (n *Node) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := n.load(ctx, key)
	return ok, err
}

func (n *Node) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := n.admit(); err != nil {
		return err
	}
	now := n.now()
	exp := node.ExpiresAt(now, ttl, n.cfg.DefaultTTL)

	var storeTTL time.Duration
	if !exp.IsZero() {
		storeTTL = exp.Sub(now)
	}
	frame := wire.Encode(exp, value)

	ok, err := n.p.Set(ctx, key, frame, n.cfg.Cost(key, value), storeTTL)
	if err = n.observe(err); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", node.ErrWriteRejected, n.name())
	}
	return nil
}

func (n *Node) Delete(ctx context.Context, key string) (bool, error) {
	if err := n.admit(); err != nil {
		return false, err
	}
	removed, err := n.p.Del(ctx, key)
	if err = n.observe(err); err != nil {
		return false, err
	}
	return removed, nil
}

// Close closes the store. Later calls fail with node.ErrClosed.
func (n *Node) Close(ctx context.Context) error {
	if n.closed.Swap(true) {
		return nil
	}
	return n.p.Close(ctx)
}

func (n *Node) load(ctx context.Context, key string) (wire.Entry, bool, error) {
	if err := n.admit(); err != nil {
		return wire.Entry{}, false, err
	}
	raw, ok, err := n.p.Get(ctx, key)
	if err = n.observe(err); err != nil {
		return wire.Entry{}, false, err
	}
	if !ok {
		return wire.Entry{}, false, nil
	}

	e, err := wire.Decode(raw)
	if err != nil || e.Expired(n.now()) {
		// self-heal: drop foreign, corrupt or stale frames
		_, _ = n.p.Del(ctx, key)
		return wire.Entry{}, false, nil
	}
	return e, true, nil
}

func (n *Node) admit() error {
	if n.closed.Load() {
		return node.ErrClosed
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.open {
		if n.trial || n.now().Before(n.openUntil) {
			return fmt.Errorf("%w: %s", node.ErrNodeUnhealthy, n.name())
		}
		n.trial = true
	}
	return nil
}

// observe records the outcome of an admitted store call and passes err through.
// Caller cancellation says nothing about the store and is not counted.
func (n *Node) observe(err error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trial = false
	if errors.Is(err, context.Canceled) {
		return err
	}
	if err == nil {
		n.failures = 0
		n.open = false
		return nil
	}
	n.failures++
	if n.cfg.FailureThreshold > 0 && n.failures >= n.cfg.FailureThreshold {
		n.failures = n.cfg.FailureThreshold - 1
		n.open = true
		n.openUntil = n.now().Add(n.cfg.Cooldown)
	}
	return err
}

func (n *Node) name() string {
	if n.cfg.Name == "" {
		return "provider node"
	}
	return n.cfg.Name
}
