// Package node defines a single cache node as seen by the replicated client,
// and ships the in-process implementation: a bounded LRU with lazy TTL expiry.
//
// The client only talks to the Node interface, so a node backed by a
// networked store (see package provider) can be registered next to LRU nodes.
package node

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TTL values understood by Node.Set.
const (
	// DefaultTTL applies the node's configured default expiry.
	DefaultTTL time.Duration = 0
	// NoTTL stores the entry without expiry, regardless of the node default.
	NoTTL time.Duration = -1
)

// Node is one cache instance. Implementations must be safe for concurrent use.
type Node interface {
	// Get returns (value, true, nil) on a fresh hit and marks key most recently used.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key. See DefaultTTL and NoTTL for ttl <= 0.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key, expired or not, and reports whether anything was removed.
	Delete(ctx context.Context, key string) (bool, error)
	// Exists has Get's freshness semantics without refreshing recency.
	Exists(ctx context.Context, key string) (bool, error)
}

var (
	// ErrConnectionFailed marks transport faults of a networked node.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrNodeUnhealthy is returned by a node that is failing fast after repeated faults.
	ErrNodeUnhealthy = errors.New("node unhealthy")
	// ErrWriteRejected is returned when a store refused a write (admission, pressure).
	ErrWriteRejected = errors.New("write rejected")
	// ErrClosed is returned by operations on a closed node.
	ErrClosed = errors.New("node closed")
)

// ConnError wraps a transport error of a networked node.
// errors.Is(err, ErrConnectionFailed) holds for every ConnError.
type ConnError struct {
	Addr string
	Err  error
}

func (e *ConnError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("connection failed: %v", e.Err)
	}
	return fmt.Sprintf("connection to %s failed: %v", e.Addr, e.Err)
}

func (e *ConnError) Unwrap() []error { return []error{ErrConnectionFailed, e.Err} }

// ExpiresAt resolves a Set ttl against the node default def.
// DefaultTTL uses def; NoTTL, or DefaultTTL with def <= 0, yields the zero
// time meaning "never expires".
func ExpiresAt(now time.Time, ttl, def time.Duration) time.Time {
	if ttl == DefaultTTL {
		ttl = def
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
