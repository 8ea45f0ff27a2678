// Package provider defines the byte-store abstraction behind cache nodes and
// adapts any store into a node.Node.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation). The Node adapter frames values itself
// and treats anything it cannot parse as corruption.
//
// A store handed to a Node is owned by it. Foreign writes into the same
// keyspace are read as misses and deleted.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs.
// Must be safe for concurrent use and must be byte-for-byte
// transparent: Get must return exactly the []byte previously passed to Set for
// the same key.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (<= 0 => no expiry, or the store's
	// global lifetime). May ignore cost if unsupported.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key and reports whether it was present.
	Del(ctx context.Context, key string) (bool, error)

	// Close releases resources.
	Close(ctx context.Context) error
}
