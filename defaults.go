package ringcache

import "github.com/unkn0wn-root/ringcache/ring"

const (
	defaultReplicationFactor = 3
	defaultVirtualNodes      = ring.DefaultVirtualNodes
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// majority is the default write quorum for n replicas.
func majority(n int) int { return n/2 + 1 }
