package ringcache

import "github.com/unkn0wn-root/ringcache/ring"

// Op names the client operation a hook event belongs to.
type Op string

const (
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpDelete Op = "delete"
	OpExists Op = "exists"
)

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking: the client calls them on
// hot paths. Wrap slow sinks with hooks/async.
type Hooks interface {
	// A replica call failed or timed out. For set this is a lost vote,
	// for delete the error is otherwise absorbed.
	ReplicaFailed(op Op, id ring.NodeID, key string, err error)

	// A set gathered fewer acks than the write quorum.
	QuorumNotReached(key string, successes, required int)

	// The ring routed to a member without a registered handle.
	RoutingFault(id ring.NodeID)

	// Membership changes.
	NodeAdded(id ring.NodeID)
	NodeRemoved(id ring.NodeID)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) ReplicaFailed(Op, ring.NodeID, string, error) {}
func (NopHooks) QuorumNotReached(string, int, int)            {}
func (NopHooks) RoutingFault(ring.NodeID)                     {}
func (NopHooks) NodeAdded(ring.NodeID)                        {}
func (NopHooks) NodeRemoved(ring.NodeID)                      {}
