package ringcache

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/ringcache/node"
	"github.com/unkn0wn-root/ringcache/ring"
)

var (
	// ErrNoNodesAvailable is returned when the ring has no members.
	ErrNoNodesAvailable = errors.New("ringcache: no nodes available")
	// ErrNodeNotFound marks a ring member without a registered node handle.
	ErrNodeNotFound = errors.New("ringcache: node not found")
	// ErrKeyNotFound is returned by Fetch on a miss. Get reports misses as ok=false.
	ErrKeyNotFound = errors.New("ringcache: key not found")
	// ErrQuorumNotReached is matched by every *QuorumError.
	ErrQuorumNotReached = errors.New("ringcache: quorum not reached")
	// ErrInvalidOptions is returned by New and AddNode for unusable arguments.
	ErrInvalidOptions = errors.New("ringcache: invalid options")

	// ErrNodeUnhealthy and ErrConnectionFailed come from networked nodes.
	ErrNodeUnhealthy    = node.ErrNodeUnhealthy
	ErrConnectionFailed = node.ErrConnectionFailed
)

// NodeError reports a routing fault for a specific node.
type NodeError struct {
	ID  ring.NodeID
	Err error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.ID)
}

func (e *NodeError) Unwrap() error { return e.Err }

// KeyError is returned by Fetch for an absent key.
type KeyError struct {
	Key string
}

func (e *KeyError) Error() string { return fmt.Sprintf("%v: %q", ErrKeyNotFound, e.Key) }

func (e *KeyError) Unwrap() error { return ErrKeyNotFound }

// QuorumError reports a write that fewer than Required replicas acknowledged.
// Unwrap exposes ErrQuorumNotReached plus each failed replica's error.
type QuorumError struct {
	Key       string
	Successes int
	Required  int
	Errs      []error
}

func (e *QuorumError) Error() string {
	msg := fmt.Sprintf("ringcache: quorum not reached for %q: %d/%d", e.Key, e.Successes, e.Required)
	if len(e.Errs) > 0 {
		msg += fmt.Sprintf(" (%v)", errors.Join(e.Errs...))
	}
	return msg
}

func (e *QuorumError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errs)+1)
	errs = append(errs, ErrQuorumNotReached)
	return append(errs, e.Errs...)
}
