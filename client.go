package ringcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/ringcache/internal/quorum"
	"github.com/unkn0wn-root/ringcache/node"
	"github.com/unkn0wn-root/ringcache/ring"
)

// Client routes keys over a consistent-hash ring and replicates writes to
// ReplicationFactor nodes.
//
// Reads (Get, Exists) go to the primary replica only. Set succeeds once
// WriteQuorum replicas acknowledge. Delete succeeds if any replica removed the
// key and absorbs per-replica failures: it is deliberately weaker than Set,
// callers needing full cleanup must not rely on it.
//
// Membership changes never move data. After AddNode or RemoveNode some keys
// route to nodes that never saw them and read as misses until rewritten.
type Client struct {
	opts  Options
	log   Logger
	hooks Hooks

	// mu guards nodes and serializes ring membership changes, so every ring
	// member has a handle outside of a held write lock.
	mu    sync.RWMutex
	ring  *ring.Ring
	nodes map[ring.NodeID]node.Node
}

var _ Cache = (*Client)(nil)

func newClient(opts Options) (*Client, error) {
	if opts.ReplicationFactor < 0 || opts.WriteQuorum < 0 || opts.VirtualNodes < 0 {
		return nil, fmt.Errorf("%w: negative replication factor, quorum or virtual nodes", ErrInvalidOptions)
	}
	if opts.ReplicaTimeout < 0 {
		return nil, fmt.Errorf("%w: negative replica timeout", ErrInvalidOptions)
	}

	opts.ReplicationFactor = coalesce(opts.ReplicationFactor, defaultReplicationFactor)
	opts.WriteQuorum = coalesce(opts.WriteQuorum, majority(opts.ReplicationFactor))
	opts.VirtualNodes = coalesce(opts.VirtualNodes, defaultVirtualNodes)
	opts.Logger = coalesce[Logger](opts.Logger, NopLogger{})
	opts.Hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	if opts.WriteQuorum > opts.ReplicationFactor {
		return nil, fmt.Errorf("%w: write quorum %d exceeds replication factor %d",
			ErrInvalidOptions, opts.WriteQuorum, opts.ReplicationFactor)
	}

	return &Client{
		opts:  opts,
		log:   opts.Logger,
		hooks: opts.Hooks,
		ring:  ring.New(opts.VirtualNodes),
		nodes: make(map[ring.NodeID]node.Node),
	}, nil
}

// AddNode registers n under id and places id on the ring. Registering an id
// again swaps the handle and keeps the ring unchanged. No entries are copied.
func (c *Client) AddNode(id ring.NodeID, n node.Node) error {
	if id == "" || n == nil {
		return fmt.Errorf("%w: node id and handle are required", ErrInvalidOptions)
	}

	c.mu.Lock()
	_, replaced := c.nodes[id]
	c.nodes[id] = n
	c.ring.Add(id)
	members := c.ring.Len()
	c.mu.Unlock()

	c.hooks.NodeAdded(id)
	c.log.Info("node added", Fields{"node": id, "replaced": replaced, "members": members})
	return nil
}

// RemoveNode drops id from the ring and the registry and reports whether it was
// present. Entries stored only on that node are lost, nothing is migrated.
func (c *Client) RemoveNode(id ring.NodeID) bool {
	c.mu.Lock()
	_, registered := c.nodes[id]
	member := c.ring.Contains(id)
	delete(c.nodes, id)
	c.ring.Remove(id)
	members := c.ring.Len()
	c.mu.Unlock()

	if !registered && !member {
		return false
	}
	c.hooks.NodeRemoved(id)
	c.log.Info("node removed", Fields{"node": id, "members": members})
	return true
}

// Get reads key from its primary replica. The returned slice belongs to the
// caller.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	id, n, err := c.primary(key)
	if err != nil {
		return nil, false, err
	}

	type hit struct {
		v  []byte
		ok bool
	}
	o := one(ctx, c.opts.ReplicaTimeout, id, func(ctx context.Context, _ ring.NodeID) (hit, error) {
		v, ok, err := n.Get(ctx, key)
		return hit{v, ok}, err
	})
	if o.Err != nil {
		c.replicaFailed(OpGet, id, key, o.Err)
		return nil, false, fmt.Errorf("ringcache: get %q from %s: %w", key, id, o.Err)
	}
	if !o.Value.ok {
		return nil, false, nil
	}
	return bytes.Clone(o.Value.v), true, nil
}

// Fetch is Get with a miss reported as *KeyError (errors.Is ErrKeyNotFound).
func (c *Client) Fetch(ctx context.Context, key string) ([]byte, error) {
	v, ok, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &KeyError{Key: key}
	}
	return v, nil
}

// Exists checks key on its primary replica with Get's freshness semantics.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	id, n, err := c.primary(key)
	if err != nil {
		return false, err
	}

	o := one(ctx, c.opts.ReplicaTimeout, id, func(ctx context.Context, _ ring.NodeID) (bool, error) {
		return n.Exists(ctx, key)
	})
	if o.Err != nil {
		c.replicaFailed(OpExists, id, key, o.Err)
		return false, fmt.Errorf("ringcache: exists %q on %s: %w", key, id, o.Err)
	}
	return o.Value, nil
}

// Set writes key to its replicas without expiry. Node default TTLs do not
// apply; use SetWithTTL(node.DefaultTTL) for that.
func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	return c.SetWithTTL(ctx, key, value, node.NoTTL)
}

// SetWithTTL writes key to up to ReplicationFactor replicas concurrently.
// ttl follows node.Node.Set: node.DefaultTTL, node.NoTTL or an explicit duration.
//
// It returns nil once at least WriteQuorum replicas acknowledged, otherwise a
// *QuorumError. Replicas that did acknowledge keep the value either way.
func (c *Client) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	targets, handles, err := c.replicas(key)
	if err != nil {
		return err
	}

	res := quorum.Do(ctx, targets, c.opts.ReplicaTimeout, func(ctx context.Context, id ring.NodeID) (struct{}, error) {
		return struct{}{}, handles[id].Set(ctx, key, value, ttl)
	})
	for _, o := range res {
		if o.Err != nil {
			c.replicaFailed(OpSet, o.ID, key, o.Err)
		}
	}

	acks := res.Acks()
	if acks >= c.opts.WriteQuorum {
		return nil
	}
	c.hooks.QuorumNotReached(key, acks, c.opts.WriteQuorum)
	c.log.Warn("write quorum not reached", Fields{
		"key": key, "acks": acks, "required": c.opts.WriteQuorum, "replicas": len(targets),
	})
	return &QuorumError{Key: key, Successes: acks, Required: c.opts.WriteQuorum, Errs: res.Errs()}
}

// Delete removes key from every replica and reports whether any replica held it.
//
// Replica failures are absorbed (reported through Hooks and Logger only), so
// a true result does not guarantee that every replica dropped the key.
func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	targets, handles, err := c.replicas(key)
	if err != nil {
		return false, err
	}

	res := quorum.Do(ctx, targets, c.opts.ReplicaTimeout, func(ctx context.Context, id ring.NodeID) (bool, error) {
		return handles[id].Delete(ctx, key)
	})
	deleted := false
	for _, o := range res {
		if o.Err != nil {
			c.replicaFailed(OpDelete, o.ID, key, o.Err)
			continue
		}
		deleted = deleted || o.Value
	}
	return deleted, nil
}

// NodeCount returns the number of ring members.
func (c *Client) NodeCount() int { return c.ring.Len() }

// Nodes returns ring members sorted by id.
func (c *Client) Nodes() []ring.NodeID { return c.ring.Members() }

// Node returns the handle registered under id.
func (c *Client) Node(id ring.NodeID) (node.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[id]
	return n, ok
}

// Locate returns the replica set for key, primary first.
func (c *Client) Locate(key string) []ring.NodeID {
	return c.ring.Replicas(key, c.opts.ReplicationFactor)
}

// Close closes every registered node that has a Close(context.Context) error method.
// Nodes stay registered.
func (c *Client) Close(ctx context.Context) error {
	c.mu.RLock()
	closers := make([]interface{ Close(context.Context) error }, 0, len(c.nodes))
	for _, n := range c.nodes {
		if cl, ok := n.(interface{ Close(context.Context) error }); ok {
			closers = append(closers, cl)
		}
	}
	c.mu.RUnlock()

	var errs []error
	for _, cl := range closers {
		if err := cl.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// primary resolves the owner of key and its handle.
func (c *Client) primary(key string) (ring.NodeID, node.Node, error) {
	c.mu.RLock()
	id, ok := c.ring.Lookup(key)
	n, registered := c.nodes[id]
	c.mu.RUnlock()

	if !ok {
		return "", nil, ErrNoNodesAvailable
	}
	if !registered {
		c.routingFault(id)
		return id, nil, &NodeError{ID: id, Err: ErrNodeNotFound}
	}
	return id, n, nil
}

// replicas resolves the replica set of key to registered handles. Members
// without a handle are skipped, they simply do not vote.
func (c *Client) replicas(key string) ([]ring.NodeID, map[ring.NodeID]node.Node, error) {
	c.mu.RLock()
	ids := c.ring.Replicas(key, c.opts.ReplicationFactor)
	targets := make([]ring.NodeID, 0, len(ids))
	handles := make(map[ring.NodeID]node.Node, len(ids))
	var missing []ring.NodeID
	for _, id := range ids {
		n, ok := c.nodes[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		targets = append(targets, id)
		handles[id] = n
	}
	c.mu.RUnlock()

	if len(ids) == 0 {
		return nil, nil, ErrNoNodesAvailable
	}
	for _, id := range missing {
		c.routingFault(id)
	}
	return targets, handles, nil
}

// one runs fn against a single replica under the same timeout rules as the
// write fan-out, so a replica that ignores ctx is still cut off.
func one[T any](ctx context.Context, timeout time.Duration, id ring.NodeID, fn quorum.ReplicaFunc[T]) quorum.Outcome[T] {
	return quorum.Do(ctx, []ring.NodeID{id}, timeout, fn)[0]
}

func (c *Client) replicaFailed(op Op, id ring.NodeID, key string, err error) {
	c.hooks.ReplicaFailed(op, id, key, err)
	c.log.Warn("replica call failed", Fields{"op": op, "node": id, "key": key, "err": err})
}

func (c *Client) routingFault(id ring.NodeID) {
	c.hooks.RoutingFault(id)
	c.log.Error("ring member has no registered node", Fields{"node": id})
}
