package ringcache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/ringcache/node"
	"github.com/unkn0wn-root/ringcache/ring"
)

// Cache is the logical cache surface implemented by *Client.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)

	AddNode(id ring.NodeID, n node.Node) error
	RemoveNode(id ring.NodeID) bool
	NodeCount() int
	Nodes() []ring.NodeID

	Close(context.Context) error
}

// Options configure a Client. They are copied at construction and never
// change afterwards. Zero values pick the defaults noted per field.
type Options struct {
	ReplicationFactor int // distinct replicas per key; 0 => 3
	WriteQuorum       int // acks required by Set; 0 => majority of ReplicationFactor
	VirtualNodes      int // ring positions per node; 0 => 150

	// ReplicaTimeout bounds each replica call, reads included; 0 => unbounded.
	// A write replica that times out counts as a failed vote. A primary that
	// times out fails the read.
	ReplicaTimeout time.Duration

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks
}

// New validates opts and returns an empty client. Register nodes with AddNode.
func New(opts Options) (*Client, error) {
	return newClient(opts)
}

// Config returns the effective options after defaults were applied.
func (c *Client) Config() Options { return c.opts }
