// Package ringcache is a client-side distributed cache. Keys are placed on a
// consistent-hash ring with virtual nodes and replicated to several cache nodes.
//
// Components:
//   - ring: consistent-hash ring (xxhash, 150 virtual nodes per member by default).
//   - node.Node: a single cache node. node.LRU is the in-process reference node;
//     provider.Node adapts Ristretto, BigCache or Redis stores.
//   - Client: routes reads to the primary replica and fans writes out to
//     ReplicationFactor replicas, succeeding once WriteQuorum acknowledge.
//   - Typed[V]: codec-backed typed facade over a Client.
//
// Replication is best-effort quorum, with no conflict resolution. Reads
// consult the primary only, deletes are best-effort, and membership changes
// never migrate entries.
//
// Usage:
//
//	c, _ := ringcache.New(ringcache.Options{ReplicationFactor: 3, WriteQuorum: 2})
//	for _, id := range []ring.NodeID{"node1", "node2", "node3", "node4"} {
//		_ = c.AddNode(id, node.MustLRU(node.Config{MaxEntries: 1000}))
//	}
//	_ = c.Set(ctx, "user:1", []byte("alice"))
//	v, ok, _ := c.Get(ctx, "user:1")
package ringcache
