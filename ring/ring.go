// Package ring implements consistent hashing with virtual nodes.
//
// Every physical node is placed on a 64-bit ring at VirtualNodes positions
// (xxhash of "<id>:<i>"). A key is owned by the first position clockwise from
// the key's own hash. Adding the (N+1)th member therefore moves roughly
// 1/(N+1) of the keys instead of nearly all of them as hash(key)%N would.
package ring

import (
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultVirtualNodes is used when New receives a non-positive count.
const DefaultVirtualNodes = 150

// NodeID identifies a physical cache node.
type NodeID string

type position struct {
	hash uint64
	id   NodeID
}

// Ring maps keys to an ordered list of candidate nodes.
// The zero value is not usable, construct with New.
type Ring struct {
	mu        sync.RWMutex
	vnodes    int
	positions []position // sorted by hash
	members   map[NodeID]struct{}
}

// New returns an empty ring placing vnodes positions per member.
func New(vnodes int) *Ring {
	if vnodes <= 0 {
		vnodes = DefaultVirtualNodes
	}
	return &Ring{
		vnodes:  vnodes,
		members: make(map[NodeID]struct{}),
	}
}

// VirtualNodes reports the number of positions placed per member.
func (r *Ring) VirtualNodes() int { return r.vnodes }

// Add places id on the ring. Adding an existing member is a no-op.
//
// Two positions hashing to the same value are not disambiguated: the later
// insertion takes the slot over.
func (r *Ring) Add(id NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; ok {
		return
	}

	added := make([]position, 0, r.vnodes)
	for i := 0; i < r.vnodes; i++ {
		added = append(added, position{hash: vnodeHash(id, i), id: id})
	}
	r.positions = merge(r.positions, added)
	r.members[id] = struct{}{}
}

// Remove deletes every position owned by id. Removing a non-member is a no-op.
func (r *Ring) Remove(id NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; !ok {
		return
	}
	kept := make([]position, 0, len(r.positions))
	for _, p := range r.positions {
		if p.id != id {
			kept = append(kept, p)
		}
	}
	r.positions = kept
	delete(r.members, id)
}

// Lookup returns the primary owner of key. ok is false iff the ring is empty.
func (r *Ring) Lookup(key string) (id NodeID, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.positions) == 0 {
		return "", false
	}
	return r.positions[r.search(KeyHash(key))].id, true
}

// Replicas walks the ring clockwise from key and returns up to n distinct
// members. The first element is always Lookup(key). When fewer than n members
// exist, all of them are returned in ring order.
func (r *Ring) Replicas(key string, n int) []NodeID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.positions) == 0 || n <= 0 {
		return []NodeID{}
	}
	if n > len(r.members) {
		n = len(r.members)
	}

	out := make([]NodeID, 0, n)
	seen := make(map[NodeID]struct{}, n)
	start := r.search(KeyHash(key))
	for i := 0; i < len(r.positions) && len(out) < n; i++ {
		id := r.positions[(start+i)%len(r.positions)].id
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Members returns the physical members sorted by id.
func (r *Ring) Members() []NodeID {
	r.mu.RLock()
	out := make([]NodeID, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Contains reports whether id is a member.
func (r *Ring) Contains(id NodeID) bool {
	r.mu.RLock()
	_, ok := r.members[id]
	r.mu.RUnlock()
	return ok
}

// Len returns the number of physical members.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Positions returns the number of virtual positions on the ring.
func (r *Ring) Positions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.positions)
}

// search returns the index of the first position with hash >= h, wrapping to 0.
// Caller holds r.mu.
func (r *Ring) search(h uint64) int {
	idx := sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i].hash >= h
	})
	if idx == len(r.positions) {
		return 0
	}
	return idx
}

// KeyHash is the 64-bit ring coordinate of key.
func KeyHash(key string) uint64 {
	return xxhash.Sum64String(key)
}

func vnodeHash(id NodeID, i int) uint64 {
	return xxhash.Sum64String(string(id) + ":" + strconv.Itoa(i))
}

// merge folds added into the sorted slice cur. An added position with the same
// hash as an existing one replaces it.
func merge(cur, added []position) []position {
	slices.SortFunc(added, func(a, b position) int {
		switch {
		case a.hash < b.hash:
			return -1
		case a.hash > b.hash:
			return 1
		}
		return 0
	})

	out := make([]position, 0, len(cur)+len(added))
	i, j := 0, 0
	for i < len(cur) || j < len(added) {
		switch {
		case j == len(added):
			out = append(out, cur[i])
			i++
		case i == len(cur):
			out = appendPos(out, added[j])
			j++
		case cur[i].hash < added[j].hash:
			out = append(out, cur[i])
			i++
		case cur[i].hash > added[j].hash:
			out = appendPos(out, added[j])
			j++
		default: // collision, later insertion wins
			out = appendPos(out, added[j])
			i++
			j++
		}
	}
	return out
}

// appendPos appends p, overwriting the tail when it has the same hash
// (collisions among positions of the node being added).
func appendPos(out []position, p position) []position {
	if n := len(out); n > 0 && out[n-1].hash == p.hash {
		out[n-1] = p
		return out
	}
	return append(out, p)
}
