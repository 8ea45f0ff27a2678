// Package sloghooks reports ringcache hook events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/ringcache"
	"github.com/unkn0wn-root/ringcache/ring"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	ReplicaFailedEvery uint64
	QuorumEvery        uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	replicaCtr atomic.Uint64
	quorumCtr  atomic.Uint64
}

var _ ringcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) ReplicaFailed(op ringcache.Op, id ring.NodeID, key string, err error) {
	if h.l == nil || !sample(h.opts.ReplicaFailedEvery, &h.replicaCtr) {
		return
	}
	h.l.Warn("ringcache.replica_failed",
		"op", string(op),
		"node", string(id),
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) QuorumNotReached(key string, successes, required int) {
	if h.l == nil || !sample(h.opts.QuorumEvery, &h.quorumCtr) {
		return
	}
	h.l.Warn("ringcache.quorum_not_reached",
		"key", h.redact(key),
		"successes", successes,
		"required", required)
}

func (h *Hooks) RoutingFault(id ring.NodeID) {
	if h.l == nil {
		return
	}
	h.l.Error("ringcache.routing_fault", "node", string(id))
}

func (h *Hooks) NodeAdded(id ring.NodeID) {
	if h.l == nil {
		return
	}
	h.l.Info("ringcache.node_added", "node", string(id))
}

func (h *Hooks) NodeRemoved(id ring.NodeID) {
	if h.l == nil {
		return
	}
	h.l.Info("ringcache.node_removed", "node", string(id))
}
