// Package quorum fans a single operation out to a replica set and tallies the
// per-replica outcomes. Each replica call is independent: one failing or
// hanging replica never blocks or aborts the others.
package quorum

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/ringcache/ring"
)

// ReplicaFunc performs one operation against one replica.
type ReplicaFunc[T any] func(ctx context.Context, id ring.NodeID) (T, error)

// Outcome is what a single replica returned.
type Outcome[T any] struct {
	ID    ring.NodeID
	Value T
	Err   error
}

// Result is the ordered set of outcomes, index i belongs to replicas[i].
type Result[T any] []Outcome[T]

// Acks counts replicas that returned without error.
func (r Result[T]) Acks() int {
	n := 0
	for _, o := range r {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Errs returns per-replica errors annotated with the replica id.
func (r Result[T]) Errs() []error {
	var errs []error
	for _, o := range r {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("replica %s: %w", o.ID, o.Err))
		}
	}
	return errs
}

// Met reports whether at least required replicas acknowledged.
func (r Result[T]) Met(required int) bool { return r.Acks() >= required }

// Do calls fn for every replica concurrently and waits for all of them.
//
// timeout > 0 bounds each replica call: a replica that has not answered by
// then is recorded with context.DeadlineExceeded even if fn ignores ctx.
// Cancelling ctx fails every outstanding replica the same way.
func Do[T any](ctx context.Context, replicas []ring.NodeID, timeout time.Duration, fn ReplicaFunc[T]) Result[T] {
	out := make(Result[T], len(replicas))
	if len(replicas) == 0 {
		return out
	}

	var wg sync.WaitGroup
	for i, id := range replicas {
		wg.Add(1)
		go func(i int, id ring.NodeID) {
			defer wg.Done()
			out[i] = call(ctx, id, timeout, fn)
		}(i, id)
	}
	wg.Wait()
	return out
}

func call[T any](ctx context.Context, id ring.NodeID, timeout time.Duration, fn ReplicaFunc[T]) Outcome[T] {
	rctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan Outcome[T], 1) // buffered so a late replica never blocks
	go func() {
		v, err := fn(rctx, id)
		done <- Outcome[T]{ID: id, Value: v, Err: err}
	}()

	select {
	case o := <-done:
		return o
	case <-rctx.Done():
		return Outcome[T]{ID: id, Err: rctx.Err()}
	}
}
