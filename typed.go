package ringcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/ringcache/codec"
)

// Typed layers a Codec over a Cache so callers work with values instead of bytes.
//
// A replica value that fails to decode is treated as corruption: Typed deletes
// the key and reports a miss.
type Typed[V any] struct {
	c     Cache
	codec codec.Codec[V]
}

// NewTyped binds cd to c.
func NewTyped[V any](c Cache, cd codec.Codec[V]) (*Typed[V], error) {
	if c == nil || cd == nil {
		return nil, fmt.Errorf("%w: cache and codec are required", ErrInvalidOptions)
	}
	return &Typed[V]{c: c, codec: cd}, nil
}

// Cache returns the underlying byte cache.
func (t *Typed[V]) Cache() Cache { return t.c }

func (t *Typed[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	b, ok, err := t.c.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := t.codec.Decode(b)
	if err != nil {
		// self-heal
		_, _ = t.c.Delete(ctx, key)
		return zero, false, nil
	}
	return v, true, nil
}

// Fetch is Get with a miss reported as *KeyError.
func (t *Typed[V]) Fetch(ctx context.Context, key string) (V, error) {
	v, ok, err := t.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, &KeyError{Key: key}
	}
	return v, nil
}

func (t *Typed[V]) Set(ctx context.Context, key string, value V) error {
	b, err := t.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("ringcache: encode %q: %w", key, err)
	}
	return t.c.Set(ctx, key, b)
}

func (t *Typed[V]) SetWithTTL(ctx context.Context, key string, value V, ttl time.Duration) error {
	b, err := t.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("ringcache: encode %q: %w", key, err)
	}
	return t.c.SetWithTTL(ctx, key, b, ttl)
}

func (t *Typed[V]) Delete(ctx context.Context, key string) (bool, error) {
	return t.c.Delete(ctx, key)
}

func (t *Typed[V]) Exists(ctx context.Context, key string) (bool, error) {
	return t.c.Exists(ctx, key)
}

// GetOrLoad returns the cached value for key, or calls load on a miss and
// caches its result without expiry. A failed write after a
// successful load is returned alongside the loaded value.
func (t *Typed[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	v, ok, err := t.Get(ctx, key)
	if err == nil && ok {
		return v, nil
	}
	if err != nil && !errors.Is(err, ErrNodeUnhealthy) && !errors.Is(err, ErrConnectionFailed) {
		return v, err
	}
	v, err = load(ctx)
	if err != nil {
		return v, err
	}
	return v, t.Set(ctx, key, v)
}
