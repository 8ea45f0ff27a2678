// Package redis backs a node with a Redis server over go-redis.
//
// It is the networked node implementation: transport failures surface as
// *node.ConnError so callers can match node.ErrConnectionFailed, while
// server-side replies (redis.Error) pass through unchanged.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/ringcache/node"
	pr "github.com/unkn0wn-root/ringcache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

type Redis struct {
	rdb         goredis.UniversalClient
	addr        string
	prefix      string
	closeClient bool
}

var _ pr.Provider = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this provider exclusively owns the client

	// Prefix is prepended to every key, letting several nodes share one server.
	Prefix string

	// Addr labels connection errors; defaults to the client's address when known.
	Addr string
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	addr := cfg.Addr
	if addr == "" {
		if c, ok := cfg.Client.(*goredis.Client); ok {
			addr = c.Options().Addr
		}
	}
	return &Redis{rdb: cfg.Client, addr: addr, prefix: cfg.Prefix, closeClient: cfg.CloseClient}, nil
}

// Dial creates a provider that owns a fresh single-node client for addr.
func Dial(addr string, db int, dialTimeout time.Duration, prefix string) (*Redis, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DB:          db,
		DialTimeout: dialTimeout,
		MaxRetries:  -1, // replica fan-out decides; no silent retries
	})
	return New(Config{Client: rdb, CloseClient: true, Prefix: prefix, Addr: addr})
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, p.prefix+key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, p.classify(err)
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 0 // treat non-positive TTLs as "no expiry" per provider contract
	}
	if err := p.rdb.Set(ctx, p.prefix+key, value, ttl).Err(); err != nil {
		return false, p.classify(err)
	}
	return true, nil
}

func (p *Redis) Del(ctx context.Context, key string) (bool, error) {
	n, err := p.rdb.Del(ctx, p.prefix+key).Result()
	if err != nil {
		return false, p.classify(err)
	}
	return n > 0, nil
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

// classify keeps server replies and caller cancellation as-is and marks
// everything else as a connection failure.
func (p *Redis) classify(err error) error {
	var rerr goredis.Error
	if errors.As(err, &rerr) || errors.Is(err, context.Canceled) {
		return err
	}
	return &node.ConnError{Addr: p.addr, Err: err}
}
