// Command ringcache-demo writes a batch of user records through a replicated
// ring of cache nodes and reads them back.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/ringcache"
	"github.com/unkn0wn-root/ringcache/codec"
	"github.com/unkn0wn-root/ringcache/config"
	zaplog "github.com/unkn0wn-root/ringcache/log/zap"
	"github.com/unkn0wn-root/ringcache/node"
	"github.com/unkn0wn-root/ringcache/ring"
)

type user struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func main() {
	var (
		configFile = flag.String("config", "", "cluster file (YAML/JSON); default is 4 in-process LRU nodes")
		users      = flag.Int("users", 10, "number of user records to write")
		debug      = flag.Bool("debug", false, "log at debug level")
	)
	flag.Parse()

	zl, err := newZap(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	os.Exit(finish(zl, run(context.Background(), zl, *configFile, *users)))
}

// finish logs err, flushes zl and returns the process exit code.
func finish(zl *zap.Logger, err error) int {
	code := 0
	if err != nil {
		zl.Error("demo failed", zap.Error(err))
		code = 1
	}
	_ = zl.Sync()
	return code
}

func newZap(debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func run(ctx context.Context, zl *zap.Logger, configFile string, users int) error {
	c, err := newClient(ctx, zaplog.New(zl), configFile)
	if err != nil {
		return err
	}
	defer c.Close(ctx)

	cfg := c.Config()
	zl.Info("cluster ready",
		zap.Int("nodes", c.NodeCount()),
		zap.Int("replication_factor", cfg.ReplicationFactor),
		zap.Int("write_quorum", cfg.WriteQuorum))

	tc, err := ringcache.NewTyped[user](c, codec.JSON[user]{})
	if err != nil {
		return err
	}

	start := time.Now()
	for i := 1; i <= users; i++ {
		key := fmt.Sprintf("user:%d", i)
		u := user{ID: i, Name: fmt.Sprintf("User %d", i), Email: fmt.Sprintf("user%d@example.com", i)}
		if err := tc.Set(ctx, key, u); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	zl.Info("write phase done", zap.Int("keys", users), zap.Duration("took", time.Since(start)))

	hits := 0
	for i := 1; i <= users; i++ {
		key := fmt.Sprintf("user:%d", i)
		u, ok, err := tc.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		if ok {
			hits++
		}
		zl.Debug("read", zap.String("key", key), zap.Bool("hit", ok), zap.String("name", u.Name),
			zap.Strings("replicas", ids(c.Locate(key))))
	}
	zl.Info("read phase done", zap.Int("hits", hits), zap.Int("keys", users))

	if hits != users {
		return fmt.Errorf("read back %d of %d keys", hits, users)
	}
	return nil
}

func newClient(ctx context.Context, log ringcache.Logger, configFile string) (*ringcache.Client, error) {
	if configFile != "" {
		f, err := config.LoadFile(configFile)
		if err != nil {
			return nil, err
		}
		return f.Build(ctx, config.BuildOptions{Logger: log})
	}

	c, err := ringcache.New(ringcache.Options{ReplicationFactor: 3, WriteQuorum: 2, Logger: log})
	if err != nil {
		return nil, err
	}
	for i := 1; i <= 4; i++ {
		n, err := node.NewLRU(node.Config{MaxEntries: 1000})
		if err != nil {
			return nil, err
		}
		if err := c.AddNode(ring.NodeID(fmt.Sprintf("node%d", i)), n); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func ids(in []ring.NodeID) []string {
	out := make([]string, len(in))
	for i, id := range in {
		out[i] = string(id)
	}
	return out
}
