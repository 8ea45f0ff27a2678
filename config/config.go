// Package config describes a ringcache cluster in YAML or JSON and builds a
// ready *ringcache.Client from it.
//
//	replication_factor: 3
//	write_quorum: 2
//	replica_timeout: 200ms
//	nodes:
//	  - id: node1
//	    backend: lru
//	    max_entries: 10000
//	    default_ttl: 5m
//	  - id: node2
//	    backend: redis
//	    addr: 127.0.0.1:6379
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/ringcache"
	"github.com/unkn0wn-root/ringcache/node"
	"github.com/unkn0wn-root/ringcache/provider"
	"github.com/unkn0wn-root/ringcache/provider/bigcache"
	"github.com/unkn0wn-root/ringcache/provider/redis"
	"github.com/unkn0wn-root/ringcache/provider/ristretto"
	"github.com/unkn0wn-root/ringcache/ring"
)

// Backend names accepted in NodeConfig.Backend.
const (
	BackendLRU       = "lru"
	BackendRistretto = "ristretto"
	BackendBigCache  = "bigcache"
	BackendRedis     = "redis"
)

// File is the on-disk cluster description.
type File struct {
	ReplicationFactor int          `yaml:"replication_factor" json:"replication_factor"`
	WriteQuorum       int          `yaml:"write_quorum" json:"write_quorum"`
	VirtualNodes      int          `yaml:"virtual_nodes" json:"virtual_nodes"`
	ReplicaTimeout    string       `yaml:"replica_timeout" json:"replica_timeout"`
	Nodes             []NodeConfig `yaml:"nodes" json:"nodes"`
}

// NodeConfig describes one cache node. Fields not used by Backend are ignored.
type NodeConfig struct {
	ID      string `yaml:"id" json:"id"`
	Backend string `yaml:"backend" json:"backend"` // empty => lru

	DefaultTTL string `yaml:"default_ttl" json:"default_ttl"`

	// lru
	MaxEntries      int    `yaml:"max_entries" json:"max_entries"`
	CleanupInterval string `yaml:"cleanup_interval" json:"cleanup_interval"`

	// ristretto
	MaxCost int64 `yaml:"max_cost" json:"max_cost"`

	// bigcache
	LifeWindow  string `yaml:"life_window" json:"life_window"`
	Shards      int    `yaml:"shards" json:"shards"`
	MaxSizeMB   int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxEntrySz  int    `yaml:"max_entry_size" json:"max_entry_size"`
	CleanWindow string `yaml:"clean_window" json:"clean_window"`

	// redis
	Addr        string `yaml:"addr" json:"addr"`
	DB          int    `yaml:"db" json:"db"`
	Prefix      string `yaml:"prefix" json:"prefix"`
	DialTimeout string `yaml:"dial_timeout" json:"dial_timeout"`

	// health gate for provider-backed nodes
	FailureThreshold int    `yaml:"failure_threshold" json:"failure_threshold"`
	Cooldown         string `yaml:"cooldown" json:"cooldown"`
}

// LoadFile reads a .yaml, .yml or .json file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".json":
		return ParseJSON(data)
	default:
		return nil, fmt.Errorf("config: unsupported format %q", ext)
	}
}

func ParseYAML(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	return &f, nil
}

func ParseJSON(data []byte) (*File, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse json: %w", err)
	}
	return &f, nil
}

// Validate checks the description without allocating any node.
func (f *File) Validate() error {
	var errs []error
	if f.ReplicationFactor < 0 || f.WriteQuorum < 0 || f.VirtualNodes < 0 {
		errs = append(errs, errors.New("replication_factor, write_quorum and virtual_nodes must be non-negative"))
	}
	if _, err := duration("replica_timeout", f.ReplicaTimeout); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]struct{}, len(f.Nodes))
	for i, n := range f.Nodes {
		if n.ID == "" {
			errs = append(errs, fmt.Errorf("nodes[%d]: id is required", i))
		} else if _, dup := seen[n.ID]; dup {
			errs = append(errs, fmt.Errorf("nodes[%d]: duplicate id %q", i, n.ID))
		}
		seen[n.ID] = struct{}{}
		if err := n.validate(); err != nil {
			errs = append(errs, fmt.Errorf("nodes[%d] (%s): %w", i, n.ID, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ringcache.ErrInvalidOptions, errors.Join(errs...))
}

func (n NodeConfig) validate() error {
	for name, v := range map[string]string{
		"default_ttl":      n.DefaultTTL,
		"cleanup_interval": n.CleanupInterval,
		"life_window":      n.LifeWindow,
		"clean_window":     n.CleanWindow,
		"dial_timeout":     n.DialTimeout,
		"cooldown":         n.Cooldown,
	} {
		if _, err := duration(name, v); err != nil {
			return err
		}
	}
	if n.MaxEntries < 0 || n.MaxCost < 0 || n.Shards < 0 || n.FailureThreshold < 0 {
		return errors.New("numeric settings must be non-negative")
	}
	switch n.backend() {
	case BackendLRU, BackendRistretto:
	case BackendBigCache:
		if n.LifeWindow == "" {
			return errors.New("bigcache requires life_window")
		}
	case BackendRedis:
		if n.Addr == "" {
			return errors.New("redis requires addr")
		}
	default:
		return fmt.Errorf("unknown backend %q", n.Backend)
	}
	return nil
}

func (n NodeConfig) backend() string {
	if n.Backend == "" {
		return BackendLRU
	}
	return strings.ToLower(n.Backend)
}

// Options converts the cluster settings to client options.
func (f *File) Options() (ringcache.Options, error) {
	timeout, err := duration("replica_timeout", f.ReplicaTimeout)
	if err != nil {
		return ringcache.Options{}, err
	}
	return ringcache.Options{
		ReplicationFactor: f.ReplicationFactor,
		WriteQuorum:       f.WriteQuorum,
		VirtualNodes:      f.VirtualNodes,
		ReplicaTimeout:    timeout,
	}, nil
}

// BuildOptions carry runtime dependencies that files cannot express.
type BuildOptions struct {
	Logger ringcache.Logger
	Hooks  ringcache.Hooks
}

// Build validates f, opens every node and registers it on a new client.
// On error every node opened so far is closed.
func (f *File) Build(ctx context.Context, bo BuildOptions) (*ringcache.Client, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	opts, err := f.Options()
	if err != nil {
		return nil, err
	}
	opts.Logger = bo.Logger
	opts.Hooks = bo.Hooks

	c, err := ringcache.New(opts)
	if err != nil {
		return nil, err
	}
	for _, nc := range f.Nodes {
		n, err := nc.Open()
		if err == nil {
			err = c.AddNode(ring.NodeID(nc.ID), n)
		}
		if err != nil {
			return nil, errors.Join(fmt.Errorf("config: node %s: %w", nc.ID, err), c.Close(ctx))
		}
	}
	return c, nil
}

// Open creates the node described by n.
func (n NodeConfig) Open() (node.Node, error) {
	ttl, err := duration("default_ttl", n.DefaultTTL)
	if err != nil {
		return nil, err
	}

	var p provider.Provider
	switch n.backend() {
	case BackendLRU:
		cleanup, err := duration("cleanup_interval", n.CleanupInterval)
		if err != nil {
			return nil, err
		}
		return node.NewLRU(node.Config{MaxEntries: n.MaxEntries, DefaultTTL: ttl, CleanupInterval: cleanup})

	case BackendRistretto:
		rc := ristretto.DefaultConfig(int64(maxOr(n.MaxEntries, node.DefaultMaxEntries)))
		if n.MaxCost > 0 {
			rc.MaxCost = n.MaxCost
		}
		p, err = ristretto.New(rc)

	case BackendBigCache:
		life, _ := duration("life_window", n.LifeWindow)
		clean, _ := duration("clean_window", n.CleanWindow)
		p, err = bigcache.New(bigcache.Config{
			LifeWindow:         life,
			CleanWindow:        clean,
			Shards:             n.Shards,
			MaxEntriesInWindow: n.MaxEntries,
			MaxEntrySize:       n.MaxEntrySz,
			HardMaxCacheSizeMB: n.MaxSizeMB,
		})

	case BackendRedis:
		dial, _ := duration("dial_timeout", n.DialTimeout)
		p, err = redis.Dial(n.Addr, n.DB, dial, n.Prefix)

	default:
		return nil, fmt.Errorf("unknown backend %q", n.Backend)
	}
	if err != nil {
		return nil, err
	}

	cooldown, _ := duration("cooldown", n.Cooldown)
	pn, err := provider.NewNode(p, provider.NodeConfig{
		Name:             n.ID,
		DefaultTTL:       ttl,
		FailureThreshold: n.FailureThreshold,
		Cooldown:         cooldown,
		Cost:             costFor(n),
	})
	if err != nil {
		_ = p.Close(context.Background())
		return nil, err
	}
	return pn, nil
}

// costFor charges ristretto one unit per entry when only max_entries bounds
// it; an explicit max_cost is a byte budget charged by value size.
func costFor(n NodeConfig) func(string, []byte) int64 {
	if n.backend() == BackendRistretto && n.MaxCost == 0 {
		return func(string, []byte) int64 { return 1 }
	}
	return nil
}

func duration(name, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration %s", name, s)
	}
	return d, nil
}

func maxOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
