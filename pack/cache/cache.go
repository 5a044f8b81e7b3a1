// Package cache is the two-tier pack cache: an in-memory LRU in front of an
// on-disk content-addressed store. Concurrent misses for the same key
// coalesce into one fetch via singleflight.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/gitvan/gitvan/conf"
	"github.com/gitvan/gitvan/errors"
)

// Namespace partitions cache keys by concern.
type Namespace string

const (
	NSPackInfo      Namespace = "pack-info"
	NSPackResolve   Namespace = "pack-resolve"
	NSRegistryFetch Namespace = "registry-fetch"
	NSForgePack     Namespace = "forge-pack"
)

// ErrNegativeEntry marks a cached miss. Callers treat it as "known absent"
// until the negative TTL expires.
var ErrNegativeEntry = errors.New("cache: negative entry")

// Stats reports cache effectiveness counters.
type Stats struct {
	MemoryHits  uint64 `json:"memory_hits"`
	DiskHits    uint64 `json:"disk_hits"`
	Misses      uint64 `json:"misses"`
	Sets        uint64 `json:"sets"`
	Evictions   uint64 `json:"evictions"`
	Integrity   uint64 `json:"integrity_failures"`
	MemoryBytes int64  `json:"memory_bytes"`
	MemoryCount int    `json:"memory_count"`
}

// Cache is safe for concurrent use.
type Cache struct {
	mem  *memoryTier
	disk *diskTier
	sf   singleflight.Group
	log  *zap.SugaredLogger

	defaultTTL  time.Duration
	negativeTTL time.Duration

	memHits  atomic.Uint64
	diskHits atomic.Uint64
	misses   atomic.Uint64
	sets     atomic.Uint64
	integ    atomic.Uint64

	compactOnce sync.Once
	stopOnce    sync.Once
	compactStop chan struct{}
}

// New creates a cache from configuration. The disk tier lives under
// cfg.Cache.Dir; pass "" to disable it (memory only, used by some tests).
func New(cfg *conf.Config, log *zap.SugaredLogger) (*Cache, error) {
	c := &Cache{
		mem:         newMemoryTier(cfg.Cache.MemoryMaxEntries, cfg.Cache.MemoryMaxBytes),
		log:         log.Named("cache"),
		defaultTTL:  time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		negativeTTL: time.Duration(cfg.Cache.NegativeTTLSeconds) * time.Second,
		compactStop: make(chan struct{}),
	}
	if cfg.Cache.Dir != "" {
		disk, err := newDiskTier(cfg.Cache.Dir, cfg.Cache.CompressThreshold)
		if err != nil {
			return nil, err
		}
		c.disk = disk
	}
	return c, nil
}

// Get returns the cached value for (ns, key). A disk hit is promoted into
// the memory tier. ErrNegativeEntry is returned for cached misses.
func (c *Cache) Get(ns Namespace, key string) ([]byte, bool, error) {
	if e, ok := c.mem.get(string(ns), key); ok {
		c.memHits.Add(1)
		if e.negative {
			return nil, true, ErrNegativeEntry
		}
		return e.value, true, nil
	}

	if c.disk != nil {
		value, expires, err := c.disk.get(string(ns), key)
		if err != nil {
			if errors.Is(err, errIntegrity) {
				c.integ.Add(1)
				c.log.Warnw("cache integrity mismatch, entry dropped", "ns", ns, "key", key)
				return nil, false, err
			}
			return nil, false, err
		}
		if value != nil {
			c.diskHits.Add(1)
			c.mem.set(string(ns), key, entry{value: value, expiresAt: expires})
			return value, true, nil
		}
	}

	c.misses.Add(1)
	return nil, false, nil
}

// Set stores a value in both tiers. ttl <= 0 uses the default TTL.
func (c *Cache) Set(ns Namespace, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	expires := time.Now().Add(ttl)
	c.sets.Add(1)
	c.mem.set(string(ns), key, entry{value: value, expiresAt: expires})
	if c.disk != nil {
		return c.disk.set(string(ns), key, value, expires)
	}
	return nil
}

// SetNegative records a short-lived "known absent" marker for the key.
func (c *Cache) SetNegative(ns Namespace, key string) {
	c.mem.set(string(ns), key, entry{negative: true, expiresAt: time.Now().Add(c.negativeTTL)})
}

// GetOrFetch returns the cached value or runs fetch exactly once per key
// across concurrent callers. Fetch errors are cached negatively when
// markNegative is true.
func (c *Cache) GetOrFetch(ctx context.Context, ns Namespace, key string, markNegative bool, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if value, ok, err := c.Get(ns, key); ok {
		if err != nil {
			return nil, err
		}
		return value, nil
	}

	v, err, _ := c.sf.Do(string(ns)+"\x00"+key, func() (any, error) {
		// Another flight may have filled the cache meanwhile.
		if value, ok, err := c.Get(ns, key); ok && err == nil {
			return value, nil
		}
		value, err := fetch(ctx)
		if err != nil {
			if markNegative {
				c.SetNegative(ns, key)
			}
			return nil, err
		}
		if err := c.Set(ns, key, value, 0); err != nil {
			c.log.Warnw("cache write failed", "ns", ns, "key", key, "error", err)
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate drops entries. Empty ns clears everything; empty key clears a
// namespace.
func (c *Cache) Invalidate(ns Namespace, key string) error {
	c.mem.invalidate(string(ns), key)
	if c.disk != nil {
		return c.disk.invalidate(string(ns), key)
	}
	return nil
}

// Warmup loads the given disk entries into the memory tier.
func (c *Cache) Warmup(pairs []struct {
	NS  Namespace
	Key string
}) {
	for _, p := range pairs {
		_, _, _ = c.Get(p.NS, p.Key) // promotion happens in Get
	}
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	bytes, count, evictions := c.mem.stats()
	return Stats{
		MemoryHits:  c.memHits.Load(),
		DiskHits:    c.diskHits.Load(),
		Misses:      c.misses.Load(),
		Sets:        c.sets.Load(),
		Evictions:   evictions,
		Integrity:   c.integ.Load(),
		MemoryBytes: bytes,
		MemoryCount: count,
	}
}

// StartCompaction launches the background loop that reclaims expired disk
// entries. Safe to call once; Stop ends it.
func (c *Cache) StartCompaction(interval time.Duration) {
	if c.disk == nil {
		return
	}
	c.compactOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-c.compactStop:
					return
				case <-ticker.C:
					if n, err := c.disk.compact(); err != nil {
						c.log.Warnw("cache compaction failed", "error", err)
					} else if n > 0 {
						c.log.Debugw("cache compacted", "reclaimed", n)
					}
				}
			}
		}()
	})
}

// Stop ends background compaction. Safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.compactStop) })
}
