package cache

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	value     []byte
	negative  bool
	expiresAt time.Time
}

func (e entry) size() int64 {
	return int64(len(e.value))
}

// memoryTier is an LRU bounded both by entry count (enforced by the
// underlying LRU) and by total bytes (enforced here by evicting oldest
// entries until under budget).
type memoryTier struct {
	mu        sync.Mutex
	lru       *lru.Cache[string, entry]
	maxBytes  int64
	curBytes  int64
	evictions atomic.Uint64
}

func newMemoryTier(maxEntries int, maxBytes int64) *memoryTier {
	t := &memoryTier{maxBytes: maxBytes}
	// Eviction callback keeps the byte count accurate for both capacity
	// and explicit removals.
	c, _ := lru.NewWithEvict[string, entry](maxEntries, func(_ string, e entry) {
		t.curBytes -= e.size()
		t.evictions.Add(1)
	})
	t.lru = c
	return t
}

func memKey(ns, key string) string {
	return ns + "\x00" + key
}

func (t *memoryTier) get(ns, key string) (entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.lru.Get(memKey(ns, key))
	if !ok {
		return entry{}, false
	}
	if time.Now().After(e.expiresAt) {
		t.lru.Remove(memKey(ns, key))
		return entry{}, false
	}
	return e, true
}

func (t *memoryTier) set(ns, key string, e entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := memKey(ns, key)
	if old, ok := t.lru.Peek(k); ok {
		t.curBytes -= old.size()
	}
	t.lru.Add(k, e)
	t.curBytes += e.size()
	for t.curBytes > t.maxBytes && t.lru.Len() > 1 {
		t.lru.RemoveOldest()
	}
}

func (t *memoryTier) invalidate(ns, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case ns == "":
		t.lru.Purge()
	case key == "":
		prefix := ns + "\x00"
		for _, k := range t.lru.Keys() {
			if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
				t.lru.Remove(k)
			}
		}
	default:
		t.lru.Remove(memKey(ns, key))
	}
}

func (t *memoryTier) stats() (bytes int64, count int, evictions uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.curBytes, t.lru.Len(), t.evictions.Load()
}
