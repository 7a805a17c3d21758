package service

import (
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/config"
	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/model"
)

// HashText computes the non-cryptographic cache key for a document's text.
func HashText(text string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(text))
	return h.Sum64()
}

type cacheEntry struct {
	result   *model.ExtractionResult
	storedAt time.Time
}

// ExtractionCache memoizes validated extraction results by text hash. It is
// bounded both by entry count (oldest evicted first) and by TTL, so a stale
// or fallback entry ages out instead of living for the process lifetime.
type ExtractionCache struct {
	mu         sync.RWMutex
	entries    map[uint64]cacheEntry
	maxEntries int
	ttl        time.Duration
}

// NewExtractionCache builds a cache from configuration.
func NewExtractionCache(cfg *config.CacheConfig) *ExtractionCache {
	return &ExtractionCache{
		entries:    make(map[uint64]cacheEntry),
		maxEntries: cfg.MaxEntries,
		ttl:        time.Duration(cfg.TTLMinutes) * time.Minute,
	}
}

// Get returns the cached result for key, or nil if absent or expired.
func (c *ExtractionCache) Get(key uint64) *model.ExtractionResult {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil
	}
	if c.ttl > 0 && time.Since(entry.storedAt) > c.ttl {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil
	}

	// Deep copy: a shallow copy would share line items and numeric pointers,
	// letting a caller corrupt the cached entry.
	return entry.result.Clone()
}

// Put stores a result under key, evicting the oldest entries past the bound.
func (c *ExtractionCache) Put(key uint64, result *model.ExtractionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{result: result.Clone(), storedAt: time.Now()}
	c.cleanupIfNeeded()
}

// Count returns the number of cached entries.
func (c *ExtractionCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cleanupIfNeeded removes oldest entries if the cache exceeds maxEntries.
// Must be called with lock held.
func (c *ExtractionCache) cleanupIfNeeded() {
	if c.maxEntries <= 0 {
		return // Unlimited
	}

	if len(c.entries) <= c.maxEntries {
		return
	}

	type keyed struct {
		key      uint64
		storedAt time.Time
	}
	all := make([]keyed, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, keyed{key: k, storedAt: e.storedAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].storedAt.Before(all[j].storedAt)
	})

	removeCount := len(all) - c.maxEntries
	for i := 0; i < removeCount; i++ {
		slog.Debug("evicting cached extraction",
			"text_hash", all[i].key,
			"stored_at", all[i].storedAt,
		)
		delete(c.entries, all[i].key)
	}
}
