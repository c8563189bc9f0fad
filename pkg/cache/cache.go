package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/mediaforge/mediaforge/pkg/processor"
)

// Entry holds one cached processing result
type Entry struct {
	Key          string
	Result       *processor.Result
	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  int64
}

// ResultCache is a content-addressed result cache with entry-count LRU
// eviction and TTL expiry on read
type ResultCache struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	capacity int
	ttl      time.Duration
	hits     uint64
	misses   uint64
}

// New creates a cache holding at most capacity entries. Entries older
// than ttl are treated as misses and removed on read; ttl <= 0 disables
// expiry.
func New(capacity int, ttl time.Duration) *ResultCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &ResultCache{
		entries:  make(map[string]*Entry),
		capacity: capacity,
		ttl:      ttl,
	}
}

// Key computes the stable content fingerprint of an input plus its
// metadata and options. encoding/json writes map keys in sorted order,
// which makes the serialized form canonical.
func Key(input []byte, metadata, options map[string]interface{}) string {
	h := sha256.New()
	h.Write(input)
	if b, err := json.Marshal(metadata); err == nil {
		h.Write(b)
	}
	if b, err := json.Marshal(options); err == nil {
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for key, if present and unexpired
func (c *ResultCache) Get(key string) (*processor.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	if c.ttl > 0 && time.Since(entry.CreatedAt) > c.ttl {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}

	entry.LastAccessed = time.Now()
	entry.AccessCount++
	c.hits++
	return entry.Result, true
}

// Put stores a result under key, evicting the least-recently-accessed
// entry when the cache is at capacity
func (c *ResultCache) Put(key string, result *processor.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.capacity {
		c.evictOldest()
	}

	now := time.Now()
	c.entries[key] = &Entry{
		Key:          key,
		Result:       result,
		CreatedAt:    now,
		LastAccessed: now,
	}
}

// evictOldest removes the entry with the oldest LastAccessed time.
// Caller holds the lock.
func (c *ResultCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.LastAccessed.Before(oldest) {
			oldestKey = key
			oldest = entry.LastAccessed
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Flush removes every entry and returns how many were dropped
func (c *ResultCache) Flush() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*Entry)
	return n
}

// Len returns the current entry count
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cumulative hit and miss counts
func (c *ResultCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
