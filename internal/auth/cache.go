package auth

import (
	"hash/fnv"
	"sync"
)

const cacheShards = 32

// Cache maps a stored password hash to the fast digest of the plaintext last
// verified against it. Entries are created only after a successful slow check,
// so the cache never admits a credential that bcrypt would not have. Growth is
// unbounded; the key space is bounded by the number of accounts.
//
// The map is sharded so concurrent verifications of unrelated accounts never
// contend on one lock.
type Cache struct {
	shards [cacheShards]cacheShard
}

type cacheShard struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewCache returns an empty verification cache. Each test and each process
// owns its instance; there is no package-level cache.
func NewCache() *Cache {
	c := &Cache{}
	for i := range c.shards {
		c.shards[i].entries = make(map[string][]byte)
	}
	return c
}

func (c *Cache) shard(hashKey string) *cacheShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(hashKey))
	return &c.shards[h.Sum32()%cacheShards]
}

// Get returns the cached fast digest for a stored hash, if present.
func (c *Cache) Get(hashKey string) ([]byte, bool) {
	s := c.shard(hashKey)
	s.mu.RLock()
	digest, ok := s.entries[hashKey]
	s.mu.RUnlock()
	return digest, ok
}

// Put records the fast digest for a stored hash, overwriting any previous
// entry. Overwrites are idempotent: a racing Put for the same hash carries a
// digest derived from the same plaintext.
func (c *Cache) Put(hashKey string, digest []byte) {
	s := c.shard(hashKey)
	s.mu.Lock()
	s.entries[hashKey] = digest
	s.mu.Unlock()
}

// Evict removes the entry for a stored hash. No-op when absent.
func (c *Cache) Evict(hashKey string) {
	s := c.shard(hashKey)
	s.mu.Lock()
	delete(s.entries, hashKey)
	s.mu.Unlock()
}

// Len returns the number of cached entries across all shards.
func (c *Cache) Len() int {
	n := 0
	for i := range c.shards {
		c.shards[i].mu.RLock()
		n += len(c.shards[i].entries)
		c.shards[i].mu.RUnlock()
	}
	return n
}
