package indexer

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// ExtractionCache memoises per-document Deltas under the key cacheKeyFor
// builds (the docid plus the raw JSON of the document's stored version, its
// merged version and the settings in force), so repeated extraction of an
// unchanged document
// (e.g. re-adding the same batch after a retry) skips tokenisation and
// facet normalisation (spec §4.3.2 step 4 "all emissions go through a
// bounded extraction cache").
type ExtractionCache struct {
	cache *lru.Cache[string, *Deltas]
}

// NewExtractionCache builds a cache bounded to capacity entries. Grounded on
// the teacher's use of `hashicorp/golang-lru/v2` for its in-memory search
// result cache, generalized here to cache extraction output instead of
// query results.
func NewExtractionCache(capacity int) (*ExtractionCache, error) {
	if capacity <= 0 {
		capacity = 1024
	}
	c, err := lru.New[string, *Deltas](capacity)
	if err != nil {
		return nil, err
	}
	return &ExtractionCache{cache: c}, nil
}

// Get returns the cached Deltas for key, if present.
func (c *ExtractionCache) Get(key string) (*Deltas, bool) {
	return c.cache.Get(key)
}

// Put stores Deltas under key, evicting the least recently used entry if
// the cache is at capacity.
func (c *ExtractionCache) Put(key string, d *Deltas) {
	c.cache.Add(key, d)
}

// Len returns the number of entries currently cached.
func (c *ExtractionCache) Len() int {
	return c.cache.Len()
}

// Purge empties the cache. Entries made under earlier settings are never
// matched again, since every key includes the settings; Purge releases
// them.
func (c *ExtractionCache) Purge() {
	c.cache.Purge()
}
