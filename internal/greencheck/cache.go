package greencheck

import (
	"time"

	"github.com/bluele/gcache"
)

const (
	defaultMemoryCacheSize = 10000
	defaultMemoryCacheTTL  = 10 * time.Minute
)

// memoryCache is the in-process tier in front of the green domain table.
type memoryCache struct {
	cache gcache.Cache
}

func newMemoryCache(size int, ttl time.Duration) *memoryCache {
	if size <= 0 {
		size = defaultMemoryCacheSize
	}
	if ttl <= 0 {
		ttl = defaultMemoryCacheTTL
	}
	return &memoryCache{
		cache: gcache.New(size).LRU().Expiration(ttl).Build(),
	}
}

func (c *memoryCache) get(key string) (Result, bool) {
	value, err := c.cache.Get(key)
	if err != nil {
		return Result{}, false
	}
	result, ok := value.(Result)
	return result, ok
}

func (c *memoryCache) set(key string, result Result) {
	_ = c.cache.Set(key, result)
}

func (c *memoryCache) remove(key string) {
	c.cache.Remove(key)
}

func (c *memoryCache) purge() {
	c.cache.Purge()
}
