package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// LocalCache is the in-process L1 in front of Redis. TTLs are short so that
// several replicas converge quickly after a poll changes visibility.
type LocalCache struct {
	cache    *ristretto.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewLocalCache sizes the cache by item count: every entry costs 1.
func NewLocalCache(maxItems int64) (*LocalCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,

		// Cost is an item count, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{
		cache:    c,
		ttl:      30 * time.Second,
		emptyTTL: 10 * time.Second,
	}, nil
}

func (l *LocalCache) Get(key string) (string, bool) {
	if v, ok := l.cache.Get(key); ok {
		s, ok := v.(string)
		return s, ok
	}
	return "", false
}

func (l *LocalCache) Set(key, value string) {
	ttl := l.ttl
	if value == NotFound {
		ttl = l.emptyTTL
	}
	l.cache.SetWithTTL(key, value, 1, ttl)
}

func (l *LocalCache) Del(key string) {
	l.cache.Del(key)
}

// Wait blocks until buffered writes are applied.
func (l *LocalCache) Wait() {
	l.cache.Wait()
}

func (l *LocalCache) Close() {
	l.cache.Close()
}
