package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"pollqr.local/internal/app/pollqr/render"
	"pollqr.local/internal/platform/metrics"
)

const DefaultQRCacheSize = 1000

// Entry is one rendered code plus what is needed to judge its freshness.
type Entry struct {
	Value         render.RenderedQR
	Private       bool
	CreatedAt     time.Time
	LinkExpiresAt time.Time // zero for public links
}

// Fresh reports whether the entry is younger than window and, for signed
// links, whether the embedded link is still valid at now.
func (e Entry) Fresh(now time.Time, window time.Duration) bool {
	if now.Sub(e.CreatedAt) >= window {
		return false
	}
	if !e.LinkExpiresAt.IsZero() && !now.Before(e.LinkExpiresAt) {
		return false
	}
	return true
}

// Key composes the cache key for a poll rendered for host.
func Key(pollID, host string) string {
	return "qr-" + pollID + "-" + host
}

// QRCache is a fixed-size LRU of rendered codes. It never expires entries on
// its own; staleness is decided by the reader via Entry.Fresh.
type QRCache struct {
	lru *lru.Cache[string, Entry]
}

func NewQRCache(size int) (*QRCache, error) {
	if size <= 0 {
		size = DefaultQRCacheSize
	}
	l, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, err
	}
	return &QRCache{lru: l}, nil
}

// Get returns the entry and marks it most recently used.
func (c *QRCache) Get(key string) (Entry, bool) {
	return c.lru.Get(key)
}

// Set inserts or replaces key, evicting the least recently used entry when full.
func (c *QRCache) Set(key string, e Entry) {
	// Add reports only capacity evictions; Remove and Purge are not counted.
	if evicted := c.lru.Add(key, e); evicted {
		metrics.CacheOperations.WithLabelValues("qr", "evict").Inc()
	}
	metrics.QRCacheEntries.Set(float64(c.lru.Len()))
}

// Delete removes key and reports whether it was present.
func (c *QRCache) Delete(key string) bool {
	ok := c.lru.Remove(key)
	metrics.QRCacheEntries.Set(float64(c.lru.Len()))
	return ok
}

func (c *QRCache) Clear() {
	c.lru.Purge()
	metrics.QRCacheEntries.Set(0)
}

func (c *QRCache) Len() int {
	return c.lru.Len()
}
