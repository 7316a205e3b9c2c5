// Package cache holds recently scraped case pages so a case's details and
// its order listing can be read from one detail-source call.
package cache

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/JustJay7/court-case-monitor/internal/database"
)

// Snapshot is one detail-source response for a case.
type Snapshot struct {
	Details   *database.CaseDetails      `json:"details"`
	Orders    []database.DiscoveredOrder `json:"orders"`
	Raw       string                     `json:"-"`
	FetchedAt time.Time                  `json:"fetched_at"`
}

type Cache interface {
	Get(cnr string) (*Snapshot, bool)
	Set(cnr string, value *Snapshot)
	Delete(cnr string)
	Clear()
	Stats() Stats
}

type Stats struct {
	Hits       int64     `json:"hits"`
	Misses     int64     `json:"misses"`
	Size       int       `json:"size"`
	LastAccess time.Time `json:"last_access"`
}

// SnapshotCache is a size-bounded go-cache. When full, the entry closest to
// expiry is evicted first.
type SnapshotCache struct {
	cache   *cache.Cache
	mu      sync.RWMutex
	stats   Stats
	maxSize int
}

func NewCache(maxSize int, ttl time.Duration) Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &SnapshotCache{
		cache:   cache.New(ttl, ttl*2),
		maxSize: maxSize,
	}
}

func Key(cnr string) string {
	return "case:" + cnr
}

func (c *SnapshotCache) Get(cnr string) (*Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.LastAccess = time.Now()

	if data, found := c.cache.Get(Key(cnr)); found {
		if snap, ok := data.(*Snapshot); ok {
			c.stats.Hits++
			return snap, true
		}
	}

	c.stats.Misses++
	return nil, false
}

func (c *SnapshotCache) Set(cnr string, value *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cache.Get(Key(cnr)); !exists && c.cache.ItemCount() >= c.maxSize {
		c.removeOldest()
	}

	c.cache.Set(Key(cnr), value, cache.DefaultExpiration)
}

func (c *SnapshotCache) Delete(cnr string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Delete(Key(cnr))
}

func (c *SnapshotCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Flush()
	c.stats = Stats{}
}

func (c *SnapshotCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.stats
	s.Size = c.cache.ItemCount()
	return s
}

func (c *SnapshotCache) removeOldest() {
	var oldestKey string
	var oldest int64

	for key, item := range c.cache.Items() {
		if oldestKey == "" || item.Expiration < oldest {
			oldestKey = key
			oldest = item.Expiration
		}
	}

	if oldestKey != "" {
		c.cache.Delete(oldestKey)
	}
}
