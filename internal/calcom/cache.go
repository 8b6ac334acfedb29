package calcom

import (
	"sync"
	"time"

	"github.com/telecalbot/telecalbot/internal/model"
)

// cacheKey identifies one availability window.
type cacheKey struct {
	eventTypeID int
	startDate   string
	endDate     string
	timezone    string
}

type cacheEntry struct {
	fetchedAt time.Time
	snapshot  model.AvailabilitySnapshot
}

// availabilityCache is a TTL cache for availability responses. Entries
// are evicted lazily on read; a successful booking clears the whole
// cache because every cached window may have become stale.
type availabilityCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[cacheKey]cacheEntry

	now func() time.Time // overridable in tests
}

func newAvailabilityCache(ttl time.Duration) *availabilityCache {
	return &availabilityCache{
		ttl:     ttl,
		entries: make(map[cacheKey]cacheEntry),
		now:     time.Now,
	}
}

func (c *availabilityCache) get(key cacheKey) (model.AvailabilitySnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return model.AvailabilitySnapshot{}, false
	}
	if c.now().Sub(entry.fetchedAt) >= c.ttl {
		delete(c.entries, key)
		return model.AvailabilitySnapshot{}, false
	}
	return entry.snapshot, true
}

func (c *availabilityCache) put(key cacheKey, snapshot model.AvailabilitySnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{fetchedAt: c.now(), snapshot: snapshot}
}

func (c *availabilityCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]cacheEntry)
}

func (c *availabilityCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
