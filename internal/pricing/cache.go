package pricing

import (
	"sync"
	"time"
)

// CurrentPriceCache is the process-scoped short-TTL cache for current prices.
// Zero prices are cached too, so a failing source is not hammered within the
// TTL window. Writes are idempotent (same token resolves to the same value
// within a window), so concurrent access races only cost redundant fetches.
type CurrentPriceCache struct {
	mu      sync.RWMutex
	entries map[string]currentEntry
	ttl     time.Duration
	now     func() time.Time
}

type currentEntry struct {
	price    float64
	cachedAt time.Time
}

// NewCurrentPriceCache creates a current-price cache with the given TTL
func NewCurrentPriceCache(ttl time.Duration) *CurrentPriceCache {
	return &CurrentPriceCache{
		entries: make(map[string]currentEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached price for a token if the entry is still fresh
func (c *CurrentPriceCache) Get(token string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[token]
	if !ok || c.now().Sub(entry.cachedAt) >= c.ttl {
		return 0, false
	}
	return entry.price, true
}

// Set stores a price for a token, resetting its TTL
func (c *CurrentPriceCache) Set(token string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[token] = currentEntry{price: price, cachedAt: c.now()}
}

// HistoricalPriceCache is the process-scoped cache for dated prices. Entries
// never expire: a historical price for a past date does not change. Only
// authoritative prices are stored here; fallback resolutions are deliberately
// not cached so a later authoritative fetch for the same date can still win.
type HistoricalPriceCache struct {
	mu      sync.RWMutex
	entries map[string]float64
}

// NewHistoricalPriceCache creates an empty historical price cache
func NewHistoricalPriceCache() *HistoricalPriceCache {
	return &HistoricalPriceCache{entries: make(map[string]float64)}
}

func historicalKey(token, date string) string {
	return token + ":" + date
}

// Get returns the cached price for a token+date
func (c *HistoricalPriceCache) Get(token, date string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.entries[historicalKey(token, date)]
	return price, ok
}

// Set stores a price for a token+date
func (c *HistoricalPriceCache) Set(token, date string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[historicalKey(token, date)] = price
}
