package cache

import (
	"context"
	"sync"
	"time"

	appexchange "github.com/kambio/backend/internal/application/exchange"
	"github.com/kambio/backend/internal/domain/exchange"
)

// rateEntry holds a cached rate with expiration
type rateEntry struct {
	rate      exchange.ExchangeRate
	expiresAt time.Time
}

// MemoryRateCache is a process-local rate cache. Suitable for a single
// instance; multi-instance deployments should prefer RedisRateCache so
// all quoters see the same cached rate.
type MemoryRateCache struct {
	mu      sync.RWMutex
	entries map[string]rateEntry
}

// NewMemoryRateCache creates a new in-memory rate cache
func NewMemoryRateCache() *MemoryRateCache {
	return &MemoryRateCache{entries: make(map[string]rateEntry)}
}

// Get returns the cached rate for the key if present and fresh
func (c *MemoryRateCache) Get(ctx context.Context, key string) (*exchange.ExchangeRate, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	rate := e.rate
	return &rate, true
}

// Set caches the rate under the key for the TTL
func (c *MemoryRateCache) Set(ctx context.Context, key string, rate *exchange.ExchangeRate, ttl time.Duration) {
	if rate == nil || ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = rateEntry{rate: *rate, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Delete drops the cached rate for the key
func (c *MemoryRateCache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

var _ appexchange.RateCache = (*MemoryRateCache)(nil)
