package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/wagerbook/internal/domain"
	"golang.org/x/time/rate"
)

// MarketCache implements domain.MarketCache with a map.
type MarketCache struct {
	mu      sync.RWMutex
	markets map[string]domain.Market
}

// NewMarketCache creates an empty MarketCache.
func NewMarketCache() *MarketCache {
	return &MarketCache{markets: make(map[string]domain.Market)}
}

func (c *MarketCache) Set(_ context.Context, m domain.Market) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Never replace a newer snapshot with an older one.
	if cur, ok := c.markets[m.ID]; ok && cur.Version > m.Version {
		return nil
	}
	c.markets[m.ID] = m
	return nil
}

func (c *MarketCache) Get(_ context.Context, id string) (domain.Market, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *MarketCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.markets, id)
	return nil
}

// FeedStore implements domain.FeedSource in memory.
type FeedStore struct {
	mu       sync.RWMutex
	readings map[string]domain.OracleReading
}

// NewFeedStore creates an empty FeedStore.
func NewFeedStore() *FeedStore {
	return &FeedStore{readings: make(map[string]domain.OracleReading)}
}

// Latest returns the most recent reading published for feedID.
func (f *FeedStore) Latest(_ context.Context, feedID string) (domain.OracleReading, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	r, ok := f.readings[feedID]
	if !ok {
		return domain.OracleReading{}, domain.ErrNotFound
	}
	return r, nil
}

// Publish stores reading unless a newer one is already held.
func (f *FeedStore) Publish(_ context.Context, reading domain.OracleReading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.readings[reading.FeedID]; ok && cur.Timestamp.After(reading.Timestamp) {
		return nil
	}
	f.readings[reading.FeedID] = reading
	return nil
}

// RateLimiter implements domain.RateLimiter with one token bucket per key.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter creates an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{limiters: make(map[string]*rate.Limiter)}
}

// Allow reports whether key may make another request. The bucket refills
// at limit per window with a burst of limit.
func (r *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), limit)
		r.limiters[key] = l
	}
	r.mu.Unlock()
	return l.Allow(), nil
}

var (
	_ domain.MarketCache = (*MarketCache)(nil)
	_ domain.FeedSource  = (*FeedStore)(nil)
	_ domain.RateLimiter = (*RateLimiter)(nil)
)
