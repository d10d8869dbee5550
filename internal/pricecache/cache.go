package pricecache

import (
	"context"
	"sync"
	"time"

	model "auction-engine/internal/models"
)

// PriceCache holds the current highest (amount, bidder) per auction.
// Entries carry an absolute expiry (auction end plus a grace buffer) so a
// closed auction's entry ages out on its own. The cache is best-effort:
// callers must tolerate misses and rebuild from the bid ledger.
type PriceCache interface {
	Get(ctx context.Context, auctionID string) (model.PriceEntry, bool, error)
	Set(ctx context.Context, auctionID string, entry model.PriceEntry, expireAt time.Time) error
	Delete(ctx context.Context, auctionID string) error
	// LiveAuctionIDs lists auctions with an unexpired entry. The lifecycle
	// sweep uses it to find auctions that may need a forced finish.
	LiveAuctionIDs(ctx context.Context) ([]string, error)
	Close() error
}

type memoryEntry struct {
	entry    model.PriceEntry
	expireAt time.Time
}

// MemoryCache is a concurrency-safe in-process PriceCache. It backs tests
// and single-process deployments without Redis.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates a new in-memory price cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the cached entry for an auction; expired entries are misses
func (c *MemoryCache) Get(ctx context.Context, auctionID string) (model.PriceEntry, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[auctionID]
	c.mu.RUnlock()

	if !ok {
		return model.PriceEntry{}, false, nil
	}
	if c.now().After(e.expireAt) {
		// lazy eviction
		c.mu.Lock()
		if cur, still := c.entries[auctionID]; still && cur.expireAt.Equal(e.expireAt) {
			delete(c.entries, auctionID)
		}
		c.mu.Unlock()
		return model.PriceEntry{}, false, nil
	}
	return e.entry, true, nil
}

// Set writes the entry with an absolute expiry
func (c *MemoryCache) Set(ctx context.Context, auctionID string, entry model.PriceEntry, expireAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[auctionID] = memoryEntry{entry: entry, expireAt: expireAt}
	return nil
}

// Delete removes the entry for an auction
func (c *MemoryCache) Delete(ctx context.Context, auctionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, auctionID)
	return nil
}

// LiveAuctionIDs returns the ids of auctions with unexpired entries
func (c *MemoryCache) LiveAuctionIDs(ctx context.Context) ([]string, error) {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.entries))
	for id, e := range c.entries {
		if now.After(e.expireAt) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Close is a no-op for the in-memory cache
func (c *MemoryCache) Close() error {
	return nil
}
