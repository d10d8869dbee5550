package pricecache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	model "auction-engine/internal/models"
)

const keyPrefix = "price:"

// RedisCache is the shared PriceCache implementation backed by a Redis hash
// per auction. Expiry is delegated to Redis via EXPIREAT, so entries vanish
// on their own once the auction end plus grace has passed.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis-backed price cache and verifies connectivity
func NewRedisCache(addr, password string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client, sharing the connection
// with other Redis-backed components.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func key(auctionID string) string {
	return keyPrefix + auctionID
}

// Get returns the cached entry for an auction
func (c *RedisCache) Get(ctx context.Context, auctionID string) (model.PriceEntry, bool, error) {
	fields, err := c.client.HGetAll(ctx, key(auctionID)).Result()
	if err != nil {
		return model.PriceEntry{}, false, fmt.Errorf("get price entry for auction %s: %w", auctionID, err)
	}
	if len(fields) == 0 {
		return model.PriceEntry{}, false, nil
	}

	amount, err := strconv.ParseFloat(fields["amount"], 64)
	if err != nil {
		return model.PriceEntry{}, false, fmt.Errorf("parse cached amount for auction %s: %w", auctionID, err)
	}

	return model.PriceEntry{Amount: amount, BidderID: fields["bidder"]}, true, nil
}

// Set writes the entry and pins its expiry to expireAt
func (c *RedisCache) Set(ctx context.Context, auctionID string, entry model.PriceEntry, expireAt time.Time) error {
	k := key(auctionID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, k,
		"amount", strconv.FormatFloat(entry.Amount, 'f', -1, 64),
		"bidder", entry.BidderID,
	)
	pipe.ExpireAt(ctx, k, expireAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set price entry for auction %s: %w", auctionID, err)
	}
	return nil
}

// Delete removes the entry for an auction
func (c *RedisCache) Delete(ctx context.Context, auctionID string) error {
	if err := c.client.Del(ctx, key(auctionID)).Err(); err != nil {
		return fmt.Errorf("delete price entry for auction %s: %w", auctionID, err)
	}
	return nil
}

// LiveAuctionIDs returns the ids of auctions that still have an entry
func (c *RedisCache) LiveAuctionIDs(ctx context.Context) ([]string, error) {
	keys, err := c.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("list live price entries: %w", err)
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, keyPrefix))
	}
	return ids, nil
}

// Close closes the underlying Redis client
func (c *RedisCache) Close() error {
	return c.client.Close()
}
