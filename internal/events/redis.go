package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	model "auction-engine/internal/models"
	"auction-engine/utils"
)

// RedisBus carries auction events over Redis Pub/Sub so every process in the
// deployment observes the same stream. Delivery is best-effort, matching the
// pipeline contract: the durable stores remain the source of truth.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus creates a Redis-backed event bus and verifies connectivity
func NewRedisBus(addr, password string) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBus{client: client}, nil
}

// NewRedisBusFromClient wraps an existing client, sharing the connection
// with other Redis-backed components.
func NewRedisBusFromClient(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

// Publish marshals the event and publishes it on the named channel
func (b *RedisBus) Publish(ctx context.Context, channel string, ev model.AuctionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event for channel %s: %w", channel, err)
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish on channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe pattern-subscribes to every auction channel and adapts the
// Redis message stream to bus Messages. Messages that fail to decode are
// logged and dropped.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Message, func()) {
	pubsub := b.client.PSubscribe(ctx, SubscribePattern)
	out := make(chan Message, 128)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev model.AuctionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				utils.Warn("dropping undecodable bus message", map[string]any{
					"channel": msg.Channel,
					"error":   err.Error(),
				})
				continue
			}
			select {
			case out <- Message{Channel: msg.Channel, Event: ev}:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		if err := pubsub.Close(); err != nil {
			utils.Warn("closing redis subscription", map[string]any{"error": err.Error()})
		}
	}
	return out, cancel
}

// Close closes the underlying Redis client
func (b *RedisBus) Close() error {
	return b.client.Close()
}
