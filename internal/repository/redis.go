package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nathanyu/matching-engine/internal/domain"
)

// BookCache keeps the latest L2 depth of each instrument in Redis and
// announces every update on a pub/sub channel.
type BookCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewBookCache(client *redis.Client, ttl time.Duration) *BookCache {
	return &BookCache{client: client, ttl: ttl}
}

// depthKey returns the Redis key holding a symbol's depth, e.g. book:l2:AAPL.
func depthKey(symbol string) string {
	return fmt.Sprintf("book:l2:%s", symbol)
}

// DepthChannel is the pub/sub channel depth updates for symbol are published on.
func DepthChannel(symbol string) string {
	return fmt.Sprintf("book:l2:updates:%s", symbol)
}

// StoreDepth overwrites the cached depth and publishes it.
func (c *BookCache) StoreDepth(ctx context.Context, depth *domain.L2OrderBook) error {
	payload, err := json.Marshal(depth)
	if err != nil {
		return fmt.Errorf("failed to encode depth: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, depthKey(depth.Symbol), payload, c.ttl)
	pipe.Publish(ctx, DepthChannel(depth.Symbol), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store depth in redis: %w", err)
	}
	return nil
}

func (c *BookCache) Close() error {
	return c.client.Close()
}
