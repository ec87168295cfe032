package repository

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanyu/matching-engine/internal/domain"
)

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestBookCache_StoreDepth(t *testing.T) {
	cache := NewBookCache(redisClient(t), time.Minute)
	defer cache.Close()
	ctx := context.Background()

	sub := cache.client.Subscribe(ctx, DepthChannel("TESTSYM"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	depth := &domain.L2OrderBook{
		Symbol: "TESTSYM",
		Bids:   []domain.PriceLevel{{Price: decimal.RequireFromString("10.5"), Quantity: 30, Orders: 2}},
		Asks:   []domain.PriceLevel{},
	}
	require.NoError(t, cache.StoreDepth(ctx, depth))

	payload, err := cache.client.Get(ctx, depthKey("TESTSYM")).Bytes()
	require.NoError(t, err)
	var got domain.L2OrderBook
	require.NoError(t, json.Unmarshal(payload, &got))
	require.Len(t, got.Bids, 1)
	assert.True(t, got.Bids[0].Price.Equal(decimal.RequireFromString("10.5")))
	assert.Equal(t, int64(30), got.Bids[0].Quantity)

	ttl, err := cache.client.TTL(ctx, depthKey("TESTSYM")).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0, "ttl %s", ttl)

	select {
	case msg := <-sub.Channel():
		assert.Contains(t, msg.Payload, "TESTSYM")
	case <-time.After(2 * time.Second):
		t.Fatal("no depth update published")
	}
}
