// internal/recommendations/cache.go
package recommendations

import (
	"context"
	"encoding/json"
	"time"

	"rent360-leads/internal/models"

	"github.com/redis/go-redis/v9"
)

// BrokerCache keeps broker location profiles in Redis between passes.
// Cache errors are never fatal: a miss falls through to the store. A hit is
// only trusted after the store confirms the broker still exists, so profile
// edits may lag by up to the TTL but a deleted broker never scores.
type BrokerCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewBrokerCache(client redis.Cmdable, ttl time.Duration) *BrokerCache {
	return &BrokerCache{client: client, ttl: ttl}
}

func brokerCacheKey(brokerID string) string {
	return "leads:broker:profile:" + brokerID
}

func (c *BrokerCache) Get(ctx context.Context, brokerID string) (*models.Broker, bool) {
	val, err := c.client.Get(ctx, brokerCacheKey(brokerID)).Bytes()
	if err != nil {
		return nil, false
	}
	var b models.Broker
	if err := json.Unmarshal(val, &b); err != nil {
		return nil, false
	}
	return &b, true
}

func (c *BrokerCache) Set(ctx context.Context, b *models.Broker) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, brokerCacheKey(b.ID), data, c.ttl).Err()
}

func (c *BrokerCache) Invalidate(ctx context.Context, brokerID string) error {
	return c.client.Del(ctx, brokerCacheKey(brokerID)).Err()
}
