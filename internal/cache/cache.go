// Package cache holds the Redis-backed summary cache. It stores opaque JSON
// payloads; marshaling stays with the caller.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SummaryCache caches expedition summaries with a short TTL.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects and pings a Redis client.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// NewSummaryCache wraps a Redis client as a summary cache.
func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{client: client, ttl: ttl}
}

func summaryKey(expeditionID int64) string {
	return fmt.Sprintf("expedition_summary:%d", expeditionID)
}

// GetSummary returns the cached payload for an expedition, or ok=false on a
// miss. Cache errors are returned so the caller can log and fall through to
// the database.
func (c *SummaryCache) GetSummary(ctx context.Context, expeditionID int64) ([]byte, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}

	val, err := c.client.Get(ctx, summaryKey(expeditionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get summary from redis: %w", err)
	}

	return val, true, nil
}

// SetSummary stores a summary payload under the configured TTL.
func (c *SummaryCache) SetSummary(ctx context.Context, expeditionID int64, payload []byte) error {
	if c == nil || c.client == nil {
		return nil
	}

	if err := c.client.Set(ctx, summaryKey(expeditionID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set summary in redis: %w", err)
	}

	return nil
}

// Invalidate drops the cached summary after a committed mutation.
func (c *SummaryCache) Invalidate(ctx context.Context, expeditionID int64) error {
	if c == nil || c.client == nil {
		return nil
	}

	if err := c.client.Del(ctx, summaryKey(expeditionID)).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to invalidate summary in redis: %w", err)
	}

	return nil
}

// Close closes the underlying Redis client.
func (c *SummaryCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
