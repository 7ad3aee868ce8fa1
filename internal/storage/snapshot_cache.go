package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wallet-tracker/internal/models"
	"github.com/wallet-tracker/internal/types"
)

// SnapshotCache is a Redis read-through cache for daily snapshot queries.
// Entries are short-lived and invalidated whenever a sync rewrites the
// underlying snapshots.
type SnapshotCache struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewSnapshotCache creates a snapshot cache with the given entry TTL
func NewSnapshotCache(redis *RedisCache, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{redis: redis, ttl: ttl}
}

func snapshotCacheKey(userID, walletAddress string, chain types.ChainID, from, to time.Time) string {
	return fmt.Sprintf("snapshots:%s:%s:%s:%s:%s",
		userID, walletAddress, chain,
		from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"))
}

func snapshotKeyPattern(userID, walletAddress string, chain types.ChainID) string {
	return fmt.Sprintf("snapshots:%s:%s:%s:*", userID, walletAddress, chain)
}

// Get returns cached snapshots for a query, or (nil, nil) on a miss
func (c *SnapshotCache) Get(ctx context.Context, userID, walletAddress string, chain types.ChainID, from, to time.Time) ([]*models.DailySnapshot, error) {
	data, err := c.redis.Client().Get(ctx, snapshotCacheKey(userID, walletAddress, chain, from, to)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot cache: %w", err)
	}

	var snaps []*models.DailySnapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		return nil, fmt.Errorf("failed to decode cached snapshots: %w", err)
	}
	return snaps, nil
}

// Set caches the snapshots for a query
func (c *SnapshotCache) Set(ctx context.Context, userID, walletAddress string, chain types.ChainID, from, to time.Time, snaps []*models.DailySnapshot) error {
	data, err := json.Marshal(snaps)
	if err != nil {
		return fmt.Errorf("failed to encode snapshots for cache: %w", err)
	}

	key := snapshotCacheKey(userID, walletAddress, chain, from, to)
	if err := c.redis.Client().Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot cache: %w", err)
	}
	return nil
}

// Invalidate drops every cached query for a wallet
func (c *SnapshotCache) Invalidate(ctx context.Context, userID, walletAddress string, chain types.ChainID) error {
	client := c.redis.Client()
	iter := client.Scan(ctx, 0, snapshotKeyPattern(userID, walletAddress, chain), 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan snapshot cache keys: %w", err)
	}

	if len(keys) > 0 {
		if err := client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to invalidate snapshot cache: %w", err)
		}
	}
	return nil
}
