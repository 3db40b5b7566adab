// Package cache keeps blocked-range reads in Redis. Entries are keyed by a
// version number that every write bumps, so a write invalidates all cached
// windows at once.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
)

const versionKey = "calendar:blocked:version"

type BlockedCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewBlockedCache(rdb *redis.Client, ttl time.Duration) *BlockedCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &BlockedCache{rdb: rdb, ttl: ttl}
}

func (c *BlockedCache) key(ctx context.Context, from, to string) (string, error) {
	v, err := c.rdb.Get(ctx, versionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("calendar:blocked:v%d:%s:%s", v, from, to), nil
}

// Get returns the cached list for [from, to]; ok is false on a miss or when
// Redis is unreachable.
func (c *BlockedCache) Get(ctx context.Context, from, to string) ([]booking.BlockedRange, bool) {
	k, err := c.key(ctx, from, to)
	if err != nil {
		log.Printf("[booking] blocked cache: %v", err)
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, k).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[booking] blocked cache get: %v", err)
		}
		return nil, false
	}
	var out []booking.BlockedRange
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

func (c *BlockedCache) Set(ctx context.Context, from, to string, list []booking.BlockedRange) {
	k, err := c.key(ctx, from, to)
	if err != nil {
		return
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, k, raw, c.ttl).Err(); err != nil {
		log.Printf("[booking] blocked cache set: %v", err)
	}
}

// Invalidate drops every cached window.
func (c *BlockedCache) Invalidate(ctx context.Context) {
	if err := c.rdb.Incr(ctx, versionKey).Err(); err != nil {
		log.Printf("[booking] blocked cache invalidate: %v", err)
	}
}
