// Package cache keeps per-owner todo lists in Redis. Every failure degrades
// to a cache miss; Postgres stays authoritative.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/todo-service/internal/domain"
)

const keyPrefix = "todo:items:"

// entry is the stored form of a list. Version is the owner's generation at
// the time the list was read from the store.
type entry struct {
	Version int64         `json:"version"`
	Items   []domain.Item `json:"items"`
}

// ItemCache is a read-through list cache keyed by owner. Each owner has a
// generation counter that every mutation bumps; a list is only served when
// it was stored under the current generation.
type ItemCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewItemCache returns nil when client is nil; a nil *ItemCache is a valid no-op cache.
func NewItemCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ItemCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ItemCache{client: client, ttl: ttl, logger: logger}
}

// Key returns the Redis key holding owner's list. The hash tag keeps it in
// the same cluster slot as VersionKey.
func Key(owner string) string {
	return keyPrefix + "{" + owner + "}"
}

// VersionKey returns the Redis key holding owner's generation counter.
func VersionKey(owner string) string {
	return Key(owner) + ":version"
}

// Version returns owner's current generation. ok is false when Redis cannot
// answer, in which case the caller must neither read nor fill the cache.
func (c *ItemCache) Version(ctx context.Context, owner string) (int64, bool) {
	if c == nil {
		return 0, false
	}

	v, err := c.client.Get(ctx, VersionKey(owner)).Int64()
	switch {
	case err == nil:
		return v, true
	case errors.Is(err, redis.Nil):
		return 0, true
	default:
		c.logger.Warn("item cache version read failed", zap.String("owner", owner), zap.Error(err))
		return 0, false
	}
}

// Get returns the cached list for owner if it was stored under version.
func (c *ItemCache) Get(ctx context.Context, owner string, version int64) ([]domain.Item, bool) {
	if c == nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, Key(owner)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("item cache read failed", zap.String("owner", owner), zap.Error(err))
		}
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.logger.Warn("item cache entry corrupt", zap.String("owner", owner), zap.Error(err))
		if err := c.client.Del(ctx, Key(owner)).Err(); err != nil {
			c.logger.Warn("item cache cleanup failed", zap.String("owner", owner), zap.Error(err))
		}
		return nil, false
	}
	if e.Version != version {
		return nil, false
	}
	if e.Items == nil {
		e.Items = []domain.Item{}
	}
	return e.Items, true
}

// Set stores owner's list under version. A list read before a concurrent
// mutation carries the old version and is never served afterwards.
func (c *ItemCache) Set(ctx context.Context, owner string, version int64, items []domain.Item) {
	if c == nil {
		return
	}

	raw, err := json.Marshal(entry{Version: version, Items: items})
	if err != nil {
		c.logger.Warn("item cache encode failed", zap.String("owner", owner), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, Key(owner), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("item cache write failed", zap.String("owner", owner), zap.Error(fmt.Errorf("set: %w", err)))
	}
}

// Invalidate bumps owner's generation and drops the stored list.
func (c *ItemCache) Invalidate(ctx context.Context, owner string) {
	if c == nil {
		return
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, VersionKey(owner))
		pipe.Del(ctx, Key(owner))
		return nil
	})
	if err != nil {
		c.logger.Warn("item cache invalidate failed", zap.String("owner", owner), zap.Error(err))
	}
}
