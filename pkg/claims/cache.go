package claims

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/plantops/pkg/auth"
	"github.com/platinummonkey/plantops/pkg/observability"
)

// IdentityCache stores resolved identities keyed by object-id.
// Implementations are safe for concurrent use and best effort: a backend
// failure is a miss, never an error for the caller.
type IdentityCache interface {
	Get(ctx context.Context, objectID string) (*auth.Identity, bool)
	Set(ctx context.Context, identity *auth.Identity)
	Invalidate(ctx context.Context, objectID string)
}

// NopCache never stores anything
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*auth.Identity, bool) { return nil, false }
func (NopCache) Set(context.Context, *auth.Identity)                {}
func (NopCache) Invalidate(context.Context, string)                 {}

// LRUIdentityCache is an in-process identity cache with per-entry TTL
type LRUIdentityCache struct {
	lru     *expirable.LRU[string, auth.Identity]
	metrics *observability.Metrics
}

// NewLRUIdentityCache creates a bounded in-process cache
func NewLRUIdentityCache(size int, ttl time.Duration, metrics *observability.Metrics) *LRUIdentityCache {
	return &LRUIdentityCache{
		lru:     expirable.NewLRU[string, auth.Identity](size, nil, ttl),
		metrics: metrics,
	}
}

// Get returns a copy of the cached identity
func (c *LRUIdentityCache) Get(_ context.Context, objectID string) (*auth.Identity, bool) {
	identity, ok := c.lru.Get(objectID)
	c.metrics.RecordCacheLookup("lru", ok)
	if !ok {
		return nil, false
	}
	return &identity, true
}

// Set stores a copy of identity under its object-id
func (c *LRUIdentityCache) Set(_ context.Context, identity *auth.Identity) {
	if identity == nil || identity.ObjectID == "" {
		return
	}
	c.lru.Add(identity.ObjectID, *identity)
}

// Invalidate removes one entry
func (c *LRUIdentityCache) Invalidate(_ context.Context, objectID string) {
	c.lru.Remove(objectID)
}

// Len returns the number of live entries
func (c *LRUIdentityCache) Len() int {
	return c.lru.Len()
}

// EvictDeactivated returns a directory sync hook that drops the cached
// identities of users the sync deactivated
func EvictDeactivated(cache IdentityCache) func(context.Context, auth.SyncResult) {
	return func(ctx context.Context, result auth.SyncResult) {
		for _, objectID := range result.DeactivatedObjectIDs {
			cache.Invalidate(ctx, objectID)
		}
	}
}

const redisKeyPrefix = "plantops:identity:"

// RedisIdentityCache shares resolved identities between API instances
type RedisIdentityCache struct {
	client  *redis.Client
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRedisIdentityCache creates a Redis backed identity cache
func NewRedisIdentityCache(client *redis.Client, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *RedisIdentityCache {
	return &RedisIdentityCache{client: client, ttl: ttl, logger: logger, metrics: metrics}
}

func redisKey(objectID string) string {
	return redisKeyPrefix + objectID
}

// Get reads and decodes the identity; decode and transport errors count as misses
func (c *RedisIdentityCache) Get(ctx context.Context, objectID string) (*auth.Identity, bool) {
	data, err := c.client.Get(ctx, redisKey(objectID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).Warn("Identity cache read failed")
		}
		c.metrics.RecordCacheLookup("redis", false)
		return nil, false
	}

	var identity auth.Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		c.logger.WithError(err).WithField("object_id", objectID).Warn("Discarding corrupt identity cache entry")
		c.client.Del(ctx, redisKey(objectID))
		c.metrics.RecordCacheLookup("redis", false)
		return nil, false
	}

	c.metrics.RecordCacheLookup("redis", true)
	return &identity, true
}

// Set stores identity with the cache TTL
func (c *RedisIdentityCache) Set(ctx context.Context, identity *auth.Identity) {
	if identity == nil || identity.ObjectID == "" {
		return
	}
	data, err := json.Marshal(identity)
	if err != nil {
		c.logger.WithError(err).Error("Failed to encode identity")
		return
	}
	if err := c.client.Set(ctx, redisKey(identity.ObjectID), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Identity cache write failed")
	}
}

// Invalidate removes one entry
func (c *RedisIdentityCache) Invalidate(ctx context.Context, objectID string) {
	if err := c.client.Del(ctx, redisKey(objectID)).Err(); err != nil {
		c.logger.WithError(err).Warn("Identity cache delete failed")
	}
}
