package schemaregistry

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
)

const (
	defaultRedisKeyPrefix = "business_eventstore:schemas:"
	redisLatestField      = "latest"
)

// Cache stores resolved schemas. Version 0 addresses the latest schema of an entity type.
//
// Implementations must tolerate concurrent use. The owning Registry invalidates an entity type
// whenever a new version is registered.
type Cache interface {
	Get(ctx context.Context, entityType string, version int) (eventstore.SchemaVersion, bool, error)
	Set(ctx context.Context, schema eventstore.SchemaVersion, asLatest bool) error
	Invalidate(ctx context.Context, entityType string) error
}

/***** MemoryCache *****/

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	schemas map[string]map[int]eventstore.SchemaVersion
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{schemas: make(map[string]map[int]eventstore.SchemaVersion)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, entityType string, version int) (eventstore.SchemaVersion, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	schema, found := c.schemas[entityType][version]

	return schema, found, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, schema eventstore.SchemaVersion, asLatest bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	versions, ok := c.schemas[schema.EntityType]
	if !ok {
		versions = make(map[int]eventstore.SchemaVersion)
		c.schemas[schema.EntityType] = versions
	}

	versions[schema.Version] = schema
	if asLatest {
		versions[latestVersion] = schema
	}

	return nil
}

// Invalidate implements Cache.
func (c *MemoryCache) Invalidate(_ context.Context, entityType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.schemas, entityType)

	return nil
}

/***** RedisCache *****/

// RedisCache is a Cache shared between processes. Each entity type is one Redis hash
// with one field per version plus a "latest" field.
type RedisCache struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// RedisCacheOption configures RedisCache.
type RedisCacheOption func(*RedisCache)

// WithKeyPrefix sets the prefix of the hash keys (default: "business_eventstore:schemas:").
func WithKeyPrefix(prefix string) RedisCacheOption {
	return func(c *RedisCache) {
		c.keyPrefix = prefix
	}
}

// WithTTL expires cached entity types after ttl. Zero keeps them until invalidation.
func WithTTL(ttl time.Duration) RedisCacheOption {
	return func(c *RedisCache) {
		c.ttl = ttl
	}
}

// NewRedisCache creates a RedisCache.
func NewRedisCache(client redis.UniversalClient, options ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		client:    client,
		keyPrefix: defaultRedisKeyPrefix,
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, entityType string, version int) (eventstore.SchemaVersion, bool, error) {
	data, err := c.client.HGet(ctx, c.key(entityType), field(version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return eventstore.SchemaVersion{}, false, nil
	}

	if err != nil {
		return eventstore.SchemaVersion{}, false, err
	}

	var schema eventstore.SchemaVersion
	if err = jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &schema); err != nil {
		return eventstore.SchemaVersion{}, false, err
	}

	return schema, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, schema eventstore.SchemaVersion, asLatest bool) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(schema)
	if err != nil {
		return err
	}

	key := c.key(schema.EntityType)
	values := []any{field(schema.Version), data}
	if asLatest {
		values = append(values, redisLatestField, data)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values...)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})

	return err
}

// Invalidate implements Cache.
func (c *RedisCache) Invalidate(ctx context.Context, entityType string) error {
	return c.client.Del(ctx, c.key(entityType)).Err()
}

func (c *RedisCache) key(entityType string) string {
	return c.keyPrefix + entityType
}

func field(version int) string {
	if version == latestVersion {
		return redisLatestField
	}

	return strconv.Itoa(version)
}
