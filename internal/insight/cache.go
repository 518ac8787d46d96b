package insight

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores the latest insight per class.
type Cache interface {
	Get(ctx context.Context, classID string) (*Insight, error)
	Set(ctx context.Context, in Insight) error
}

// RedisCache keeps insights as JSON strings with a TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a cache under keys "<prefix><classID>".
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "smartpresent:insight:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, classID string) (*Insight, error) {
	raw, err := c.client.Get(ctx, c.prefix+classID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var in Insight
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

func (c *RedisCache) Set(ctx context.Context, in Insight) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+in.ClassID, raw, c.ttl).Err()
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]Insight
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]Insight)}
}

func (c *MemoryCache) Get(_ context.Context, classID string) (*Insight, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	in, ok := c.items[classID]
	if !ok {
		return nil, nil
	}
	return &in, nil
}

func (c *MemoryCache) Set(_ context.Context, in Insight) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[in.ClassID] = in
	return nil
}
