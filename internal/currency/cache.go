package currency

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateCache 汇率缓存。get未命中或过期时返回false。
type RateCache interface {
	Get(ctx context.Context, key string) (float64, bool)
	Set(ctx context.Context, key string, rate float64, ttl time.Duration)
}

// memoryCache 进程内TTL缓存，单实例部署的默认选择
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	rate      float64
	expiresAt time.Time
}

// NewMemoryCache 创建内存汇率缓存
func NewMemoryCache() RateCache {
	return &memoryCache{entries: make(map[string]memoryEntry)}
}

func (c *memoryCache) Get(ctx context.Context, key string) (float64, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return 0, false
	}
	return entry.rate, true
}

func (c *memoryCache) Set(ctx context.Context, key string, rate float64, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = memoryEntry{rate: rate, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// redisCache 多实例部署时共享的汇率缓存
type redisCache struct {
	client *redis.Client
}

// NewRedisCache 创建Redis汇率缓存
func NewRedisCache(addr string, db int) RateCache {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, key string) (float64, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return 0, false
	}
	rate, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return rate, true
}

func (c *redisCache) Set(ctx context.Context, key string, rate float64, ttl time.Duration) {
	c.client.Set(ctx, key, strconv.FormatFloat(rate, 'f', -1, 64), ttl)
}
