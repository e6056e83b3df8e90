package insight

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache 投影结果缓存，值为序列化后的 JSON
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	// Invalidate 使当前全部缓存失效
	Invalidate(ctx context.Context)
}

// ========== 进程内 LRU 缓存 ==========

// MemoryCache 基于 golang-lru 的进程内缓存，条目带过期时间
type MemoryCache struct {
	cache *lru.Cache
	ttl   time.Duration
	mu    sync.RWMutex
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache 创建进程内缓存
func NewMemoryCache(size int, ttl time.Duration) (*MemoryCache, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{cache: cache, ttl: ttl}, nil
}

// Get 读取缓存，过期条目视为未命中
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	val, found := c.cache.Get(key)
	if !found {
		return nil, false
	}
	entry := val.(cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.cache.Remove(key)
		return nil, false
	}
	return entry.value, true
}

// Set 写入缓存
func (c *MemoryCache) Set(_ context.Context, key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, cacheEntry{value: value, expiresAt: time.Now().Add(c.ttl)})
}

// Invalidate 清空缓存
func (c *MemoryCache) Invalidate(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}

// ========== Redis 缓存 ==========

// RedisCache 多实例共享的缓存
// key 中带有代数，失效时只递增代数，旧 key 由 TTL 回收
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache 创建 Redis 缓存
func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix + ":insight", ttl: ttl}
}

func (c *RedisCache) generationKey() string {
	return c.prefix + ":gen"
}

func (c *RedisCache) key(ctx context.Context, key string) (string, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%s", c.prefix, gen, key), nil
}

// Get 读取缓存，Redis 出错时按未命中处理
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	k, err := c.key(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("insight cache generation lookup failed")
		return nil, false
	}
	data, err := c.client.Get(ctx, k).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("key", k).Msg("insight cache get failed")
		}
		return nil, false
	}
	return data, true
}

// Set 写入缓存
func (c *RedisCache) Set(ctx context.Context, key string, value []byte) {
	k, err := c.key(ctx, key)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, k, value, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", k).Msg("insight cache set failed")
	}
}

// Invalidate 递增代数
func (c *RedisCache) Invalidate(ctx context.Context) {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		log.Warn().Err(err).Msg("insight cache invalidation failed")
	}
}
