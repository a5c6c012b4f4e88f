package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ceyewan/minichat/internal/config"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss 表示键不存在
var ErrCacheMiss = errors.New("cache: key not found")

// Cache 定义缓存服务的核心接口
// 面向接口设计，便于在测试中替换为内存实现
type Cache interface {
	// Get 获取字符串值，键不存在时返回 ErrCacheMiss
	Get(ctx context.Context, key string) (string, error)
	// Set 设置字符串值，expiration 为 0 表示不过期
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	// Incr 原子自增并返回新值
	Incr(ctx context.Context, key string) (int64, error)
	// Del 删除一个或多个键
	Del(ctx context.Context, keys ...string) error
	// Exists 返回存在的键数量
	Exists(ctx context.Context, keys ...string) (int64, error)
	// Ping 检查与缓存服务器的连接是否正常
	Ping(ctx context.Context) error
	// Close 关闭连接
	Close() error
}

// redisCache 基于 go-redis 的 Cache 实现
type redisCache struct {
	client *redis.Client
	prefix string
}

// New 创建 Redis 缓存客户端
func New(cfg config.CacheConfig) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	return &redisCache{client: client, prefix: cfg.KeyPrefix}, nil
}

func (c *redisCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

func (c *redisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

func (c *redisCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	return c.client.Set(ctx, c.key(key), value, expiration).Err()
}

func (c *redisCache) Incr(ctx context.Context, key string) (int64, error) {
	return c.client.Incr(ctx, c.key(key)).Result()
}

func (c *redisCache) Del(ctx context.Context, keys ...string) error {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.key(k)
	}
	return c.client.Del(ctx, prefixed...).Err()
}

func (c *redisCache) Exists(ctx context.Context, keys ...string) (int64, error) {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.key(k)
	}
	return c.client.Exists(ctx, prefixed...).Result()
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
