package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// defaultOperationTimeout is the timeout for individual Redis operations
	defaultOperationTimeout = 5 * time.Second
)

var (
	ErrCacheDisabled = errors.New("cache disabled")
	ErrCacheMiss     = errors.New("key not found")
)

type Cache struct {
	client  *redis.Client
	enabled bool
}

func NewCache(addr string, enable bool) (*Cache, error) {
	if !enable {
		return &Cache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{
		client:  client,
		enabled: true,
	}, nil
}

// operationContext creates a context with timeout for Redis operations
func (c *Cache) operationContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), defaultOperationTimeout)
}

func (c *Cache) Set(key string, value interface{}, expiration time.Duration) error {
	if !c.enabled {
		return nil
	}

	ctx, cancel := c.operationContext()
	defer cancel()

	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, jsonData, expiration).Err()
}

func (c *Cache) Get(key string, dest interface{}) error {
	if !c.enabled {
		return ErrCacheDisabled
	}

	ctx, cancel := c.operationContext()
	defer cancel()

	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return ErrCacheMiss
	} else if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), dest)
}

func (c *Cache) Delete(key string) error {
	if !c.enabled {
		return nil
	}

	ctx, cancel := c.operationContext()
	defer cancel()

	return c.client.Del(ctx, key).Err()
}

func (c *Cache) DeletePattern(pattern string) error {
	if !c.enabled {
		return nil
	}

	ctx, cancel := c.operationContext()
	defer cancel()

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (c *Cache) Close() error {
	if !c.enabled {
		return nil
	}
	return c.client.Close()
}

// Enabled reports whether the cache is backed by Redis.
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled
}

// IsMiss reports whether err came from a lookup that found nothing.
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss) || errors.Is(err, ErrCacheDisabled)
}

func assetKey(table string, uid uint) string {
	return fmt.Sprintf("asset:%s:%d", table, uid)
}

func (c *Cache) CacheAsset(table string, uid uint, asset interface{}, ttl time.Duration) error {
	return c.Set(assetKey(table, uid), asset, ttl)
}

func (c *Cache) GetCachedAsset(table string, uid uint, dest interface{}) error {
	return c.Get(assetKey(table, uid), dest)
}

func (c *Cache) InvalidateAsset(table string, uid uint) error {
	return c.Delete(assetKey(table, uid))
}

// InvalidateAssets drops every cached asset regardless of table.
func (c *Cache) InvalidateAssets() error {
	return c.DeletePattern("asset:*")
}

func renderKey(recordID uint) string {
	return fmt.Sprintf("render:content:%d", recordID)
}

func (c *Cache) CacheRenderedContent(recordID uint, markup interface{}, ttl time.Duration) error {
	return c.Set(renderKey(recordID), markup, ttl)
}

func (c *Cache) GetCachedRenderedContent(recordID uint, dest interface{}) error {
	return c.Get(renderKey(recordID), dest)
}

func (c *Cache) InvalidateRenderedContent(recordID uint) error {
	return c.Delete(renderKey(recordID))
}

// InvalidateRenderedContents drops every cached rendering.
func (c *Cache) InvalidateRenderedContents() error {
	return c.DeletePattern("render:content:*")
}
