package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ErrMiss key 不存在或已过期
var ErrMiss = errors.New("cache miss")

// Store 键值缓存，值以 JSON 形式保存，读取得到的是副本
type Store interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Get(ctx context.Context, key string, dest any) error
	Delete(ctx context.Context, keys ...string) error
}

// MemoryCache 进程内缓存（go-cache）
type MemoryCache struct {
	c *gocache.Cache
}

// NewMemoryCache 创建进程内缓存
func NewMemoryCache(defaultTTL, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{c: gocache.New(defaultTTL, cleanupInterval)}
}

// Set 设置缓存，expiration 为 0 时使用默认过期时间
func (m *MemoryCache) Set(_ context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if expiration == 0 {
		expiration = gocache.DefaultExpiration
	}
	m.c.Set(key, data, expiration)
	return nil
}

// Get 获取缓存
func (m *MemoryCache) Get(_ context.Context, key string, dest any) error {
	v, ok := m.c.Get(key)
	if !ok {
		return ErrMiss
	}
	return json.Unmarshal(v.([]byte), dest)
}

// Delete 删除缓存
func (m *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.c.Delete(k)
	}
	return nil
}
