package admindata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores snapshots by key with a TTL
type Cache interface {
	Get(ctx context.Context, key string) (*Snapshot, bool, error)
	Set(ctx context.Context, key string, snap *Snapshot, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	snap    *Snapshot
	expires time.Time
}

// MemoryCache is a process-local Cache
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty MemoryCache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryCache) Get(ctx context.Context, key string) (*Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(entry.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return entry.snap, true, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, snap *Snapshot, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{snap: snap, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

const redisKeyPrefix = "ingreso:admindata:"

// RedisCache shares snapshots between web host replicas
type RedisCache struct {
	client redis.Cmdable
}

// NewRedisCache creates a Redis-backed cache
func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string) (*Snapshot, bool, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read admin data cache: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, fmt.Errorf("failed to decode admin data cache: %w", err)
	}
	return &snap, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, snap *Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode admin data: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write admin data cache: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete admin data cache: %w", err)
	}
	return nil
}
