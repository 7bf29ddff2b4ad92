// Package ratelimit bounds requests per key (usually route plus client IP)
// within a time window. Redis gives a shared sliding window across replicas;
// without it, or when Redis fails, an in-process limiter takes over.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key fits in the window
type Limiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error)
}

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps a token bucket per key refilling max tokens per window
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// maxIdleEntries bounds the map before idle keys are swept
const maxIdleEntries = 10000

// NewMemoryLimiter creates an empty MemoryLimiter
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{entries: make(map[string]*memoryEntry), now: time.Now}
}

func (m *MemoryLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	if max <= 0 || window <= 0 {
		return false, fmt.Errorf("invalid limit %d per %s", max, window)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, ok := m.entries[key]
	if !ok {
		if len(m.entries) >= maxIdleEntries {
			m.sweep(now, window)
		}
		entry = &memoryEntry{limiter: rate.NewLimiter(rate.Every(window/time.Duration(max)), max)}
		m.entries[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1), nil
}

func (m *MemoryLimiter) sweep(now time.Time, window time.Duration) {
	for key, entry := range m.entries {
		if now.Sub(entry.lastSeen) > window {
			delete(m.entries, key)
		}
	}
}

// RedisLimiter implements a sliding window log in a Redis sorted set
type RedisLimiter struct {
	client   redis.Cmdable
	fallback Limiter
	log      zerolog.Logger
	now      func() time.Time
}

// NewRedisLimiter creates a RedisLimiter that degrades to fallback on Redis errors
func NewRedisLimiter(client redis.Cmdable, fallback Limiter, log zerolog.Logger) *RedisLimiter {
	if fallback == nil {
		fallback = NewMemoryLimiter()
	}
	return &RedisLimiter{client: client, fallback: fallback, log: log, now: time.Now}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	allowed, err := r.allow(ctx, key, max, window)
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("Redis rate limiter failed, using memory")
		return r.fallback.Allow(ctx, key, max, window)
	}
	return allowed, nil
}

func (r *RedisLimiter) allow(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	redisKey := "ratelimit:" + key
	now := r.now()
	cutoff := now.Add(-window).UnixMicro()
	member := ulid.Make().String()

	// Trim, record and count in one MULTI so concurrent callers see distinct counts
	var count *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(cutoff, 10))
		pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixMicro()), Member: member})
		count = pipe.ZCard(ctx, redisKey)
		pipe.Expire(ctx, redisKey, window+time.Second)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to record request: %w", err)
	}

	if count.Val() <= int64(max) {
		return true, nil
	}

	// Rejected requests do not occupy the window
	if err := r.client.ZRem(ctx, redisKey, member).Err(); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("Failed to drop rejected request from window")
	}
	return false, nil
}
