package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// CounterStore increments the fixed-window counter for a key and reports
// the running count plus the window reset time. Increments must be atomic;
// concurrent requests interleave arbitrarily.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration, now time.Time) (count int64, reset time.Time, err error)
}

// windowReset rounds now up to the next window multiple.
func windowReset(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window).Add(window)
}

type memoryCounter struct {
	count int64
	reset time.Time
}

// MemoryStore is the single-process counter store the limiter falls back
// to when Redis is not configured.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*memoryCounter)}
}

func (s *MemoryStore) Incr(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.reset) {
		c = &memoryCounter{count: 0, reset: windowReset(now, window)}
		s.counters[key] = c
	}
	c.count++
	return c.count, c.reset, nil
}

// RedisStore shares counters across replicas using INCR plus a window
// expiry, keyed by window start so a new window is a new key.
type RedisStore struct {
	rc      *redis.Client
	timeout time.Duration
}

func NewRedisStore(rc *redis.Client) *RedisStore {
	return &RedisStore{rc: rc, timeout: 200 * time.Millisecond}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	reset := windowReset(now, window)
	start := reset.Add(-window)
	rkey := fmt.Sprintf("rl:%s:%d", key, start.Unix())

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.rc.Incr(rctx, rkey).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if n == 1 {
		_ = s.rc.Expire(rctx, rkey, window+time.Second).Err()
	}
	return n, reset, nil
}
