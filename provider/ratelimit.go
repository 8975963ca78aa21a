package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter grants or denies a call against a named bucket (usually a
// backend name), suspending the caller up to a bounded wait when the
// bucket is exhausted.
type Limiter interface {
	// Acquire blocks until a token is available or maxWait elapses. It
	// returns false if the wait was exhausted without a token.
	Acquire(ctx context.Context, bucket string, maxWait time.Duration) (bool, error)
}

// memoryBucket is one bucket's refill state.
type memoryBucket struct {
	tokens     float64
	lastRefill time.Time
}

// MemoryLimiter is an in-process token bucket limiter, one bucket per
// bucket name, held in this process's memory. Suited to single-instance
// runs or tests.
type MemoryLimiter struct {
	mu          sync.Mutex
	buckets     map[string]*memoryBucket
	capacity    float64
	refillPerSec float64
}

// NewMemoryLimiter creates a limiter with the given bucket capacity and
// refill rate in tokens/second.
func NewMemoryLimiter(capacity, refillPerSec float64) *MemoryLimiter {
	return &MemoryLimiter{
		buckets:      make(map[string]*memoryBucket),
		capacity:     capacity,
		refillPerSec: refillPerSec,
	}
}

func (l *MemoryLimiter) Acquire(ctx context.Context, bucket string, maxWait time.Duration) (bool, error) {
	deadline := time.Now().Add(maxWait)
	for {
		if l.tryTake(bucket) {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (l *MemoryLimiter) tryTake(bucket string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[bucket]
	if !ok {
		b = &memoryBucket{tokens: l.capacity, lastRefill: time.Now()}
		l.buckets[bucket] = b
	}

	elapsed := time.Since(b.lastRefill).Seconds()
	b.tokens = min(l.capacity, b.tokens+elapsed*l.refillPerSec)
	b.lastRefill = time.Now()

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// RedisLimiter is a distributed token bucket backed by Redis, for
// multi-process deployments that must share a single per-provider rate
// limit. It uses INCR+EXPIRE over fixed windows of the configured length
// rather than a true continuous bucket, which is simple and good enough
// at the window sizes providers rate-limit at.
type RedisLimiter struct {
	client     *redis.Client
	maxPerWindow int64
	window     time.Duration
}

// NewRedisLimiter creates a distributed limiter allowing maxPerWindow
// calls per window, keyed by bucket name.
func NewRedisLimiter(client *redis.Client, maxPerWindow int64, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, maxPerWindow: maxPerWindow, window: window}
}

func (l *RedisLimiter) Acquire(ctx context.Context, bucket string, maxWait time.Duration) (bool, error) {
	deadline := time.Now().Add(maxWait)
	key := fmt.Sprintf("provider:ratelimit:%s:%d", bucket, time.Now().Unix()/int64(l.window.Seconds()))

	for {
		count, err := l.client.Incr(ctx, key).Result()
		if err != nil {
			return false, fmt.Errorf("rate limiter incr failed: %w", err)
		}
		if count == 1 {
			l.client.Expire(ctx, key, l.window)
		}
		if count <= l.maxPerWindow {
			return true, nil
		}

		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
