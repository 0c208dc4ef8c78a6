package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

// Decision es el resultado de una consulta al rate limiter.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter limita operaciones sensibles por usuario con ventana fija.
type RateLimiter interface {
	Allow(ctx context.Context, key string) Decision
}

type redisRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

func NewRedisRateLimiter(client *redis.Client, window time.Duration, max int) RateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "rate_limit:user:",
	}
}

// Allow incrementa el contador de la ventana de forma atomica.
// El primer INCR de la ventana fija el expiry exactamente una vez.
// Ante un error de Redis responde permitido (fail open).
func (l *redisRateLimiter) Allow(ctx context.Context, key string) Decision {
	if l == nil || l.client == nil {
		return Decision{Allowed: true}
	}
	open := Decision{Allowed: true, Limit: l.max, Remaining: l.max}
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return Decision{Limit: l.max, RetryAfter: l.window}
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	key = l.prefix + normalized
	count, err := l.client.Eval(ctx, rateLimitScript, []string{key}, seconds).Int()
	if err != nil {
		return open
	}
	remaining := l.max - count
	if remaining < 0 {
		remaining = 0
	}
	retryAfter := l.window
	if count > l.max {
		// El TTL restante de la clave da el retry-after real de la ventana.
		if ttl, err := l.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			retryAfter = ttl
		}
	}
	return Decision{
		Allowed:    count <= l.max,
		Limit:      l.max,
		Remaining:  remaining,
		RetryAfter: retryAfter,
	}
}

type memoryRateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
}

// NewMemoryRateLimiter crea un rate limiter en memoria con ventana deslizante.
func NewMemoryRateLimiter(window time.Duration, max int) RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &memoryRateLimiter{window: window, max: max, hits: make(map[string][]time.Time)}
}

func (l *memoryRateLimiter) Allow(_ context.Context, key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	cutoff := now.Add(-l.window)
	entries := l.hits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.hits[key] = kept
		retry := l.window - now.Sub(kept[0])
		if retry < 0 {
			retry = 0
		}
		return Decision{Limit: l.max, RetryAfter: retry}
	}
	kept = append(kept, now)
	l.hits[key] = kept
	return Decision{
		Allowed:   true,
		Limit:     l.max,
		Remaining: l.max - len(kept),
	}
}
