package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type mockRedisEvaler struct {
	lastScript string
	lastKeys   []string
	lastArgs   []interface{}
	result     int64
	err        error
	ttl        time.Duration
	ttlErr     error
}

func (m *mockRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.lastScript = script
	m.lastKeys = keys
	m.lastArgs = args
	cmd := redis.NewCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	cmd.SetVal(m.result)
	return cmd
}

func (m *mockRedisEvaler) TTL(ctx context.Context, _ string) *redis.DurationCmd {
	cmd := redis.NewDurationCmd(ctx, time.Second)
	if m.ttlErr != nil {
		cmd.SetErr(m.ttlErr)
		return cmd
	}
	cmd.SetVal(m.ttl)
	return cmd
}

func TestRedisRateLimiterAllow(t *testing.T) {
	ctx := context.Background()

	t.Run("allow when count within max", func(t *testing.T) {
		mock := &mockRedisEvaler{result: 2}
		l := &redisRateLimiter{client: mock, window: 2 * time.Minute, max: 3, prefix: "rate_limit:user:"}
		d := l.Allow(ctx, " U1 ")
		if !d.Allowed {
			t.Fatalf("expected allow when count <= max")
		}
		if d.Remaining != 1 {
			t.Fatalf("expected remaining 1, got %d", d.Remaining)
		}
		if len(mock.lastKeys) != 1 || mock.lastKeys[0] != "rate_limit:user:u1" {
			t.Fatalf("unexpected key normalization, got %+v", mock.lastKeys)
		}
		if len(mock.lastArgs) != 1 || mock.lastArgs[0] != 120 {
			t.Fatalf("expected TTL seconds=120, got %+v", mock.lastArgs)
		}
		if mock.lastScript != rateLimitScript {
			t.Fatalf("expected script to match")
		}
	})

	t.Run("deny when count exceeds max", func(t *testing.T) {
		l := &redisRateLimiter{client: &mockRedisEvaler{result: 4}, window: time.Minute, max: 3, prefix: "rate_limit:user:"}
		d := l.Allow(ctx, "u1")
		if d.Allowed {
			t.Fatalf("expected deny when count > max")
		}
		if d.Remaining != 0 {
			t.Fatalf("expected remaining 0, got %d", d.Remaining)
		}
		if d.RetryAfter != time.Minute {
			t.Fatalf("unexpected retry after: %v", d.RetryAfter)
		}
	})

	t.Run("retry after uses remaining window ttl", func(t *testing.T) {
		l := &redisRateLimiter{client: &mockRedisEvaler{result: 4, ttl: 25 * time.Second}, window: time.Minute, max: 3, prefix: "rate_limit:user:"}
		if d := l.Allow(ctx, "u1"); d.RetryAfter != 25*time.Second {
			t.Fatalf("expected retry after 25s, got %v", d.RetryAfter)
		}
	})

	t.Run("retry after falls back to window on ttl error", func(t *testing.T) {
		l := &redisRateLimiter{client: &mockRedisEvaler{result: 4, ttlErr: errors.New("redis down")}, window: time.Minute, max: 3, prefix: "rate_limit:user:"}
		if d := l.Allow(ctx, "u1"); d.RetryAfter != time.Minute {
			t.Fatalf("expected fallback retry after, got %v", d.RetryAfter)
		}
	})

	t.Run("redis error fail-open", func(t *testing.T) {
		l := &redisRateLimiter{client: &mockRedisEvaler{err: errors.New("redis down")}, window: time.Minute, max: 3, prefix: "rate_limit:user:"}
		if d := l.Allow(ctx, "u1"); !d.Allowed {
			t.Fatalf("expected fail-open on redis errors")
		}
	})

	t.Run("empty key rejected", func(t *testing.T) {
		l := &redisRateLimiter{client: &mockRedisEvaler{result: 1}, window: time.Minute, max: 3, prefix: "rate_limit:user:"}
		if d := l.Allow(ctx, "   "); d.Allowed {
			t.Fatalf("expected empty key to be rejected")
		}
	})
}

func TestMemoryRateLimiterWindow(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryRateLimiter(100*time.Millisecond, 2)

	if d := l.Allow(ctx, "u1"); !d.Allowed || d.Remaining != 1 {
		t.Fatalf("first request should pass, got %+v", d)
	}
	if d := l.Allow(ctx, "u1"); !d.Allowed || d.Remaining != 0 {
		t.Fatalf("second request should pass, got %+v", d)
	}
	if d := l.Allow(ctx, "u1"); d.Allowed {
		t.Fatalf("third request within window should be denied")
	}
	if d := l.Allow(ctx, "u2"); !d.Allowed {
		t.Fatalf("other user must have its own window")
	}

	time.Sleep(120 * time.Millisecond)
	if d := l.Allow(ctx, "u1"); !d.Allowed {
		t.Fatalf("request after window should pass")
	}
}
