package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, mr *miniredis.Miniredis, limit int) *FixedWindowLimiter {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", limit, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	return limiter
}

func TestFixedWindowLimiterRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter := newTestLimiter(t, mr, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := limiter.Allow(ctx, "ip-1")
		if err != nil || !d.Allowed {
			t.Fatalf("request %d should pass: %+v err=%v", i+1, d, err)
		}
	}
	d, err := limiter.Allow(ctx, "ip-1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed {
		t.Fatalf("third request should be blocked")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry after: %s", d.RetryAfter)
	}
	if d, _ := limiter.Allow(ctx, "ip-2"); !d.Allowed {
		t.Fatalf("other keys have their own quota")
	}
}

func TestFixedWindowLimiterRemaining(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter := newTestLimiter(t, mr, 3)
	d, err := limiter.Allow(context.Background(), "ip-1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Remaining != 2 {
		t.Fatalf("remaining = %d, want 2", d.Remaining)
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter := newTestLimiter(t, mr, 1)
	mr.Close()
	d, err := limiter.Allow(context.Background(), "ip-1")
	if err == nil || d.Allowed {
		t.Fatalf("limiter should fail closed on redis errors: %+v err=%v", d, err)
	}
}

func TestFixedWindowLimiterRequiresClient(t *testing.T) {
	limiter, err := NewFixedWindowLimiter(nil, "", 1, time.Second)
	if err == nil || limiter != nil {
		t.Fatalf("expected constructor error without redis client")
	}
}

func TestFixedWindowLimiterRequiresPositiveLimit(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: miniredis.RunT(t).Addr()})
	t.Cleanup(func() { _ = client.Close() })
	if _, err := NewFixedWindowLimiter(client, "", 0, time.Second); err == nil {
		t.Fatalf("expected constructor error for zero limit")
	}
	if _, err := NewFixedWindowLimiter(client, "", 1, 0); err == nil {
		t.Fatalf("expected constructor error for zero window")
	}
}
