package security

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestAlerter(t *testing.T) *AuditAlerter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	alerter, err := NewAuditAlerter(client, "test:alerts")
	if err != nil {
		t.Fatalf("new alerter: %v", err)
	}
	return alerter
}

func TestAuditAlerterObserveTriggers(t *testing.T) {
	alerter := newTestAlerter(t)
	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		result, err := alerter.Observe(ctx, "auth.login", "fail", "127.0.0.1")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if result.Triggered != (i == 10) {
			t.Fatalf("attempt %d: triggered=%v count=%d", i, result.Triggered, result.Count)
		}
	}
	other, err := alerter.Observe(ctx, "auth.login", "fail", "10.0.0.9")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if other.Count != 1 || other.Triggered {
		t.Fatalf("counters must be per ip, got %+v", other)
	}
}

func TestAuditAlerterObserveIgnoresUnknownRule(t *testing.T) {
	alerter := newTestAlerter(t)
	for _, tc := range []struct{ event, outcome string }{
		{"auth.login", "success"},
		{"auth.custom", "fail"},
	} {
		result, err := alerter.Observe(context.Background(), tc.event, tc.outcome, "127.0.0.1")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if result.Triggered || result.Count != 0 {
			t.Fatalf("unexpected result for %s/%s: %+v", tc.event, tc.outcome, result)
		}
	}
}

func TestNewAuditAlerterRequiresClient(t *testing.T) {
	if _, err := NewAuditAlerter(nil, ""); err == nil {
		t.Fatalf("expected error without client")
	}
}
