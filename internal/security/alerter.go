package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "legalmitra:alerts"

var alertCounterScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// AlertResult is the outcome of observing one security event.
type AlertResult struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

// AuditAlerter counts security events per client IP in fixed windows and
// reports when a rule threshold is reached.
type AuditAlerter struct {
	client redis.UniversalClient
	prefix string
}

// NewAuditAlerter wraps an existing Redis client. The caller owns the client.
func NewAuditAlerter(client redis.UniversalClient, prefix string) (*AuditAlerter, error) {
	if client == nil {
		return nil, errors.New("audit alerter requires a redis client")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &AuditAlerter{client: client, prefix: prefix}, nil
}

// Observe records event for ip. Events without a rule are ignored.
func (a *AuditAlerter) Observe(ctx context.Context, event, outcome, ip string) (AlertResult, error) {
	var result AlertResult
	if a == nil {
		return result, nil
	}
	threshold, window, ok := alertRule(event, outcome)
	if !ok {
		return result, nil
	}
	windowMs := window.Milliseconds()
	slot := time.Now().UTC().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%s:%s:%d", a.prefix, sanitizeSegment(event), sanitizeSegment(outcome), sanitizeSegment(ip), slot)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	count, err := alertCounterScript.Run(ctx, a.client, []string{key}, windowMs).Int64()
	if err != nil {
		return result, fmt.Errorf("observe %s: %w", key, err)
	}
	result.Count = count
	result.Threshold = threshold
	result.Window = window
	result.Triggered = count >= threshold
	return result, nil
}

func alertRule(event, outcome string) (threshold int64, window time.Duration, ok bool) {
	event = strings.TrimSpace(event)
	switch strings.TrimSpace(outcome) {
	case "rate_limited":
		return 20, time.Minute, true
	case "fail":
	default:
		return 0, 0, false
	}
	switch event {
	case "auth.login", "auth.signup":
		return 10, 5 * time.Minute, true
	case "chat.authorize":
		return 25, 5 * time.Minute, true
	default:
		return 0, 0, false
	}
}

func sanitizeSegment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	return strings.NewReplacer(":", "_", "|", "_", " ", "_").Replace(in)
}
