package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/claim-validation/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultClientLimit = 20
	defaultWindow      = time.Second
	minRetryDelay      = 5 * time.Millisecond
	keyPrefix          = "claimvalidation:ratelimit"
)

// windowScript counts a call against the current window and reports whether
// it fits, together with the milliseconds left in the window.
var windowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
local ttl = redis.call("PTTL", KEYS[1])
if current > tonumber(ARGV[1]) then
  return {0, ttl}
end
return {1, ttl}
`)

var _ ratelimit.RateLimiter = (*ClientLimiter)(nil)

// ClientLimiter caps validator calls per client across every worker process.
// Calls are counted in fixed windows keyed by client and window index.
type ClientLimiter struct {
	client *goredis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRedisRateLimiter allows limitPerSec validator calls per client per second.
func NewRedisRateLimiter(client *goredis.Client, limitPerSec int) (*ClientLimiter, error) {
	return newClientLimiter(client, int64(limitPerSec), defaultWindow, time.Now, sleepWithContext)
}

func newClientLimiter(
	client *goredis.Client,
	limit int64,
	window time.Duration,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*ClientLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if limit <= 0 {
		limit = defaultClientLimit
	}
	if window <= 0 {
		window = defaultWindow
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &ClientLimiter{
		client: client,
		limit:  limit,
		window: window,
		now:    nowFn,
		sleep:  sleepFn,
	}, nil
}

func (l *ClientLimiter) Allow(ctx context.Context, key string) (bool, error) {
	allowed, _, err := l.take(ctx, key)
	return allowed, err
}

// Wait blocks until key fits in a window. A rejected call sleeps until the
// current window expires instead of polling.
func (l *ClientLimiter) Wait(ctx context.Context, key string) error {
	for {
		allowed, retryIn, err := l.take(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		if err := l.sleep(ctx, retryIn); err != nil {
			return err
		}
	}
}

func (l *ClientLimiter) take(ctx context.Context, key string) (bool, time.Duration, error) {
	if l == nil || l.client == nil {
		return false, 0, errors.New("rate limiter is not initialized")
	}

	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false, 0, errors.New("rate limit key is required")
	}

	windowKey := l.windowKey(key)
	res, err := windowScript.Run(ctx, l.client, []string{windowKey}, l.limit, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to evaluate rate limit for %s: %w", key, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected rate limit reply for %s: %v", key, res)
	}

	retryIn := time.Duration(res[1]) * time.Millisecond
	if retryIn < minRetryDelay || retryIn > l.window {
		retryIn = l.remainingWindow()
	}
	return res[0] == 1, retryIn, nil
}

func (l *ClientLimiter) windowKey(key string) string {
	index := l.now().UTC().UnixMilli() / l.window.Milliseconds()
	return fmt.Sprintf("%s:%s:%d", keyPrefix, key, index)
}

// remainingWindow is the local estimate used when Redis reports no TTL.
func (l *ClientLimiter) remainingWindow() time.Duration {
	elapsed := time.Duration(l.now().UTC().UnixMilli()%l.window.Milliseconds()) * time.Millisecond
	if left := l.window - elapsed; left >= minRetryDelay {
		return left
	}
	return minRetryDelay
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
