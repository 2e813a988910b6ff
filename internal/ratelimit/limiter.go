package ratelimit

import (
	"context"
	"strconv"
)

// RateLimiter throttles validator calls per key, usually one key per client.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}

// ClientKey is the limiter key for a submitting client.
func ClientKey(clientID int64) string {
	return "client:" + strconv.FormatInt(clientID, 10)
}
