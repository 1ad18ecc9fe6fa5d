package ratelimit

import "context"

// RateLimiter caps provider send throughput.
type RateLimiter interface {
	Allow(ctx context.Context, provider string) (bool, error)
	Wait(ctx context.Context, provider string) error
}
