package out

import "context"

// RateLimiter defines the contract for rate limiting operations.
type RateLimiter interface {
	// Allow checks if a request identified by key is allowed.
	// Key is typically "ip:<address>" or "entry:<id>".
	Allow(ctx context.Context, key string) bool
}
