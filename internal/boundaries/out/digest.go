package out

import (
	"context"

	"github.com/bnema/catalogd/internal/domain"
)

// DigestComputer reads a file once and returns all of its digests.
// The path handed in has already been authorized.
type DigestComputer interface {
	Compute(ctx context.Context, path string) (domain.Digests, error)
}

// HashMetrics receives observations from the hash job coordinator.
type HashMetrics interface {
	JobStarted()
	JobJoined()
	CacheHit()
	JobFinished(state domain.JobState, seconds float64)
}
