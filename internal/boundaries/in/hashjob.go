package in

import (
	"context"

	"github.com/bnema/catalogd/internal/domain"
)

// HashCoordinator schedules and tracks digest computations.
type HashCoordinator interface {
	// RequestDigests returns the current status for the entry, scheduling a
	// computation when there is no usable cached result and none running.
	// The path must come from PathValidator.ResolveForRead.
	RequestDigests(ctx context.Context, entryID string, path domain.AuthorizedPath, force bool) (domain.JobStatus, error)

	// PollStatus reports the state of the entry without scheduling anything.
	PollStatus(ctx context.Context, entryID string) (domain.JobStatus, error)

	// Forget drops the job record and cached digests of a finished entry.
	Forget(ctx context.Context, entryID string) error
}
