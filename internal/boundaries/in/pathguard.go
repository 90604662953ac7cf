// Package in defines input ports (interfaces) for use cases.
// These interfaces define the contract between driving adapters (HTTP, CLI)
// and the business logic (use cases).
package in

import (
	"context"

	"github.com/bnema/catalogd/internal/domain"
)

// PathValidator authorizes filesystem paths against the configured roots.
// Every failure is reported as domain.ErrPathDenied; the precise cause is
// only written to the server log.
type PathValidator interface {
	// ResolveForRead canonicalizes candidate and returns it when it names a
	// regular file strictly inside one of the allowed roots.
	ResolveForRead(ctx context.Context, candidate string) (domain.AuthorizedPath, error)

	// ResolveForWrite turns a client supplied filename into a free,
	// authorized destination inside root. Root must be a configured root.
	ResolveForWrite(ctx context.Context, filename, root string) (domain.AuthorizedPath, error)

	// RootPath maps a root selector (empty, "upload" or a scan root name)
	// to its canonical directory.
	RootPath(selector string) (string, error)
}
