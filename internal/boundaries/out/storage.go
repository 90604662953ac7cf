package out

import (
	"context"

	"github.com/bnema/catalogd/internal/domain"
)

// EntryStore defines the contract for the catalog persistence.
// Point lookups and inserts serve downloads, hashing and uploads; listing and
// deletion serve the catalog endpoints.
type EntryStore interface {
	// GetEntry returns the entry with the given id or domain.ErrNotFound.
	GetEntry(ctx context.Context, id string) (*domain.Entry, error)

	// AddEntry stores a new entry. An empty ID is assigned by the store.
	AddEntry(ctx context.Context, entry *domain.Entry) (string, error)

	// DeleteEntry removes an entry and any digests recorded for it.
	DeleteEntry(ctx context.Context, id string) error

	// ListEntries returns every entry ordered by creation time.
	ListEntries(ctx context.Context) ([]*domain.Entry, error)
}

// DigestCache is the single source of truth for computed digests.
// Implementations must be safe for concurrent use.
type DigestCache interface {
	// Lookup returns the cached digests for an entry. The boolean is false
	// when nothing is cached.
	Lookup(ctx context.Context, entryID string) (domain.CacheEntry, bool, error)

	// Store replaces any previous cache entry for the id.
	Store(ctx context.Context, entryID string, entry domain.CacheEntry) error

	// Invalidate drops the cached digests for the id.
	Invalidate(ctx context.Context, entryID string) error
}
