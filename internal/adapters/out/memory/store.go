// Package memory keeps the catalog and the digest cache in process memory.
// It backs the "memory" storage driver and is handy in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bnema/catalogd/internal/boundaries/out"
	"github.com/bnema/catalogd/internal/domain"
)

var (
	_ out.EntryStore  = (*Store)(nil)
	_ out.DigestCache = (*Store)(nil)
)

// Store is a map-backed catalog and digest cache.
type Store struct {
	mu      sync.RWMutex
	entries map[string]domain.Entry
	digests map[string]domain.CacheEntry
	now     func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		entries: make(map[string]domain.Entry),
		digests: make(map[string]domain.CacheEntry),
		now:     time.Now,
	}
}

func (s *Store) GetEntry(_ context.Context, id string) (*domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (s *Store) AddEntry(_ context.Context, entry *domain.Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *entry
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if _, exists := s.entries[e.ID]; exists {
		return "", domain.ErrEntryExists
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.entries[e.ID] = e
	return e.ID, nil
}

func (s *Store) DeleteEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.entries, id)
	delete(s.digests, id)
	return nil
}

func (s *Store) ListEntries(_ context.Context) ([]*domain.Entry, error) {
	s.mu.RLock()
	list := make([]*domain.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		e := e
		list = append(list, &e)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

func (s *Store) Lookup(_ context.Context, entryID string) (domain.CacheEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.digests[entryID]
	return c, ok, nil
}

func (s *Store) Store(_ context.Context, entryID string, entry domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.digests[entryID] = entry
	return nil
}

func (s *Store) Invalidate(_ context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.digests, entryID)
	return nil
}
