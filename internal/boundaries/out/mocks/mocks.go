// Package mocks provides testify mocks for the output ports.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/catalogd/internal/domain"
)

// MockEntryStore is a mock implementation of out.EntryStore.
type MockEntryStore struct {
	mock.Mock
}

func (m *MockEntryStore) GetEntry(ctx context.Context, id string) (*domain.Entry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Entry), args.Error(1)
}

func (m *MockEntryStore) AddEntry(ctx context.Context, entry *domain.Entry) (string, error) {
	args := m.Called(ctx, entry)
	return args.String(0), args.Error(1)
}

func (m *MockEntryStore) DeleteEntry(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEntryStore) ListEntries(ctx context.Context) ([]*domain.Entry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Entry), args.Error(1)
}

// MockDigestCache is a mock implementation of out.DigestCache.
type MockDigestCache struct {
	mock.Mock
}

func (m *MockDigestCache) Lookup(ctx context.Context, entryID string) (domain.CacheEntry, bool, error) {
	args := m.Called(ctx, entryID)
	return args.Get(0).(domain.CacheEntry), args.Bool(1), args.Error(2)
}

func (m *MockDigestCache) Store(ctx context.Context, entryID string, entry domain.CacheEntry) error {
	args := m.Called(ctx, entryID, entry)
	return args.Error(0)
}

func (m *MockDigestCache) Invalidate(ctx context.Context, entryID string) error {
	args := m.Called(ctx, entryID)
	return args.Error(0)
}

// MockDigestComputer is a mock implementation of out.DigestComputer.
type MockDigestComputer struct {
	mock.Mock
}

func (m *MockDigestComputer) Compute(ctx context.Context, path string) (domain.Digests, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(domain.Digests), args.Error(1)
}

// MockRateLimiter is a mock implementation of out.RateLimiter.
type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) Allow(ctx context.Context, key string) bool {
	args := m.Called(ctx, key)
	return args.Bool(0)
}
