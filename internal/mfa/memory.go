package mfa

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	ch        Challenge
	expiresAt time.Time
}

// MemStore is an in-process Store for tests and single-instance
// deployments without Redis.
type MemStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

func (s *MemStore) Put(ctx context.Context, token string, ch Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = memEntry{ch: ch, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemStore) Get(ctx context.Context, token string) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[token]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.entries, token)
		return Challenge{}, ErrNotFound
	}
	return entry.ch, nil
}

func (s *MemStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
	return nil
}
