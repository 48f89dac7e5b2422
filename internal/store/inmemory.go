package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ent0n29/healthlog/internal/records"
)

// InMemoryStore is a simple in-process record store for local/dev use.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[string]records.Collection
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]records.Collection)}
}

func (s *InMemoryStore) LoadRecords(_ context.Context, userID string) (records.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID].Clone(), nil
}

func (s *InMemoryStore) SaveRecords(_ context.Context, userID string, c records.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = c.Clone()
	return nil
}

func (s *InMemoryStore) UpdateRecords(_ context.Context, userID string, fn func(*records.Collection) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[userID]
	if !ok {
		return nil
	}
	c := current.Clone()
	if fn(&c) {
		s.users[userID] = c
	}
	return nil
}

func (s *InMemoryStore) AppendRecord(_ context.Context, userID string, r records.Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.users[userID]
	if err := c.Append(r); err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}
	s.users[userID] = c
	return nil
}

func (s *InMemoryStore) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.users))
	for id := range s.users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *InMemoryStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
