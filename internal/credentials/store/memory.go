package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"vcissuer/internal/credentials"
	"vcissuer/pkg/platform/sentinel"
)

// InMemoryStore keeps issued credentials in a map.
type InMemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]*credentials.IssuedCredential
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{credentials: make(map[string]*credentials.IssuedCredential)}
}

func (s *InMemoryStore) Insert(_ context.Context, c *credentials.IssuedCredential) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[c.ID]; ok {
		return false, nil
	}
	s.credentials[c.ID] = clone(c)
	return true, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*credentials.IssuedCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[id]
	if !ok {
		return nil, fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	return clone(c), nil
}

// FindForUpdate is FindByID; callers serialize through the lock runner.
func (s *InMemoryStore) FindForUpdate(ctx context.Context, id string) (*credentials.IssuedCredential, error) {
	return s.FindByID(ctx, id)
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[id]; !ok {
		return fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	delete(s.credentials, id)
	return nil
}

func (s *InMemoryStore) MarkRevoked(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[id]
	if !ok {
		return fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	c.Revoked = true
	return nil
}

func clone(c *credentials.IssuedCredential) *credentials.IssuedCredential {
	out := *c
	out.Types = slices.Clone(c.Types)
	if c.Locator != nil {
		l := *c.Locator
		if c.Locator.Index != nil {
			idx := *c.Locator.Index
			l.Index = &idx
		}
		out.Locator = &l
	}
	if c.ExpiresAt != nil {
		exp := *c.ExpiresAt
		out.ExpiresAt = &exp
	}
	return &out
}
