package store

import (
	"context"
	"sort"
	"sync"

	"vcissuer/internal/catalog"
)

// InMemoryStore keeps catalog rows in memory for development and tests.
type InMemoryStore struct {
	mu          sync.RWMutex
	flows       map[string]catalog.IssuanceFlow
	verifies    map[string]catalog.VerifyFlow
	definitions map[string]catalog.PresentationDefinition
}

// NewInMemory constructs an empty store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		flows:       make(map[string]catalog.IssuanceFlow),
		verifies:    make(map[string]catalog.VerifyFlow),
		definitions: make(map[string]catalog.PresentationDefinition),
	}
}

// Apply upserts every row of a seed.
func (s *InMemoryStore) Apply(_ context.Context, seed *catalog.Seed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range seed.PresentationDefinitions {
		s.definitions[d.ID] = d
	}
	for _, f := range seed.IssuanceFlows {
		s.flows[f.CredentialType] = f
	}
	for _, v := range seed.VerifyFlows {
		s.verifies[v.Scope] = v
	}
	return nil
}

func (s *InMemoryStore) ListIssuanceFlows(_ context.Context) ([]catalog.IssuanceFlow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.IssuanceFlow, 0, len(s.flows))
	for _, f := range s.flows {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CredentialType < out[j].CredentialType })
	return out, nil
}

func (s *InMemoryStore) ListVerifyFlows(_ context.Context) ([]catalog.VerifyFlow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.VerifyFlow, 0, len(s.verifies))
	for _, v := range s.verifies {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })
	return out, nil
}

func (s *InMemoryStore) ListPresentationDefinitions(_ context.Context) ([]catalog.PresentationDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.PresentationDefinition, 0, len(s.definitions))
	for _, d := range s.definitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
