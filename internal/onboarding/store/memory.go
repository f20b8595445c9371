package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vcissuer/internal/onboarding"
	"vcissuer/pkg/platform/sentinel"
)

// InMemoryStore keeps chain failures in memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	failures map[uuid.UUID]onboarding.Failure
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{failures: make(map[uuid.UUID]onboarding.Failure)}
}

func (s *InMemoryStore) SaveFailure(_ context.Context, f onboarding.Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[f.ID] = f
	return nil
}

// ListPendingFailures returns failures not yet retried, oldest first.
func (s *InMemoryStore) ListPendingFailures(_ context.Context) ([]onboarding.Failure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []onboarding.Failure
	for _, f := range s.failures {
		if f.RetriedAt == nil {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FailedAt.Before(out[j].FailedAt)
	})
	return out, nil
}

func (s *InMemoryStore) MarkRetried(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.failures[id]
	if !ok {
		return fmt.Errorf("onboarding failure %s: %w", id, sentinel.ErrNotFound)
	}
	f.RetriedAt = &at
	s.failures[id] = f
	return nil
}
