package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vcissuer/internal/nonce"
	"vcissuer/pkg/platform/sentinel"
)

// InMemoryStore keeps nonce records in memory. Expired records are swept by
// StartCleanup.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]*nonce.Record
}

// NewInMemory constructs an empty store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*nonce.Record)}
}

func (s *InMemoryStore) Create(_ context.Context, record *nonce.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.Nonce]; exists {
		return fmt.Errorf("nonce %s: %w", record.Nonce, sentinel.ErrConflict)
	}
	copied := *record
	s.records[record.Nonce] = &copied
	return nil
}

func (s *InMemoryStore) Consume(_ context.Context, n string, now time.Time) (*nonce.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[n]
	if !ok {
		return nil, fmt.Errorf("nonce not found: %w", sentinel.ErrNotFound)
	}
	if record.IsSpent() {
		return nil, fmt.Errorf("nonce already consumed: %w", sentinel.ErrAlreadyUsed)
	}
	if record.IsExpired(now) {
		return nil, fmt.Errorf("nonce expired: %w", sentinel.ErrExpired)
	}
	spentAt := now
	record.SpentAt = &spentAt
	copied := *record
	return &copied, nil
}

// StartCleanup sweeps expired records every interval until ctx is done.
func (s *InMemoryStore) StartCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RemoveExpiredAt(ctx, time.Now()); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RemoveExpiredAt deletes records expired as of now, spent or not.
func (s *InMemoryStore) RemoveExpiredAt(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, record := range s.records {
		if record.IsExpired(now) {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
