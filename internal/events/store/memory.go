package store

import (
	"context"
	"sync"
	"time"

	"vcissuer/internal/events"
)

// InMemoryStore keeps outbox events in process memory.
type InMemoryStore struct {
	mu     sync.Mutex
	events []events.Event
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// PublishPending holds the store lock while publishing, so concurrent relays
// never deliver the same event twice.
func (s *InMemoryStore) PublishPending(ctx context.Context, limit int, publish func(context.Context, events.Event) error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	published := 0
	for i := range s.events {
		if published >= limit {
			break
		}
		if s.events[i].PublishedAt != nil {
			continue
		}
		if err := publish(ctx, s.events[i]); err != nil {
			return published, err
		}
		now := time.Now()
		s.events[i].PublishedAt = &now
		published++
	}
	return published, nil
}

// Events returns a copy of every stored event.
func (s *InMemoryStore) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.events...)
}

// ByType returns stored events of one type.
func (s *InMemoryStore) ByType(t events.Type) []events.Event {
	var out []events.Event
	for _, e := range s.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
