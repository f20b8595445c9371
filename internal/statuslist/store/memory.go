package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vcissuer/internal/statuslist"
	"vcissuer/pkg/platform/sentinel"
)

// InMemoryStore keeps status lists in process memory.
type InMemoryStore struct {
	mu     sync.Mutex
	lists  map[int64]*statuslist.List
	lastID int64
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{lists: make(map[int64]*statuslist.List)}
}

func (s *InMemoryStore) Allocate(_ context.Context, now time.Time) (statuslist.Reservation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if latest, ok := s.lists[s.lastID]; ok && latest.CurrentIndex < statuslist.MaxIndex {
		latest.CurrentIndex++
		return statuslist.Reservation{ListID: latest.ID, Index: latest.CurrentIndex}, false, nil
	}
	list := s.createLocked(now)
	return statuslist.Reservation{ListID: list.ID, Index: 0}, true, nil
}

func (s *InMemoryStore) Create(_ context.Context, now time.Time) (*statuslist.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneList(s.createLocked(now)), nil
}

func (s *InMemoryStore) createLocked(now time.Time) *statuslist.List {
	s.lastID++
	list := &statuslist.List{
		ID:        s.lastID,
		Content:   statuslist.NewContent(),
		CreatedAt: now,
	}
	s.lists[list.ID] = list
	return list
}

func (s *InMemoryStore) FindByID(_ context.Context, id int64) (*statuslist.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.lists[id]
	if !ok {
		return nil, fmt.Errorf("status list %d: %w", id, sentinel.ErrNotFound)
	}
	return cloneList(list), nil
}

func (s *InMemoryStore) SetBit(_ context.Context, id int64, index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.lists[id]
	if !ok {
		return false, fmt.Errorf("status list %d: %w", id, sentinel.ErrNotFound)
	}
	return statuslist.SetBit(list.Content, index), nil
}

func cloneList(l *statuslist.List) *statuslist.List {
	c := *l
	c.Content = append([]byte(nil), l.Content...)
	return &c
}
