//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vcissuer/internal/statuslist"
	"vcissuer/internal/statuslist/store"
	"vcissuer/pkg/platform/sentinel"
	"vcissuer/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "proxy_registrations", "status_lists"))
}

func (s *PostgresStoreSuite) TestAllocateCreatesAndAdvances() {
	ctx := context.Background()
	first, created, err := s.store.Allocate(ctx, time.Now())
	s.Require().NoError(err)
	s.True(created)
	s.Equal(0, first.Index)

	second, created, err := s.store.Allocate(ctx, time.Now())
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.ListID, second.ListID)
	s.Equal(1, second.Index)
}

func (s *PostgresStoreSuite) TestAllocateRollsOverFromLastIndex() {
	ctx := context.Background()
	list, err := s.store.Create(ctx, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.postgres.Exec(ctx, `UPDATE status_lists SET current_index = $2 WHERE id = $1`, list.ID, statuslist.MaxIndex))

	res, created, err := s.store.Allocate(ctx, time.Now())
	s.Require().NoError(err)
	s.True(created)
	s.Greater(res.ListID, list.ID)
	s.Equal(0, res.Index)
}

func (s *PostgresStoreSuite) TestConcurrentAllocate() {
	ctx := context.Background()
	const goroutines = 16
	const perGoroutine = 20

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[statuslist.Reservation]int)
	)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				res, _, err := s.store.Allocate(ctx, time.Now())
				if err != nil {
					s.T().Errorf("allocate: %v", err)
					return
				}
				mu.Lock()
				seen[res]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Len(seen, goroutines*perGoroutine)
	lists := make(map[int64]bool)
	for res, count := range seen {
		s.Equal(1, count)
		lists[res.ListID] = true
	}
	s.Len(lists, 1)
}

func (s *PostgresStoreSuite) TestSetBit() {
	ctx := context.Background()
	list, err := s.store.Create(ctx, time.Now())
	s.Require().NoError(err)

	changed, err := s.store.SetBit(ctx, list.ID, 17)
	s.Require().NoError(err)
	s.True(changed)

	changed, err = s.store.SetBit(ctx, list.ID, 17)
	s.Require().NoError(err)
	s.False(changed)

	found, err := s.store.FindByID(ctx, list.ID)
	s.Require().NoError(err)
	s.Len(found.Content, statuslist.ListBytes)
	s.Equal(byte(0x40), found.Content[2])

	_, err = s.store.SetBit(ctx, list.ID+1000, 1)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
