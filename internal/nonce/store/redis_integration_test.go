//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vcissuer/internal/nonce"
	"vcissuer/internal/nonce/store"
	"vcissuer/pkg/platform/sentinel"
	"vcissuer/pkg/requestcontext"
	"vcissuer/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = store.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func newRecord(ttl time.Duration) *nonce.Record {
	now := time.Now()
	return &nonce.Record{
		Nonce:     uuid.NewString(),
		State:     []byte(`{"client_id":"did:key:wallet"}`),
		DID:       "did:key:wallet",
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func (s *RedisStoreSuite) TestCreateAndConsume() {
	ctx := context.Background()
	record := newRecord(time.Minute)
	s.Require().NoError(s.store.Create(ctx, record))
	s.Require().ErrorIs(s.store.Create(ctx, record), sentinel.ErrConflict)

	consumed, err := s.store.Consume(ctx, record.Nonce, time.Now())
	s.Require().NoError(err)
	s.Equal(record.DID, consumed.DID)
	s.JSONEq(string(record.State), string(consumed.State))
	s.NotNil(consumed.SpentAt)

	_, err = s.store.Consume(ctx, record.Nonce, time.Now())
	s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)

	_, err = s.store.Consume(ctx, "missing", time.Now())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestRecordExpiresWithTTL() {
	ctx := context.Background()
	record := newRecord(time.Minute)
	s.Require().NoError(s.store.Create(ctx, record))

	ttl, err := s.redis.Client.PTTL(ctx, "nonce:{"+record.Nonce+"}").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, time.Minute)
}

func (s *RedisStoreSuite) TestTTLFollowsRequestClock() {
	issuedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), issuedAt)
	record := &nonce.Record{
		Nonce:     uuid.NewString(),
		DID:       "did:key:wallet",
		CreatedAt: issuedAt,
		ExpiresAt: issuedAt.Add(10 * time.Minute),
	}
	s.Require().NoError(s.store.Create(ctx, record))

	ttl, err := s.redis.Client.PTTL(ctx, "nonce:{"+record.Nonce+"}").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 9*time.Minute)
	s.LessOrEqual(ttl, 10*time.Minute)
}

func (s *RedisStoreSuite) TestConcurrentConsume() {
	ctx := context.Background()
	record := newRecord(time.Minute)
	s.Require().NoError(s.store.Create(ctx, record))

	const goroutines = 50
	var wg sync.WaitGroup
	var successCount atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.store.Consume(ctx, record.Nonce, time.Now()); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), successCount.Load())
}
