//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vcissuer/internal/events"
	"vcissuer/internal/events/store"
	txcontext "vcissuer/pkg/platform/tx"
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
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox"))
}

func (s *PostgresStoreSuite) appendEvent(aggregateID string) events.Event {
	e, err := events.NewEvent(events.CredentialMaterialized, aggregateID, map[string]string{"id": aggregateID}, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(context.Background(), e))
	return e
}

func (s *PostgresStoreSuite) TestPublishPendingMarksDelivered() {
	ctx := context.Background()
	s.appendEvent("a")
	s.appendEvent("b")

	var delivered []string
	n, err := s.store.PublishPending(ctx, 10, func(_ context.Context, e events.Event) error {
		delivered = append(delivered, e.AggregateID)
		return nil
	})
	s.Require().NoError(err)
	s.Equal(2, n)
	s.Equal([]string{"a", "b"}, delivered)

	pending, err := s.store.CountPending(ctx)
	s.Require().NoError(err)
	s.Zero(pending)
}

func (s *PostgresStoreSuite) TestPublishPendingKeepsUndelivered() {
	ctx := context.Background()
	s.appendEvent("a")
	s.appendEvent("b")

	n, err := s.store.PublishPending(ctx, 10, func(_ context.Context, e events.Event) error {
		if e.AggregateID == "b" {
			return errors.New("broker down")
		}
		return nil
	})
	s.Require().Error(err)
	s.Equal(1, n)

	pending, err := s.store.CountPending(ctx)
	s.Require().NoError(err)
	s.Equal(1, pending)
}

func (s *PostgresStoreSuite) TestAppendJoinsTransaction() {
	ctx := context.Background()
	runner := txcontext.NewSQLRunner(s.postgres.DB)
	err := runner.RunInTx(ctx, func(txCtx context.Context) error {
		e, err := events.NewEvent(events.CredentialRevoked, "rolled-back", nil, time.Now())
		s.Require().NoError(err)
		s.Require().NoError(s.store.Append(txCtx, e))
		return errors.New("abort")
	})
	s.Require().Error(err)

	pending, err := s.store.CountPending(ctx)
	s.Require().NoError(err)
	s.Zero(pending)
}
