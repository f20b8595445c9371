//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vcissuer/internal/credentials"
	"vcissuer/internal/credentials/store"
	"vcissuer/pkg/platform/sentinel"
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
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "issued_credentials"))
}

func (s *PostgresStoreSuite) TestInsertIfAbsent() {
	ctx := context.Background()
	index := 12
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	cred := &credentials.IssuedCredential{
		ID:             "urn:uuid:pg-1",
		Types:          []string{"VerifiableCredential", "VerifiableId"},
		Hash:           "abc",
		IssuedAt:       time.Now().UTC().Truncate(time.Microsecond),
		HolderDID:      "did:key:holder",
		RevocationType: credentials.RevocationStatusList,
		Locator:        &credentials.Locator{ListID: 4, Index: &index},
		ExpiresAt:      &expires,
	}

	inserted, err := s.store.Insert(ctx, cred)
	s.Require().NoError(err)
	s.True(inserted)

	dup := *cred
	dup.Hash = "other"
	inserted, err = s.store.Insert(ctx, &dup)
	s.Require().NoError(err)
	s.False(inserted)

	found, err := s.store.FindByID(ctx, cred.ID)
	s.Require().NoError(err)
	s.Equal("abc", found.Hash)
	s.Equal(cred.Types, found.Types)
	s.Equal(credentials.RevocationStatusList, found.RevocationType)
	s.Require().NotNil(found.Locator)
	s.Equal(int64(4), found.Locator.ListID)
	s.Equal(12, *found.Locator.Index)
	s.Require().NotNil(found.ExpiresAt)
	s.True(expires.Equal(*found.ExpiresAt))
}

func (s *PostgresStoreSuite) TestNonRevocableHasNoLocator() {
	ctx := context.Background()
	_, err := s.store.Insert(ctx, &credentials.IssuedCredential{
		ID:       "urn:uuid:pg-2",
		Types:    []string{"VerifiableCredential"},
		Hash:     "h",
		IssuedAt: time.Now(),
	})
	s.Require().NoError(err)

	found, err := s.store.FindByID(ctx, "urn:uuid:pg-2")
	s.Require().NoError(err)
	s.Nil(found.Locator)
	s.Nil(found.ExpiresAt)
	s.False(found.Revocable())
}

func (s *PostgresStoreSuite) TestMarkRevoked() {
	ctx := context.Background()
	_, err := s.store.Insert(ctx, &credentials.IssuedCredential{
		ID: "urn:uuid:pg-3", Types: []string{"VerifiableCredential"}, Hash: "h", IssuedAt: time.Now(),
	})
	s.Require().NoError(err)

	s.Require().NoError(s.store.MarkRevoked(ctx, "urn:uuid:pg-3"))
	found, err := s.store.FindByID(ctx, "urn:uuid:pg-3")
	s.Require().NoError(err)
	s.True(found.Revoked)

	s.ErrorIs(s.store.MarkRevoked(ctx, "urn:uuid:none"), sentinel.ErrNotFound)
	_, err = s.store.FindByID(ctx, "urn:uuid:none")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestAttributeIDAndDelete() {
	ctx := context.Background()
	_, err := s.store.Insert(ctx, &credentials.IssuedCredential{
		ID: "urn:uuid:pg-4", Types: []string{"VerifiableCredential"}, Hash: "h", IssuedAt: time.Now(),
		AttributeID: "0xattr-pg",
	})
	s.Require().NoError(err)

	found, err := s.store.FindByID(ctx, "urn:uuid:pg-4")
	s.Require().NoError(err)
	s.Equal("0xattr-pg", found.AttributeID)

	s.Require().NoError(s.store.Delete(ctx, "urn:uuid:pg-4"))
	_, err = s.store.FindByID(ctx, "urn:uuid:pg-4")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(ctx, "urn:uuid:pg-4"), sentinel.ErrNotFound)
}

type countingLedger struct {
	calls atomic.Int32
}

func (l *countingLedger) RevokeAccreditation(context.Context, *credentials.IssuedCredential, string) error {
	l.calls.Add(1)
	// widen the window in which an unlocked reader would see the row active
	time.Sleep(50 * time.Millisecond)
	return nil
}

func (s *PostgresStoreSuite) TestConcurrentRevocationHoldsRowLock() {
	ctx := context.Background()
	_, err := s.store.Insert(ctx, &credentials.IssuedCredential{
		ID:             "urn:uuid:pg-race",
		Types:          []string{"VerifiableCredential", "VerifiableAccreditationToAttest"},
		Hash:           "h",
		IssuedAt:       time.Now(),
		HolderDID:      "did:ebsi:sub",
		RevocationType: credentials.RevocationLedgerEntry,
		Locator:        &credentials.Locator{AccreditationID: "https://api.example/issuers/did:ebsi:sub/attributes/0xabc"},
	})
	s.Require().NoError(err)

	ledger := &countingLedger{}
	service := credentials.New(s.store, txcontext.NewSQLRunner(s.postgres.DB),
		credentials.WithLedgerRevoker(ledger),
	)

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.ChangeStatus(ctx, "urn:uuid:pg-race", credentials.StatusRevoked)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		s.NoError(err)
	}
	s.Equal(int32(1), ledger.calls.Load())
	found, err := s.store.FindByID(ctx, "urn:uuid:pg-race")
	s.Require().NoError(err)
	s.True(found.Revoked)
}
