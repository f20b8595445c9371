package nonce_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vcissuer/internal/nonce"
	"vcissuer/internal/nonce/store"
	dErrors "vcissuer/pkg/domain-errors"
	"vcissuer/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	service *nonce.Service
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.service = nonce.New(s.store, nonce.WithTTL(time.Minute), nonce.WithLogger(logger))
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *ServiceSuite) ctxAt(t time.Time) context.Context {
	return testutil.FixedContext(t)
}

func (s *ServiceSuite) TestIssueAndConsume() {
	state := nonce.AuthorizationState{
		ResponseType:    "id_token",
		ClientID:        "did:key:wallet",
		RedirectURI:     "openid://",
		CredentialTypes: []string{"VerifiableCredential", "VerifiableId"},
	}
	record, err := s.service.Issue(s.ctxAt(s.now), "did:key:wallet", state)
	s.Require().NoError(err)
	s.NotEmpty(record.Nonce)
	s.Equal(s.now.Add(time.Minute), record.ExpiresAt)

	consumed, err := s.service.Consume(s.ctxAt(s.now.Add(30*time.Second)), record.Nonce)
	s.Require().NoError(err)
	s.NotNil(consumed.SpentAt)

	var decoded nonce.AuthorizationState
	s.Require().NoError(nonce.DecodeState(consumed, &decoded))
	s.Equal(state, decoded)
}

func (s *ServiceSuite) TestConsumeRejections() {
	s.Run("second consume is rejected", func() {
		record, err := s.service.Issue(s.ctxAt(s.now), "did:key:a", map[string]string{"k": "v"})
		s.Require().NoError(err)

		_, err = s.service.Consume(s.ctxAt(s.now), record.Nonce)
		s.Require().NoError(err)

		_, err = s.service.Consume(s.ctxAt(s.now), record.Nonce)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		s.Contains(err.Error(), "already used")
	})

	s.Run("expired nonce is rejected", func() {
		record, err := s.service.Issue(s.ctxAt(s.now), "did:key:b", nil)
		s.Require().NoError(err)

		_, err = s.service.Consume(s.ctxAt(s.now.Add(2*time.Minute)), record.Nonce)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		s.Contains(err.Error(), "expired")
	})

	s.Run("unknown nonce is rejected", func() {
		_, err := s.service.Consume(s.ctxAt(s.now), "missing")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("empty nonce is rejected", func() {
		_, err := s.service.Consume(s.ctxAt(s.now), "")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestIssueWithNonceConflict() {
	_, err := s.service.IssueWithNonce(s.ctxAt(s.now), "fixed", "did:key:a", nil)
	s.Require().NoError(err)

	_, err = s.service.IssueWithNonce(s.ctxAt(s.now), "fixed", "did:key:a", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}
