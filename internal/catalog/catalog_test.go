package catalog_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"vcissuer/internal/catalog"
	"vcissuer/internal/catalog/store"
)

type stubGrants struct {
	kinds    []catalog.AccreditationKind
	hasProxy bool
	err      error
}

func (g *stubGrants) GrantedKinds(context.Context) ([]catalog.AccreditationKind, error) {
	return g.kinds, g.err
}

func (g *stubGrants) ProxyRegistered(context.Context) (bool, error) {
	return g.hasProxy, g.err
}

type CatalogSuite struct {
	suite.Suite
	source *store.InMemoryStore
	grants *stubGrants
	cat    *catalog.Catalog
}

func TestCatalogSuite(t *testing.T) {
	suite.Run(t, new(CatalogSuite))
}

func (s *CatalogSuite) SetupTest() {
	ctx := context.Background()
	s.source = store.NewInMemory()
	s.Require().NoError(s.source.Apply(ctx, &catalog.Seed{
		PresentationDefinitions: []catalog.PresentationDefinition{
			{ID: "pd-diploma", Scope: "openid diploma", Content: []byte(`{"id":"pd-diploma"}`)},
		},
		IssuanceFlows: []catalog.IssuanceFlow{
			{CredentialType: "VerifiableDiploma", Scope: "openid", ResponseType: catalog.ResponseIDToken, Revocation: catalog.RevocationStatusList},
			{CredentialType: "VerifiableId", Scope: "openid", ResponseType: catalog.ResponseVPToken, Revocation: catalog.RevocationNone},
		},
		VerifyFlows: []catalog.VerifyFlow{
			{Scope: "openid diploma", ResponseType: catalog.ResponseVPToken, PresentationDefinitionID: "pd-diploma"},
		},
	}))
	s.grants = &stubGrants{hasProxy: true}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.cat = catalog.New(s.source, s.grants, catalog.WithLogger(logger))
}

func (s *CatalogSuite) TestReload() {
	s.Run("empty snapshot before first reload", func() {
		snap := s.cat.Current()
		s.Equal(uint64(0), snap.Version)
		s.False(snap.IsKnownType("VerifiableId"))
	})

	s.Run("reload publishes a new version", func() {
		s.Require().NoError(s.cat.Reload(context.Background()))
		snap := s.cat.Current()
		s.Equal(uint64(1), snap.Version)
		s.True(snap.IsKnownType("VerifiableId"))
		s.True(snap.IsKnownType(catalog.TypeVerifiableCredential))
	})

	s.Run("failed reload keeps the previous snapshot", func() {
		before := s.cat.Current()
		s.grants.err = errors.New("db down")
		s.Require().Error(s.cat.Reload(context.Background()))
		s.Same(before, s.cat.Current())
		s.grants.err = nil
	})
}

func (s *CatalogSuite) TestStatusListFlowsRequireProxy() {
	s.grants.hasProxy = false
	s.Require().NoError(s.cat.Reload(context.Background()))
	snap := s.cat.Current()

	_, ok := snap.IssuanceFlow("VerifiableDiploma")
	s.False(ok)
	reason, unavailable := snap.Unavailable("VerifiableDiploma")
	s.True(unavailable)
	s.Contains(reason, "proxy")

	s.grants.hasProxy = true
	s.Require().NoError(s.cat.Reload(context.Background()))
	flow, ok := s.cat.Current().IssuanceFlow("VerifiableDiploma")
	s.Require().True(ok)
	s.Equal(catalog.RevocationStatusList, flow.Revocation)
}

func (s *CatalogSuite) TestGrantedKindsBecomeKnownTypes() {
	s.grants.kinds = []catalog.AccreditationKind{catalog.KindOnboard, catalog.KindAttest}
	s.Require().NoError(s.cat.Reload(context.Background()))
	snap := s.cat.Current()

	s.True(snap.AllKnown([]string{catalog.TypeVerifiableCredential, string(catalog.KindAttest)}))
	s.False(snap.IsKnownType(string(catalog.KindAccredit)))

	flow, ok := snap.IssuanceFlow(string(catalog.KindAttest))
	s.Require().True(ok)
	s.Equal(catalog.RevocationLedgerEntry, flow.Revocation)
	s.Equal(catalog.ResponseIDToken, flow.ResponseType)
	s.False(flow.Deferred)
	s.Equal(catalog.AttestationSchema, flow.SchemaAddress)
}

func (s *CatalogSuite) TestTrustChainIssuableWithoutGrants() {
	s.Require().NoError(s.cat.Reload(context.Background()))
	snap := s.cat.Current()

	s.Empty(snap.GrantableKinds())
	types := []string{catalog.TypeVerifiableCredential, catalog.TypeVerifiableAttestation, string(catalog.KindTrustChain)}
	s.True(snap.Issuable(types))
	flow, ok := snap.MatchFlow(types)
	s.Require().True(ok)
	s.Equal(string(catalog.KindTrustChain), flow.CredentialType)
	s.Equal(catalog.RevocationLedgerEntry, flow.Revocation)

	s.False(snap.IsKnownType(string(catalog.KindOnboard)), "other kinds still wait for a grant")
	s.Len(snap.CredentialsSupported(true), 2, "the root is not advertised")
}

func (s *CatalogSuite) TestIssuableRequiresAFlow() {
	s.Require().NoError(s.cat.Reload(context.Background()))
	snap := s.cat.Current()

	reservedOnly := []string{catalog.TypeVerifiableCredential, catalog.TypeVerifiableAccreditation}
	s.True(snap.AllKnown(reservedOnly))
	s.False(snap.Issuable(reservedOnly))
	s.False(snap.Issuable([]string{catalog.TypeVerifiableCredential, "Passport"}))
	s.True(snap.Issuable([]string{catalog.TypeVerifiableCredential, "VerifiableId"}))
}

func (s *CatalogSuite) TestMatchFlowSkipsReservedTypes() {
	s.Require().NoError(s.cat.Reload(context.Background()))
	flow, ok := s.cat.Current().MatchFlow([]string{catalog.TypeVerifiableCredential, catalog.TypeVerifiableAttestation, "VerifiableId"})
	s.Require().True(ok)
	s.Equal("VerifiableId", flow.CredentialType)

	_, ok = s.cat.Current().MatchFlow([]string{catalog.TypeVerifiableCredential, "Unknown"})
	s.False(ok)
}

func (s *CatalogSuite) TestCredentialsSupported() {
	s.grants.kinds = []catalog.AccreditationKind{catalog.KindOnboard, catalog.KindAccredit}
	s.Require().NoError(s.cat.Reload(context.Background()))
	snap := s.cat.Current()

	s.Run("configured flows only", func() {
		supported := snap.CredentialsSupported(false)
		s.Require().Len(supported, 2)
		s.Equal([]string{"VerifiableCredential", "VerifiableAttestation", "VerifiableDiploma"}, supported[0].Types)
		s.Equal("jwt_vc", supported[0].Format)
	})

	s.Run("accreditations appended with prefix except onboard", func() {
		supported := snap.CredentialsSupported(true)
		s.Require().Len(supported, 4)
		s.Equal([]string{"VerifiableAccreditation", "VerifiableCredential", "VerifiableAttestation", string(catalog.KindAccredit)}, supported[2].Types)
		s.Equal([]string{"VerifiableCredential", "VerifiableAttestation", string(catalog.KindOnboard)}, supported[3].Types)
	})
}

func (s *CatalogSuite) TestPresentationLookup() {
	s.Require().NoError(s.cat.Reload(context.Background()))
	snap := s.cat.Current()

	v, ok := snap.VerifyFlow("openid diploma")
	s.Require().True(ok)
	d, ok := snap.PresentationDefinition(v.PresentationDefinitionID)
	s.Require().True(ok)
	s.JSONEq(`{"id":"pd-diploma"}`, string(d.Content))
	s.Equal([]string{"openid diploma"}, snap.VerifierScopes())

	_, ok = snap.PresentationDefinitionByScope("unknown")
	s.False(ok)
}
