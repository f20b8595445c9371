package onboarding_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vcissuer/internal/ledger"
	"vcissuer/internal/onboarding"
	onbstore "vcissuer/internal/onboarding/store"
	"vcissuer/internal/statuslist"
	slstore "vcissuer/internal/statuslist/store"
)

const (
	operatorDID = "did:ebsi:operator"
	baseURL     = "https://issuer.example"
)

type fakeLedger struct {
	mu            sync.Mutex
	registered    bool
	attribute     ledger.Attribute
	attributeSeen bool
	calls         []string
	proxySuffixes []string
	failProxy     int
	forgotten     int
}

func (f *fakeLedger) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeLedger) DIDRegistered(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered, nil
}

func (f *fakeLedger) IssuerAttribute(context.Context, string, string) (ledger.Attribute, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attribute, f.attributeSeen, nil
}

func (f *fakeLedger) Forget(string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten++
}

func (f *fakeLedger) OnboardDID(context.Context, string, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("onboardDid")
	return nil
}

func (f *fakeLedger) AddVerificationMethod(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("addVerificationMethod")
	return nil
}

func (f *fakeLedger) AddVerificationRelationship(_ context.Context, name, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("addVerificationRelationship:" + name)
	return nil
}

func (f *fakeLedger) SetTrustedIssuerData(context.Context, string, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("setTrustedIssuerData")
	return nil
}

func (f *fakeLedger) AddIssuerProxy(_ context.Context, _, _, testSuffix, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proxySuffixes = append(f.proxySuffixes, testSuffix)
	if f.failProxy > 0 {
		f.failProxy--
		return "", errors.New("ledger timeout")
	}
	f.record("addIssuerProxy")
	return "0xproxy", nil
}

type fakeProxies struct {
	mu     sync.Mutex
	saved  bool
	proxy  string
	listID int64
}

func (f *fakeProxies) ProxyRegistered(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved, nil
}

func (f *fakeProxies) SaveProxyRegistration(_ context.Context, proxyID string, listID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved, f.proxy, f.listID = true, proxyID, listID
	return nil
}

type ServiceSuite struct {
	suite.Suite
	ledger  *fakeLedger
	proxies *fakeProxies
	lists   *slstore.InMemoryStore
	pool    *onboarding.Pool
	service *onboarding.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ledger = &fakeLedger{}
	s.proxies = &fakeProxies{}
	s.lists = slstore.NewInMemory()
	s.pool = onboarding.NewPool(poolConfig(), onboarding.WithLogger(discardLogger()))
	s.pool.Start(context.Background())
	s.service = onboarding.New(s.pool, s.ledger, statuslist.New(s.lists), s.proxies,
		onboarding.Config{OperatorDID: operatorDID, BaseURL: baseURL}, discardLogger())
}

func (s *ServiceSuite) drain() {
	s.Require().NoError(s.pool.Shutdown(context.Background()))
}

func (s *ServiceSuite) TestDIDChain() {
	s.Require().NoError(s.service.ScheduleDIDOnboarding(context.Background(), "onboard.jwt"))
	s.drain()

	s.Equal([]string{
		"onboardDid",
		"addVerificationMethod",
		"addVerificationRelationship:authentication",
		"addVerificationRelationship:assertionMethod",
	}, s.ledger.calls)
	s.Equal(1, s.ledger.forgotten)
}

func (s *ServiceSuite) TestDIDChainSkipsRegisteredDID() {
	s.ledger.registered = true
	s.Require().NoError(s.service.ScheduleDIDOnboarding(context.Background(), "onboard.jwt"))
	s.drain()

	s.Equal([]string{
		"addVerificationMethod",
		"addVerificationRelationship:authentication",
		"addVerificationRelationship:assertionMethod",
	}, s.ledger.calls)
}

func (s *ServiceSuite) TestTrustedEntityChain() {
	s.Require().NoError(s.service.ScheduleTrustedEntity(context.Background(), "tao.jwt", "0xattr"))
	s.drain()

	s.Equal([]string{"setTrustedIssuerData", "addIssuerProxy"}, s.ledger.calls)
	s.True(s.proxies.saved)
	s.Equal("0xproxy", s.proxies.proxy)
	s.Equal([]string{"/credentials/status/list/1"}, s.ledger.proxySuffixes)
	s.EqualValues(1, s.proxies.listID)
}

func (s *ServiceSuite) TestTrustedEntityChainSkipsDoneWork() {
	s.ledger.attributeSeen = true
	s.ledger.attribute.Attribute.Body = "existing.jwt"
	s.proxies.saved = true

	s.Require().NoError(s.service.ScheduleTrustedEntity(context.Background(), "tao.jwt", "0xattr"))
	s.drain()

	s.Empty(s.ledger.calls)
}

func (s *ServiceSuite) TestEmptyAttributeBodyIsRewritten() {
	s.ledger.attributeSeen = true
	s.proxies.saved = true

	s.Require().NoError(s.service.ScheduleTrustedEntity(context.Background(), "tao.jwt", "0xattr"))
	s.drain()

	s.Equal([]string{"setTrustedIssuerData"}, s.ledger.calls)
}

func (s *ServiceSuite) TestProxyRetryReusesStatusList() {
	s.ledger.failProxy = 2

	s.Require().NoError(s.service.ScheduleTrustedEntity(context.Background(), "tao.jwt", "0xattr"))
	s.drain()

	s.Equal([]string{
		"/credentials/status/list/1",
		"/credentials/status/list/1",
		"/credentials/status/list/1",
	}, s.ledger.proxySuffixes)
	s.True(s.proxies.saved)
	s.EqualValues(1, s.proxies.listID)
}

func (s *ServiceSuite) TestScheduleAfterShutdown() {
	s.drain()
	err := s.service.ScheduleDIDOnboarding(context.Background(), "onboard.jwt")
	s.Require().Error(err)
	s.ErrorIs(err, onboarding.ErrClosed)
}

func (s *ServiceSuite) TestRetryFailedChainCompletes() {
	ctx := context.Background()
	failures := onbstore.NewInMemory()
	pool := onboarding.NewPool(poolConfig(), onboarding.WithLogger(discardLogger()), onboarding.WithFailures(failures))
	pool.Start(ctx)
	service := onboarding.New(pool, s.ledger, statuslist.New(s.lists), s.proxies,
		onboarding.Config{OperatorDID: operatorDID, BaseURL: baseURL}, discardLogger())

	// every attempt of the first run fails
	s.ledger.failProxy = int(poolConfig().MaxRetries) + 1
	s.Require().NoError(service.ScheduleTrustedEntity(ctx, "tao.jwt", "0xattr"))
	s.Require().Eventually(func() bool {
		pending, err := failures.ListPendingFailures(ctx)
		return err == nil && len(pending) == 1
	}, 5*time.Second, 10*time.Millisecond)

	pending, err := failures.ListPendingFailures(ctx)
	s.Require().NoError(err)
	s.Equal(onboarding.ChainTrustedEntity, pending[0].Chain)
	s.Equal("register_proxy", pending[0].Step)
	s.Equal("0xattr", pending[0].AttributeID)
	s.Equal("tao.jwt", pending[0].VC)
	s.False(s.proxies.saved)

	retried, err := service.RetryFailed(ctx)
	s.Require().NoError(err)
	s.Equal(1, retried)
	s.Require().NoError(pool.Shutdown(ctx))

	s.True(s.proxies.saved)
	s.Contains(s.ledger.calls, "addIssuerProxy")
	pending, err = failures.ListPendingFailures(ctx)
	s.Require().NoError(err)
	s.Empty(pending)

	retried, err = service.RetryFailed(ctx)
	s.Require().NoError(err)
	s.Zero(retried, "nothing left to retry")
}

func (s *ServiceSuite) TestRetryFailedWithoutStore() {
	_, err := s.service.RetryFailed(context.Background())
	s.Error(err)
}
