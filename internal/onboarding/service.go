package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vcissuer/internal/ledger"
	"vcissuer/internal/statuslist"
	"vcissuer/pkg/requestcontext"
)

const (
	ChainDIDOnboarding = "did_onboarding"
	ChainTrustedEntity = "trusted_entity"
)

// Ledger is the subset of ledger calls the chains make.
type Ledger interface {
	DIDRegistered(ctx context.Context, did string) (bool, error)
	IssuerAttribute(ctx context.Context, did, attributeID string) (ledger.Attribute, bool, error)
	Forget(did string)
	OnboardDID(ctx context.Context, vc, did, url string) error
	AddVerificationMethod(ctx context.Context, did, url string) error
	AddVerificationRelationship(ctx context.Context, name, did, url string) error
	SetTrustedIssuerData(ctx context.Context, did, vc, url string) error
	AddIssuerProxy(ctx context.Context, did, prefix, testSuffix, url string) (string, error)
}

// StatusLists creates the list the revocation proxy is registered with.
type StatusLists interface {
	CreateFresh(ctx context.Context) (*statuslist.List, error)
}

// ProxyRegistry records the registered revocation proxy.
type ProxyRegistry interface {
	ProxyRegistered(ctx context.Context) (bool, error)
	SaveProxyRegistration(ctx context.Context, proxyID string, statusListID int64) error
}

type Config struct {
	OperatorDID string
	BaseURL     string
}

// Service builds the registration chains and hands them to the pool.
type Service struct {
	pool     *Pool
	ledger   Ledger
	lists    StatusLists
	proxies  ProxyRegistry
	failures FailureStore
	cfg      Config
	logger   *slog.Logger
}

func New(pool *Pool, l Ledger, lists StatusLists, proxies ProxyRegistry, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pool: pool, ledger: l, lists: lists, proxies: proxies, failures: pool.failures, cfg: cfg, logger: logger}
}

// ScheduleDIDOnboarding enqueues the DID chain for the operator using vc as
// the onboarding credential.
func (s *Service) ScheduleDIDOnboarding(ctx context.Context, vc string) error {
	return s.submit(ctx, s.didChain(ctx, vc))
}

// ScheduleTrustedEntity enqueues the trusted issuer chain for attributeID.
func (s *Service) ScheduleTrustedEntity(ctx context.Context, vc, attributeID string) error {
	return s.submit(ctx, s.trustedEntityChain(ctx, vc, attributeID))
}

func (s *Service) didChain(ctx context.Context, vc string) Chain {
	return Chain{
		Name:      ChainDIDOnboarding,
		DID:       s.cfg.OperatorDID,
		Steps:     s.didSteps(vc),
		RequestID: requestcontext.RequestID(ctx),
		VC:        vc,
	}
}

func (s *Service) trustedEntityChain(ctx context.Context, vc, attributeID string) Chain {
	return Chain{
		Name:        ChainTrustedEntity,
		DID:         s.cfg.OperatorDID,
		Steps:       s.trustedEntitySteps(vc, attributeID),
		RequestID:   requestcontext.RequestID(ctx),
		VC:          vc,
		AttributeID: attributeID,
	}
}

// RetryFailed schedules every recorded failure again, oldest first, and
// marks each one retried once the pool accepts it. Steps re-check the
// ledger, so work a failed run already did is skipped.
func (s *Service) RetryFailed(ctx context.Context) (int, error) {
	if s.failures == nil {
		return 0, errors.New("no onboarding failure store configured")
	}
	pending, err := s.failures.ListPendingFailures(ctx)
	if err != nil {
		return 0, fmt.Errorf("list onboarding failures: %w", err)
	}
	retried := 0
	for _, f := range pending {
		var chain Chain
		switch f.Chain {
		case ChainDIDOnboarding:
			chain = s.didChain(ctx, f.VC)
		case ChainTrustedEntity:
			chain = s.trustedEntityChain(ctx, f.VC, f.AttributeID)
		default:
			s.logger.WarnContext(ctx, "unknown onboarding chain in failure log",
				"failure_id", f.ID,
				"chain", f.Chain,
			)
			continue
		}
		if err := s.submit(ctx, chain); err != nil {
			return retried, err
		}
		if err := s.failures.MarkRetried(ctx, f.ID, requestcontext.Now(ctx)); err != nil {
			return retried, fmt.Errorf("mark onboarding failure retried: %w", err)
		}
		retried++
		s.logger.InfoContext(ctx, "failed onboarding chain resubmitted",
			"failure_id", f.ID,
			"chain", f.Chain,
			"failed_step", f.Step,
			"failed_at", f.FailedAt,
		)
	}
	return retried, nil
}

func (s *Service) submit(ctx context.Context, chain Chain) error {
	if err := s.pool.Submit(chain); err != nil {
		return fmt.Errorf("schedule %s chain: %w", chain.Name, err)
	}
	s.logger.InfoContext(ctx, "onboarding chain scheduled",
		"request_id", chain.RequestID,
		"chain", chain.Name,
		"did", chain.DID,
		"steps", len(chain.Steps),
	)
	return nil
}

func (s *Service) didSteps(vc string) []Step {
	did, url := s.cfg.OperatorDID, s.cfg.BaseURL
	return []Step{
		{Name: "onboard_did", Run: func(ctx context.Context) error {
			registered, err := s.ledger.DIDRegistered(ctx, did)
			if err != nil {
				return err
			}
			if registered {
				return ErrSkipped
			}
			if err := s.ledger.OnboardDID(ctx, vc, did, url); err != nil {
				return err
			}
			s.ledger.Forget(did)
			return nil
		}},
		{Name: "add_verification_method", Run: func(ctx context.Context) error {
			return s.ledger.AddVerificationMethod(ctx, did, url)
		}},
		{Name: "add_authentication", Run: func(ctx context.Context) error {
			return s.ledger.AddVerificationRelationship(ctx, ledger.RelationshipAuthentication, did, url)
		}},
		{Name: "add_assertion_method", Run: func(ctx context.Context) error {
			return s.ledger.AddVerificationRelationship(ctx, ledger.RelationshipAssertionMethod, did, url)
		}},
	}
}

func (s *Service) trustedEntitySteps(vc, attributeID string) []Step {
	did, url := s.cfg.OperatorDID, s.cfg.BaseURL
	// list survives retries of register_proxy so a failed ledger call does
	// not burn another status list.
	var list *statuslist.List
	return []Step{
		{Name: "set_trusted_issuer_data", Run: func(ctx context.Context) error {
			attr, found, err := s.ledger.IssuerAttribute(ctx, did, attributeID)
			if err != nil {
				return err
			}
			if found && attr.Filled() {
				return ErrSkipped
			}
			if err := s.ledger.SetTrustedIssuerData(ctx, did, vc, url); err != nil {
				return err
			}
			s.ledger.Forget(did)
			return nil
		}},
		{Name: "register_proxy", Run: func(ctx context.Context) error {
			registered, err := s.proxies.ProxyRegistered(ctx)
			if err != nil {
				return err
			}
			if registered {
				return ErrSkipped
			}
			if list == nil {
				created, err := s.lists.CreateFresh(ctx)
				if err != nil {
					return err
				}
				list = created
			}
			testSuffix := fmt.Sprintf("/credentials/status/list/%d", list.ID)
			proxyID, err := s.ledger.AddIssuerProxy(ctx, did, url, testSuffix, url)
			if err != nil {
				return err
			}
			return s.proxies.SaveProxyRegistration(ctx, proxyID, list.ID)
		}},
	}
}
