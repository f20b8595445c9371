// Package catalog holds the issuance and verification flow configuration as
// an immutable, versioned snapshot. Reload swaps the snapshot atomically;
// readers never observe a partially loaded catalog.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	strutil "vcissuer/pkg/platform/strings"
)

// Source loads operator-managed flow configuration.
type Source interface {
	ListIssuanceFlows(ctx context.Context) ([]IssuanceFlow, error)
	ListVerifyFlows(ctx context.Context) ([]VerifyFlow, error)
	ListPresentationDefinitions(ctx context.Context) ([]PresentationDefinition, error)
}

// GrantSource reports trust-chain state that shapes the catalog: which
// accreditation kinds this issuer may grant, and whether a revocation proxy
// is registered on the ledger.
type GrantSource interface {
	GrantedKinds(ctx context.Context) ([]AccreditationKind, error)
	ProxyRegistered(ctx context.Context) (bool, error)
}

// Snapshot is one immutable catalog version.
type Snapshot struct {
	Version  uint64
	LoadedAt time.Time

	issuance    map[string]IssuanceFlow
	verify      map[string]VerifyFlow
	definitions map[string]PresentationDefinition
	defsByScope map[string]PresentationDefinition
	grantable   []AccreditationKind
	unavailable map[string]string
	flowOrder   []string
}

// Catalog serves the current snapshot.
type Catalog struct {
	source  Source
	grants  GrantSource
	logger  *slog.Logger
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
	mu      sync.Mutex
}

type Option func(*Catalog)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// New constructs a Catalog serving an empty snapshot until Reload succeeds.
func New(source Source, grants GrantSource, opts ...Option) *Catalog {
	c := &Catalog{source: source, grants: grants, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.current.Store(buildSnapshot(0, nil, nil, nil, nil, true, c.logger))
	return c
}

// Current returns the active snapshot.
func (c *Catalog) Current() *Snapshot {
	return c.current.Load()
}

// Reload reads every source in parallel and publishes a new snapshot.
// On failure the previous snapshot stays active.
func (c *Catalog) Reload(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		flows    []IssuanceFlow
		verifies []VerifyFlow
		defs     []PresentationDefinition
		kinds    []AccreditationKind
		hasProxy bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		flows, err = c.source.ListIssuanceFlows(gctx)
		return err
	})
	g.Go(func() (err error) {
		verifies, err = c.source.ListVerifyFlows(gctx)
		return err
	})
	g.Go(func() (err error) {
		defs, err = c.source.ListPresentationDefinitions(gctx)
		return err
	})
	if c.grants != nil {
		g.Go(func() (err error) {
			kinds, err = c.grants.GrantedKinds(gctx)
			return err
		})
		g.Go(func() (err error) {
			hasProxy, err = c.grants.ProxyRegistered(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("reload catalog: %w", err)
	}

	snap := buildSnapshot(c.version.Add(1), flows, verifies, defs, kinds, hasProxy, c.logger)
	c.current.Store(snap)
	c.logger.InfoContext(ctx, "catalog reloaded",
		"version", snap.Version,
		"issuance_flows", len(snap.issuance),
		"verify_flows", len(snap.verify),
		"grantable_kinds", len(snap.grantable),
		"unavailable", len(snap.unavailable),
	)
	return nil
}

func buildSnapshot(
	version uint64,
	flows []IssuanceFlow,
	verifies []VerifyFlow,
	defs []PresentationDefinition,
	kinds []AccreditationKind,
	hasProxy bool,
	logger *slog.Logger,
) *Snapshot {
	s := &Snapshot{
		Version:     version,
		LoadedAt:    time.Now(),
		issuance:    make(map[string]IssuanceFlow, len(flows)+len(kinds)),
		verify:      make(map[string]VerifyFlow, len(verifies)),
		definitions: make(map[string]PresentationDefinition, len(defs)),
		defsByScope: make(map[string]PresentationDefinition, len(defs)),
		unavailable: make(map[string]string),
	}
	for _, d := range defs {
		s.definitions[d.ID] = d
		s.defsByScope[d.Scope] = d
	}
	for _, f := range flows {
		if f.Revocation == "" {
			f.Revocation = RevocationNone
		}
		switch {
		case !f.Revocation.Configurable():
			s.unavailable[f.CredentialType] = "revocation policy is not configurable"
		case f.Revocation == RevocationStatusList && !hasProxy:
			s.unavailable[f.CredentialType] = "no revocation proxy registered"
		}
		if reason, ok := s.unavailable[f.CredentialType]; ok {
			logger.Warn("issuance flow unavailable", "credential_type", f.CredentialType, "reason", reason)
			continue
		}
		s.issuance[f.CredentialType] = f
		s.flowOrder = append(s.flowOrder, f.CredentialType)
	}
	for _, v := range verifies {
		s.verify[v.Scope] = v
	}
	for _, k := range AccreditationKinds {
		if !slices.Contains(kinds, k) {
			continue
		}
		s.grantable = append(s.grantable, k)
		if _, exists := s.issuance[string(k)]; !exists {
			s.issuance[string(k)] = accreditationFlow(k)
		}
	}
	// The root of the trust chain is issued before any grant exists; its
	// cascade is what produces the first grants.
	if _, exists := s.issuance[string(RootKind)]; !exists {
		s.issuance[string(RootKind)] = accreditationFlow(RootKind)
	}
	return s
}

// IssuanceFlow returns the flow for a credential type.
func (s *Snapshot) IssuanceFlow(credentialType string) (IssuanceFlow, bool) {
	f, ok := s.issuance[credentialType]
	return f, ok
}

// MatchFlow returns the flow of the first non-reserved requested type.
func (s *Snapshot) MatchFlow(types []string) (IssuanceFlow, bool) {
	for _, t := range WithoutReserved(types) {
		if f, ok := s.issuance[t]; ok {
			return f, true
		}
	}
	return IssuanceFlow{}, false
}

// Unavailable reports why a configured flow was excluded, if it was.
func (s *Snapshot) Unavailable(credentialType string) (string, bool) {
	reason, ok := s.unavailable[credentialType]
	return reason, ok
}

// VerifyFlow returns the verification flow for a scope.
func (s *Snapshot) VerifyFlow(scope string) (VerifyFlow, bool) {
	v, ok := s.verify[scope]
	return v, ok
}

// PresentationDefinition looks a definition up by id.
func (s *Snapshot) PresentationDefinition(id string) (PresentationDefinition, bool) {
	d, ok := s.definitions[id]
	return d, ok
}

// PresentationDefinitionByScope looks a definition up by its scope.
func (s *Snapshot) PresentationDefinitionByScope(scope string) (PresentationDefinition, bool) {
	d, ok := s.defsByScope[scope]
	return d, ok
}

// VerifierScopes lists the scopes of every verification flow, sorted.
func (s *Snapshot) VerifierScopes() []string {
	out := make([]string, 0, len(s.verify))
	for scope := range s.verify {
		out = append(out, scope)
	}
	slices.Sort(out)
	return out
}

// GrantableKinds lists the accreditation kinds this issuer may grant.
func (s *Snapshot) GrantableKinds() []AccreditationKind {
	return slices.Clone(s.grantable)
}

// KnownTypes is the set of credential types an authorization request may
// name: the reserved base types, configured flows, grantable kinds and the
// trust-chain root.
func (s *Snapshot) KnownTypes() []string {
	out := slices.Clone(ReservedTypes)
	for t := range s.issuance {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// IsKnownType reports whether t is part of KnownTypes.
func (s *Snapshot) IsKnownType(t string) bool {
	if slices.Contains(ReservedTypes, t) {
		return true
	}
	_, ok := s.issuance[t]
	return ok
}

// AllKnown reports whether every type in types is known.
func (s *Snapshot) AllKnown(types []string) bool {
	return strutil.IsSubset(types, s.KnownTypes())
}

// Issuable reports whether every type in types is known and at least one of
// them names an issuance flow. Reserved base types alone issue nothing.
func (s *Snapshot) Issuable(types []string) bool {
	if !s.AllKnown(types) {
		return false
	}
	_, ok := s.MatchFlow(types)
	return ok
}

// CredentialsSupported renders the issuer metadata entries. Accreditation
// kinds are listed only when includeAccreditations is set.
func (s *Snapshot) CredentialsSupported(includeAccreditations bool) []SupportedCredential {
	out := make([]SupportedCredential, 0, len(s.flowOrder)+len(s.grantable))
	for _, t := range s.flowOrder {
		out = append(out, SupportedCredential{
			Format: "jwt_vc",
			Types:  []string{TypeVerifiableCredential, TypeVerifiableAttestation, t},
		})
	}
	if !includeAccreditations {
		return out
	}
	for _, k := range s.grantable {
		types := []string{TypeVerifiableCredential, TypeVerifiableAttestation, string(k)}
		if k != KindOnboard {
			types = append([]string{TypeVerifiableAccreditation}, types...)
		}
		out = append(out, SupportedCredential{Format: "jwt_vc", Types: types})
	}
	return out
}
