// Package accreditation derives what the operator may grant from the
// trust-chain credentials it issues to itself, and issues accreditations to
// whitelisted entities.
package accreditation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vcissuer/internal/accreditation/metrics"
	"vcissuer/internal/catalog"
	"vcissuer/internal/credentials"
	"vcissuer/internal/events"
	"vcissuer/internal/ledger"
	"vcissuer/internal/nonce"
	dErrors "vcissuer/pkg/domain-errors"
	"vcissuer/pkg/platform/sentinel"
	txcontext "vcissuer/pkg/platform/tx"
	"vcissuer/pkg/platform/upstream"
	"vcissuer/pkg/requestcontext"
)

// Store persists grants, whitelist entries, terms of use and the proxy
// registration.
type Store interface {
	// CreateGrants stores grants and terms unless a grant for attributeID
	// already exists. The check and the insert are atomic. created is false
	// when nothing was written; firstEver reports that no grant existed at
	// all before this call.
	CreateGrants(ctx context.Context, attributeID string, grants []Grant, terms []TermsOfUse) (created, firstEver bool, err error)
	ListGrants(ctx context.Context) ([]Grant, error)
	FindGrants(ctx context.Context, ids []uuid.UUID) ([]Grant, error)
	// FindGrantByKind returns the oldest grant of kind.
	FindGrantByKind(ctx context.Context, kind catalog.AccreditationKind) (*Grant, error)
	SaveWhitelistEntry(ctx context.Context, entry *WhitelistEntry) error
	FindWhitelistEntry(ctx context.Context, kind catalog.AccreditationKind, did string) (*WhitelistEntry, error)
	// DeleteByAttribute removes the grants and terms of use derived from
	// attributeID, and every whitelist entry backed by one of those grants.
	DeleteByAttribute(ctx context.Context, attributeID string) (Removal, error)
	FindProxyRegistration(ctx context.Context) (*ProxyRegistration, error)
	SaveProxyRegistration(ctx context.Context, reg ProxyRegistration) error
}

// Scheduler enqueues onboarding chains.
type Scheduler interface {
	ScheduleDIDOnboarding(ctx context.Context, vc string) error
	ScheduleTrustedEntity(ctx context.Context, vc, attributeID string) error
}

// Ledger is the subset of ledger calls accreditation needs.
type Ledger interface {
	AddTrustedIssuer(ctx context.Context, p ledger.TrustedIssuer) (json.RawMessage, error)
	RevokeAccreditation(ctx context.Context, p ledger.Revocation) (json.RawMessage, error)
}

// Nonces mints pre-authorized codes.
type Nonces interface {
	IssueWithNonce(ctx context.Context, code, did string, state any) (*nonce.Record, error)
}

// Reloader refreshes the catalog after grants or the proxy change.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Emitter writes outbox events.
type Emitter interface {
	Emit(ctx context.Context, eventType events.Type, aggregateID string, payload any) error
}

// Config identifies the operator.
type Config struct {
	OperatorDID string
	BaseURL     string
}

// Service is the accreditation cascade engine.
type Service struct {
	store     Store
	tx        txcontext.Runner
	cfg       Config
	scheduler Scheduler
	ledger    Ledger
	nonces    Nonces
	reloader  Reloader
	events    Emitter
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithScheduler(sched Scheduler) Option {
	return func(s *Service) {
		s.scheduler = sched
	}
}

func WithLedger(l Ledger) Option {
	return func(s *Service) {
		s.ledger = l
	}
}

func WithNonces(n Nonces) Option {
	return func(s *Service) {
		s.nonces = n
	}
}

func WithReloader(r Reloader) Option {
	return func(s *Service) {
		s.reloader = r
	}
}

func WithEvents(e Emitter) Option {
	return func(s *Service) {
		s.events = e
	}
}

func New(store Store, tx txcontext.Runner, cfg Config, opts ...Option) *Service {
	s := &Service{store: store, tx: tx, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetScheduler wires the onboarding scheduler after construction; the
// scheduler itself depends on this service for proxy registrations.
func (s *Service) SetScheduler(sched Scheduler) {
	s.scheduler = sched
}

// OnMaterialized runs the cascade for a newly recorded credential. Only
// accreditation credentials the operator issued to itself trigger it.
// Re-processing a credential whose attribute already produced grants is a
// no-op.
func (s *Service) OnMaterialized(ctx context.Context, cred *credentials.IssuedCredential, claims *credentials.Claims) error {
	if cred.HolderDID == "" || cred.HolderDID != s.cfg.OperatorDID {
		return nil
	}
	kind, ok := KindOf(cred.Types)
	if !ok {
		return nil
	}
	requestID := requestcontext.RequestID(ctx)

	if kind == catalog.KindOnboard {
		s.metrics.IncrementCascade(string(kind), "onboard_only")
		s.schedule(ctx, "did_onboarding", func() error {
			return s.scheduler.ScheduleDIDOnboarding(ctx, claims.Raw)
		})
		return nil
	}

	attributeID := claims.Subject.ReservedAttributeID
	if attributeID == "" {
		return dErrors.New(dErrors.CodeValidation, "accreditation credential is missing reservedAttributeId")
	}

	grants, terms := derive(kind, cred.ID, attributeID, claims.Subject.AccreditedFor, requestcontext.Now(ctx))
	var created, firstEver bool
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		created, firstEver, err = s.store.CreateGrants(txCtx, attributeID, grants, terms)
		if err != nil || !created {
			return err
		}
		return s.emitGranted(txCtx, kind, attributeID, grants)
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store accreditation grants")
	}
	if !created {
		s.logger.InfoContext(ctx, "accreditation already processed",
			"request_id", requestID,
			"attribute_id", attributeID,
			"kind", kind,
		)
		s.metrics.IncrementCascade(string(kind), "duplicate")
		return nil
	}

	s.metrics.IncrementCascade(string(kind), "granted")
	for _, k := range distinctKinds(grants) {
		n := 0
		for _, g := range grants {
			if g.Kind == k {
				n++
			}
		}
		s.metrics.AddGrants(string(k), n)
	}
	s.logger.InfoContext(ctx, "accreditation grants created",
		"request_id", requestID,
		"attribute_id", attributeID,
		"kind", kind,
		"grants", len(grants),
		"terms_of_use", len(terms),
		"first_accreditation", firstEver,
	)
	s.reload(ctx)

	s.schedule(ctx, "trusted_entity", func() error {
		return s.scheduler.ScheduleTrustedEntity(ctx, claims.Raw, attributeID)
	})
	if kind != catalog.KindAttest && firstEver {
		s.schedule(ctx, "did_onboarding", func() error {
			return s.scheduler.ScheduleDIDOnboarding(ctx, claims.Raw)
		})
	}
	return nil
}

// OnDeleted drops what the deleted accreditation credential granted. The
// catalog is reloaded when anything was removed.
func (s *Service) OnDeleted(ctx context.Context, cred *credentials.IssuedCredential) error {
	kind, ok := KindOf(cred.Types)
	if !ok || cred.AttributeID == "" {
		return nil
	}
	removed, err := s.store.DeleteByAttribute(ctx, cred.AttributeID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove accreditation grants")
	}
	if removed.Empty() {
		return nil
	}
	s.metrics.IncrementCascade(string(kind), "withdrawn")
	s.logger.InfoContext(ctx, "accreditation withdrawn",
		"request_id", requestcontext.RequestID(ctx),
		"credential_id", cred.ID,
		"attribute_id", cred.AttributeID,
		"grants", removed.Grants,
		"terms_of_use", removed.Terms,
		"whitelist_entries", removed.Whitelist,
	)
	s.reload(ctx)
	return nil
}

// derive builds the grants and terms of use an accreditation of kind yields.
func derive(kind catalog.AccreditationKind, credentialID, attributeID string, accreditedFor []credentials.AccreditedFor, now time.Time) ([]Grant, []TermsOfUse) {
	newGrant := func(k catalog.AccreditationKind, types []string, schema string) Grant {
		return Grant{ID: uuid.New(), Kind: k, AccreditedFor: types, SchemaAddress: schema, AttributeID: attributeID, CreatedAt: now}
	}
	newTerms := func(types []string, schema string) TermsOfUse {
		return TermsOfUse{ID: uuid.New(), Types: types, SchemaAddress: schema, AttributeID: attributeID, CredentialID: credentialID, CreatedAt: now}
	}

	var (
		grants []Grant
		terms  []TermsOfUse
	)
	switch kind {
	case catalog.KindTrustChain, catalog.KindAccredit:
		pairs := accreditedFor
		if len(pairs) == 0 {
			pairs = []credentials.AccreditedFor{{}}
		}
		for _, p := range pairs {
			grants = append(grants,
				newGrant(catalog.KindAccredit, p.Types, p.SchemaAddress()),
				newGrant(catalog.KindAttest, p.Types, p.SchemaAddress()),
			)
			terms = append(terms, newTerms(p.Types, p.SchemaAddress()))
		}
		grants = append(grants, newGrant(catalog.KindOnboard, nil, ""))
	case catalog.KindAttest:
		grants = append(grants, newGrant(catalog.KindOnboard, nil, ""))
		for _, p := range accreditedFor {
			terms = append(terms, newTerms(p.Types, p.SchemaAddress()))
		}
	}
	return grants, terms
}

func (s *Service) emitGranted(ctx context.Context, kind catalog.AccreditationKind, attributeID string, grants []Grant) error {
	if s.events == nil {
		return nil
	}
	ids := make([]string, len(grants))
	for i, g := range grants {
		ids[i] = g.ID.String()
	}
	return s.events.Emit(ctx, events.AccreditationGranted, attributeID, events.GrantPayload{
		AttributeID: attributeID,
		Kind:        string(kind),
		GrantIDs:    ids,
		RequestID:   requestcontext.RequestID(ctx),
	})
}

// schedule enqueues a chain. A rejected chain is logged; the grants are
// already committed and the caller's request succeeds.
func (s *Service) schedule(ctx context.Context, chain string, enqueue func() error) {
	if s.scheduler == nil {
		s.logger.WarnContext(ctx, "no onboarding scheduler configured",
			"request_id", requestcontext.RequestID(ctx),
			"chain", chain,
		)
		return
	}
	err := enqueue()
	s.metrics.IncrementChainScheduled(chain, err == nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to schedule onboarding chain",
			"request_id", requestcontext.RequestID(ctx),
			"chain", chain,
			"error", err,
		)
	}
}

func (s *Service) reload(ctx context.Context) {
	if s.reloader == nil {
		return
	}
	if err := s.reloader.Reload(ctx); err != nil {
		s.logger.WarnContext(ctx, "catalog reload failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

// GrantedKinds lists the accreditation kinds the operator holds grants for.
func (s *Service) GrantedKinds(ctx context.Context) ([]catalog.AccreditationKind, error) {
	grants, err := s.store.ListGrants(ctx)
	if err != nil {
		return nil, err
	}
	return distinctKinds(grants), nil
}

// ProxyRegistered reports whether the revocation proxy is on the ledger.
func (s *Service) ProxyRegistered(ctx context.Context) (bool, error) {
	_, err := s.store.FindProxyRegistration(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ProxyRegistration returns the registered proxy, or nil when there is none.
func (s *Service) ProxyRegistration(ctx context.Context) (*ProxyRegistration, error) {
	reg, err := s.store.FindProxyRegistration(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// SaveProxyRegistration persists the registered proxy and reloads the
// catalog so status-list flows become available.
func (s *Service) SaveProxyRegistration(ctx context.Context, proxyID string, statusListID int64) error {
	reg := ProxyRegistration{ProxyID: proxyID, StatusListID: statusListID, CreatedAt: requestcontext.Now(ctx)}
	if err := s.store.SaveProxyRegistration(ctx, reg); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "revocation proxy registered",
		"proxy_id", proxyID,
		"status_list_id", statusListID,
	)
	s.reload(ctx)
	return nil
}

// ListGrants returns every grant.
func (s *Service) ListGrants(ctx context.Context) ([]Grant, error) {
	grants, err := s.store.ListGrants(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list grants")
	}
	return grants, nil
}

// Whitelist allows did to receive kind through direct issuance. With no
// grantIDs every grant of kind backs the entry.
func (s *Service) Whitelist(ctx context.Context, kind catalog.AccreditationKind, did string, grantIDs []uuid.UUID) (*WhitelistEntry, error) {
	if did == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "did is required")
	}
	grants, err := s.store.ListGrants(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list grants")
	}
	byID := make(map[uuid.UUID]Grant, len(grants))
	for _, g := range grants {
		byID[g.ID] = g
	}
	if len(grantIDs) == 0 {
		for _, g := range grants {
			if g.Kind == kind {
				grantIDs = append(grantIDs, g.ID)
			}
		}
	}
	for _, id := range grantIDs {
		g, ok := byID[id]
		if !ok {
			return nil, dErrors.New(dErrors.CodeNotFound, "grant "+id.String()+" not found")
		}
		if g.Kind != kind {
			return nil, dErrors.New(dErrors.CodeValidation, "grant "+id.String()+" does not allow issuing "+string(kind))
		}
	}
	entry := &WhitelistEntry{ID: uuid.New(), Kind: kind, DID: did, GrantIDs: grantIDs}
	if err := s.store.SaveWhitelistEntry(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save whitelist entry")
	}
	return entry, nil
}

// IssueDirect prepares a direct accreditation for a whitelisted entity. For
// attest and accredit kinds the entity is registered as a trusted issuer
// under every grant backing its whitelist entry before the offer is minted.
func (s *Service) IssueDirect(ctx context.Context, did, credentialType string) (*DirectOffer, error) {
	kind, ok := catalog.ParseAccreditationKind(credentialType)
	if !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unsupported accreditation type")
	}
	if did == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "did is required")
	}
	requestID := requestcontext.RequestID(ctx)

	entry, err := s.store.FindWhitelistEntry(ctx, kind, did)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncrementDirectIssuance(string(kind), "not_whitelisted")
			return nil, dErrors.New(dErrors.CodeForbidden, "entity is not whitelisted for "+string(kind))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load whitelist")
	}

	if issuerType, registers := issuerTypeFor(kind); registers {
		if len(entry.GrantIDs) == 0 {
			return nil, dErrors.New(dErrors.CodeForbidden, "whitelist entry has no backing accreditation")
		}
		grants, err := s.store.FindGrants(ctx, entry.GrantIDs)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load grants")
		}
		for _, g := range grants {
			_, err := s.ledger.AddTrustedIssuer(ctx, ledger.TrustedIssuer{
				URL:            s.cfg.BaseURL,
				DID:            did,
				TaoDID:         s.cfg.OperatorDID,
				TaoAttributeID: g.AttributeID,
				IssuerType:     issuerType,
			})
			if err != nil {
				s.logger.ErrorContext(ctx, "trusted issuer registration failed",
					"request_id", requestID,
					"did", did,
					"attribute_id", g.AttributeID,
					"error", err,
				)
				s.metrics.IncrementDirectIssuance(string(kind), "ledger_error")
				return nil, upstreamError(err, "failed to register trusted issuer")
			}
		}
	}

	code := uuid.NewString()
	if _, err := s.nonces.IssueWithNonce(ctx, code, did, nonce.PreAuthorizedState{
		CredentialType: string(kind),
		HolderDID:      did,
	}); err != nil {
		return nil, err
	}
	s.metrics.IncrementDirectIssuance(string(kind), "offered")
	s.logger.InfoContext(ctx, "direct accreditation offered",
		"request_id", requestID,
		"did", did,
		"kind", kind,
	)
	return &DirectOffer{Kind: kind, DID: did, PreAuthorizedCode: code}, nil
}

// RevokeAccreditation revokes the ledger accreditation behind an issued
// accreditation credential. The operator's attribute for the credential's
// kind identifies the accreditation on the ledger.
func (s *Service) RevokeAccreditation(ctx context.Context, cred *credentials.IssuedCredential, revisionID string) error {
	kind, ok := KindOf(cred.Types)
	if !ok {
		return dErrors.New(dErrors.CodeValidation, "credential is not an accreditation")
	}
	grant, err := s.store.FindGrantByKind(ctx, kind)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeValidation, "no accreditation attribute available for "+string(kind))
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load grant")
	}
	_, err = s.ledger.RevokeAccreditation(ctx, ledger.Revocation{
		URL:            s.cfg.BaseURL,
		DID:            cred.HolderDID,
		TaoDID:         s.cfg.OperatorDID,
		TaoAttributeID: grant.AttributeID,
		RevisionID:     revisionID,
	})
	if err != nil {
		return upstreamError(err, "failed to revoke accreditation")
	}
	return nil
}

func upstreamError(err error, message string) error {
	var ue *upstream.Error
	if errors.As(err, &ue) {
		return err
	}
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeBadGateway, message)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, message)
}
