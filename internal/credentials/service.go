// Package credentials keeps the audit record of every credential the gateway
// issued and drives its one-way revocation.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vcissuer/internal/credentials/metrics"
	"vcissuer/internal/events"
	dErrors "vcissuer/pkg/domain-errors"
	"vcissuer/pkg/platform/sentinel"
	txcontext "vcissuer/pkg/platform/tx"
	"vcissuer/pkg/platform/upstream"
	"vcissuer/pkg/requestcontext"
)

// Store persists issued credentials.
type Store interface {
	// Insert stores c unless a record with the same id exists. inserted
	// reports which happened; an existing record is never overwritten.
	Insert(ctx context.Context, c *IssuedCredential) (inserted bool, err error)
	FindByID(ctx context.Context, id string) (*IssuedCredential, error)
	// FindForUpdate is FindByID holding a row lock for the rest of the
	// transaction in ctx.
	FindForUpdate(ctx context.Context, id string) (*IssuedCredential, error)
	MarkRevoked(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// StatusRegistry flips status list bits.
type StatusRegistry interface {
	Revoke(ctx context.Context, listID int64, index int) error
}

// LedgerRevoker revokes accreditation entries on the ledger.
type LedgerRevoker interface {
	RevokeAccreditation(ctx context.Context, c *IssuedCredential, revisionID string) error
}

// Emitter writes outbox events.
type Emitter interface {
	Emit(ctx context.Context, eventType events.Type, aggregateID string, payload any) error
}

// MaterializedHook runs after a new credential record is committed.
type MaterializedHook func(ctx context.Context, c *IssuedCredential, claims *Claims) error

// DeletedHook runs after a credential record is deleted.
type DeletedHook func(ctx context.Context, c *IssuedCredential) error

// Service is the credential lifecycle store.
type Service struct {
	store    Store
	tx       txcontext.Runner
	statuses StatusRegistry
	ledger   LedgerRevoker
	events   Emitter
	hook     MaterializedHook
	deleted  DeletedHook
	logger   *slog.Logger
	metrics  *metrics.Metrics
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

func WithStatusRegistry(r StatusRegistry) Option {
	return func(s *Service) {
		s.statuses = r
	}
}

func WithLedgerRevoker(r LedgerRevoker) Option {
	return func(s *Service) {
		s.ledger = r
	}
}

func WithEvents(e Emitter) Option {
	return func(s *Service) {
		s.events = e
	}
}

// WithMaterializedHook registers the hook run for every newly recorded
// credential.
func WithMaterializedHook(hook MaterializedHook) Option {
	return func(s *Service) {
		s.hook = hook
	}
}

func WithDeletedHook(hook DeletedHook) Option {
	return func(s *Service) {
		s.deleted = hook
	}
}

func New(store Store, tx txcontext.Runner, opts ...Option) *Service {
	s := &Service{store: store, tx: tx, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record stores the credential described by claims. A credential id that was
// already recorded is logged and skipped; the existing record is returned.
func (s *Service) Record(ctx context.Context, claims *Claims) (*IssuedCredential, error) {
	cred := claims.Credential(requestcontext.Now(ctx))
	var inserted bool
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		inserted, err = s.store.Insert(txCtx, cred)
		if err != nil || !inserted {
			return err
		}
		return s.emit(txCtx, events.CredentialMaterialized, cred)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record issued credential")
	}
	if !inserted {
		s.logger.WarnContext(ctx, "duplicate credential issuance skipped",
			"request_id", requestcontext.RequestID(ctx),
			"credential_id", cred.ID,
		)
		s.metrics.IncrementRecorded(false)
		existing, err := s.store.FindByID(ctx, cred.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load issued credential")
		}
		return existing, nil
	}
	s.metrics.IncrementRecorded(true)
	s.logger.InfoContext(ctx, "credential recorded",
		"request_id", requestcontext.RequestID(ctx),
		"credential_id", cred.ID,
		"holder_did", cred.HolderDID,
		"revocation_type", cred.RevocationType,
	)

	if s.hook != nil {
		if err := s.hook(ctx, cred, claims); err != nil {
			s.logger.ErrorContext(ctx, "credential materialized hook failed",
				"request_id", requestcontext.RequestID(ctx),
				"credential_id", cred.ID,
				"error", err,
			)
			return cred, err
		}
	}
	return cred, nil
}

// Get returns one issued credential.
func (s *Service) Get(ctx context.Context, id string) (*IssuedCredential, error) {
	cred, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "credential not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load issued credential")
	}
	return cred, nil
}

// ChangeStatus moves a credential to status. Revocation is one-way:
// revoking twice succeeds without side effects and a revoked credential can
// never become active again.
func (s *Service) ChangeStatus(ctx context.Context, id string, status Status) (*IssuedCredential, error) {
	if status != StatusActive && status != StatusRevoked {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported status %q", status))
	}
	if status == StatusActive {
		cred, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if cred.Revoked {
			return nil, dErrors.New(dErrors.CodeValidation, "cannot restore the status of a revoked credential")
		}
		return cred, nil
	}

	var (
		cred    *IssuedCredential
		revoked bool
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		cred, err = s.store.FindForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if cred.Revoked {
			return nil
		}
		if err := s.revoke(txCtx, cred); err != nil {
			return err
		}
		if err := s.store.MarkRevoked(txCtx, cred.ID); err != nil {
			return err
		}
		revoked = true
		return s.emit(txCtx, events.CredentialRevoked, cred)
	})
	if err != nil {
		err = asDomain(err, "failed to revoke credential")
		if cred != nil {
			s.logger.WarnContext(ctx, "credential revocation failed",
				"request_id", requestcontext.RequestID(ctx),
				"credential_id", cred.ID,
				"revocation_type", cred.RevocationType,
				"error", err,
			)
		}
		return nil, err
	}
	if !revoked {
		return cred, nil
	}

	cred.Revoked = true
	s.metrics.IncrementRevoked(string(cred.RevocationType))
	s.logger.InfoContext(ctx, "credential revoked",
		"request_id", requestcontext.RequestID(ctx),
		"credential_id", cred.ID,
		"revocation_type", cred.RevocationType,
	)
	return cred, nil
}

// revoke flips the credential's revocation entry. It runs under the row
// lock; a ledger failure rolls the transaction back and leaves the
// credential active.
func (s *Service) revoke(ctx context.Context, cred *IssuedCredential) error {
	if !cred.Revocable() {
		return dErrors.New(dErrors.CodeValidation, "credential is not revocable")
	}
	switch cred.RevocationType {
	case RevocationStatusList:
		if s.statuses == nil || cred.Locator.Index == nil {
			return dErrors.New(dErrors.CodeValidation, "credential is not revocable")
		}
		return s.statuses.Revoke(ctx, cred.Locator.ListID, *cred.Locator.Index)
	case RevocationLedgerEntry:
		revision, ok := cred.Locator.RevisionID()
		if !ok || s.ledger == nil {
			return dErrors.New(dErrors.CodeValidation, "credential is not revocable")
		}
		if err := s.ledger.RevokeAccreditation(ctx, cred, revision); err != nil {
			return asDomain(err, "failed to revoke accreditation on the ledger")
		}
		return nil
	}
	return dErrors.New(dErrors.CodeValidation, "credential is not revocable")
}

// Delete removes the record of an issued credential. The deleted hook runs
// after commit; a hook failure is logged and returned, the record stays
// deleted.
func (s *Service) Delete(ctx context.Context, id string) (*IssuedCredential, error) {
	var cred *IssuedCredential
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		cred, err = s.store.FindForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.store.Delete(txCtx, id); err != nil {
			return err
		}
		return s.emit(txCtx, events.CredentialDeleted, cred)
	})
	if err != nil {
		return nil, asDomain(err, "failed to delete credential")
	}
	s.metrics.IncrementDeleted()
	s.logger.InfoContext(ctx, "credential deleted",
		"request_id", requestcontext.RequestID(ctx),
		"credential_id", cred.ID,
		"attribute_id", cred.AttributeID,
	)

	if s.deleted != nil {
		if err := s.deleted(ctx, cred); err != nil {
			s.logger.ErrorContext(ctx, "credential deleted hook failed",
				"request_id", requestcontext.RequestID(ctx),
				"credential_id", cred.ID,
				"error", err,
			)
			return cred, err
		}
	}
	return cred, nil
}

func (s *Service) emit(ctx context.Context, eventType events.Type, cred *IssuedCredential) error {
	if s.events == nil {
		return nil
	}
	return s.events.Emit(ctx, eventType, cred.ID, events.CredentialPayload{
		CredentialID:   cred.ID,
		Types:          cred.Types,
		HolderDID:      cred.HolderDID,
		RevocationType: string(cred.RevocationType),
		RequestID:      requestcontext.RequestID(ctx),
	})
}

// asDomain keeps domain and upstream errors intact and wraps anything else.
func asDomain(err error, message string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	var ue *upstream.Error
	if errors.As(err, &ue) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "credential not found")
	}
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeBadGateway, message)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, message)
}
