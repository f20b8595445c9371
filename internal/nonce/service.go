// Package nonce issues and consumes single-use correlation records for the
// authorization protocol.
package nonce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	dErrors "vcissuer/pkg/domain-errors"
	"vcissuer/pkg/platform/sentinel"
	"vcissuer/pkg/requestcontext"
)

// Store persists records. Consume must be atomic: of two concurrent calls
// for the same nonce at most one succeeds.
type Store interface {
	Create(ctx context.Context, record *Record) error
	Consume(ctx context.Context, nonce string, now time.Time) (*Record, error)
}

// Service mints and redeems nonces.
type Service struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

const defaultTTL = 10 * time.Minute

// New constructs a Service.
func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, ttl: defaultTTL, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue stores state under a freshly generated nonce.
func (s *Service) Issue(ctx context.Context, did string, state any) (*Record, error) {
	return s.IssueWithNonce(ctx, uuid.NewString(), did, state)
}

// IssueWithNonce stores state under a caller-chosen nonce. A nonce that is
// already in use yields a conflict.
func (s *Service) IssueWithNonce(ctx context.Context, nonce, did string, state any) (*Record, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode nonce state")
	}
	now := requestcontext.Now(ctx)
	record := &Record{
		Nonce:     nonce,
		State:     raw,
		DID:       did,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "nonce already issued")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store nonce")
	}
	return record, nil
}

// Consume redeems a nonce once. Unknown, expired and already spent nonces are
// client errors.
func (s *Service) Consume(ctx context.Context, nonce string) (*Record, error) {
	if nonce == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "state is required")
	}
	record, err := s.store.Consume(ctx, nonce, requestcontext.Now(ctx))
	switch {
	case err == nil:
		return record, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "unknown state")
	case errors.Is(err, sentinel.ErrExpired):
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "state expired")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		s.logger.WarnContext(ctx, "nonce replay rejected",
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "state already used")
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume nonce")
	}
}

// DecodeState unmarshals a record's state into v.
func DecodeState(record *Record, v any) error {
	if len(record.State) == 0 {
		return fmt.Errorf("nonce %s has no state", record.Nonce)
	}
	return json.Unmarshal(record.State, v)
}
