// Package statuslist reserves revocation slots for issued credentials and
// serves the compressed bitstrings verifiers check them against.
package statuslist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vcissuer/internal/statuslist/metrics"
	dErrors "vcissuer/pkg/domain-errors"
	"vcissuer/pkg/platform/sentinel"
	"vcissuer/pkg/requestcontext"
)

// Store persists status lists. Allocate must be serialized across every
// caller sharing the store.
type Store interface {
	// Allocate advances the cursor of the latest list, or creates a new list
	// when none exists or the latest is full. created reports the latter.
	Allocate(ctx context.Context, now time.Time) (res Reservation, created bool, err error)
	// Create stores a fresh list whose slot 0 is already taken.
	Create(ctx context.Context, now time.Time) (*List, error)
	FindByID(ctx context.Context, id int64) (*List, error)
	// SetBit marks index revoked and reports whether the bit changed.
	SetBit(ctx context.Context, id int64, index int) (bool, error)
}

// Service is the revocation status registry.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
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

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allocate reserves one slot. Every successful call returns a (list, index)
// pair that no other call has returned.
func (s *Service) Allocate(ctx context.Context) (Reservation, error) {
	start := time.Now()
	res, created, err := s.store.Allocate(ctx, requestcontext.Now(ctx))
	if err != nil {
		return Reservation{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reserve status list index")
	}
	s.metrics.ObserveAllocation(time.Since(start), created)
	if created {
		s.logger.InfoContext(ctx, "status list created",
			"request_id", requestcontext.RequestID(ctx),
			"list_id", res.ListID,
		)
	}
	return res, nil
}

// CreateFresh creates a list for registration on the ledger. Its slot 0 is
// used as the registration test entry and is never handed to a credential.
func (s *Service) CreateFresh(ctx context.Context) (*List, error) {
	list, err := s.store.Create(ctx, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create status list")
	}
	s.metrics.IncrementListsCreated()
	return list, nil
}

// Revoke sets the bit for index. Revoking a revoked slot succeeds.
func (s *Service) Revoke(ctx context.Context, listID int64, index int) error {
	if !ValidIndex(index) {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("status list index %d out of range [0, %d]", index, MaxIndex))
	}
	changed, err := s.store.SetBit(ctx, listID, index)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "status list not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update status list")
	}
	s.metrics.IncrementRevocation(changed)
	return nil
}

// Render returns the gzip-compressed, base64url-encoded bitstring of a list.
func (s *Service) Render(ctx context.Context, listID int64) (string, error) {
	list, err := s.store.FindByID(ctx, listID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.Wrap(err, dErrors.CodeNotFound, "status list not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load status list")
	}
	encoded, err := Encode(list.Content)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode status list")
	}
	return encoded, nil
}
