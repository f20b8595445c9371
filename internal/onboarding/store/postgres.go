package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vcissuer/internal/onboarding"
	"vcissuer/pkg/platform/sentinel"
)

// PostgresStore persists chain failures in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) SaveFailure(ctx context.Context, f onboarding.Failure) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO onboarding_failures (id, chain, did, step, attempts, error, vc, attribute_id, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, f.ID, f.Chain, f.DID, f.Step, f.Attempts, f.Error, f.VC, f.AttributeID, f.FailedAt)
	if err != nil {
		return fmt.Errorf("insert onboarding failure: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPendingFailures(ctx context.Context) ([]onboarding.Failure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chain, did, step, attempts, error, vc, attribute_id, failed_at
		FROM onboarding_failures
		WHERE retried_at IS NULL
		ORDER BY failed_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query onboarding failures: %w", err)
	}
	defer rows.Close()

	var out []onboarding.Failure
	for rows.Next() {
		var f onboarding.Failure
		if err := rows.Scan(&f.ID, &f.Chain, &f.DID, &f.Step, &f.Attempts, &f.Error, &f.VC, &f.AttributeID, &f.FailedAt); err != nil {
			return nil, fmt.Errorf("scan onboarding failure: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate onboarding failures: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkRetried(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE onboarding_failures SET retried_at = $2 WHERE id = $1 AND retried_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark onboarding failure retried: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark onboarding failure retried: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("onboarding failure %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}
