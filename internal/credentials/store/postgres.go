package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"vcissuer/internal/credentials"
	"vcissuer/pkg/platform/sentinel"
	txcontext "vcissuer/pkg/platform/tx"
)

// PostgresStore persists issued credentials in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Insert(ctx context.Context, c *credentials.IssuedCredential) (bool, error) {
	locator, err := credentials.MarshalLocator(c.Locator)
	if err != nil {
		return false, fmt.Errorf("encode revocation locator: %w", err)
	}
	res, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO issued_credentials (id, types, hash, issued_at, holder_did, revoked, revocation_type, revocation_locator, expires_at, attribute_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, c.ID, pq.Array(c.Types), c.Hash, c.IssuedAt, c.HolderDID, c.Revoked, string(c.RevocationType), nullableJSON(locator), c.ExpiresAt, c.AttributeID)
	if err != nil {
		return false, fmt.Errorf("insert issued credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert issued credential: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*credentials.IssuedCredential, error) {
	return s.find(ctx, id, "")
}

// FindForUpdate locks the row until the surrounding transaction ends.
// Outside a transaction the lock is released as soon as the row is read.
func (s *PostgresStore) FindForUpdate(ctx context.Context, id string) (*credentials.IssuedCredential, error) {
	return s.find(ctx, id, " FOR UPDATE")
}

func (s *PostgresStore) find(ctx context.Context, id, lock string) (*credentials.IssuedCredential, error) {
	var (
		c         credentials.IssuedCredential
		revType   string
		locator   []byte
		expiresAt sql.NullTime
	)
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, types, hash, issued_at, holder_did, revoked, revocation_type, revocation_locator, expires_at, attribute_id
		FROM issued_credentials
		WHERE id = $1`+lock,
		id).Scan(&c.ID, pq.Array(&c.Types), &c.Hash, &c.IssuedAt, &c.HolderDID, &c.Revoked, &revType, &locator, &expiresAt, &c.AttributeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find issued credential: %w", err)
	}
	c.RevocationType = credentials.RevocationType(revType)
	if c.Locator, err = credentials.UnmarshalLocator(locator); err != nil {
		return nil, fmt.Errorf("decode revocation locator: %w", err)
	}
	if expiresAt.Valid {
		exp := expiresAt.Time
		c.ExpiresAt = &exp
	}
	return &c, nil
}

func (s *PostgresStore) MarkRevoked(ctx context.Context, id string) error {
	res, err := s.execer(ctx).ExecContext(ctx, `UPDATE issued_credentials SET revoked = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark credential revoked: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark credential revoked: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM issued_credentials WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete issued credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete issued credential: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("credential %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
