package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"vcissuer/internal/accreditation"
	"vcissuer/internal/catalog"
	"vcissuer/pkg/platform/sentinel"
	txcontext "vcissuer/pkg/platform/tx"
)

// cascadeLockKey serializes grant creation across gateway instances.
const cascadeLockKey = 5301203

// PostgresStore persists accreditation state in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(q dbExecutor) error) error {
	if tx, ok := txcontext.From(ctx); ok {
		return fn(tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateGrants(ctx context.Context, attributeID string, grants []accreditation.Grant, terms []accreditation.TermsOfUse) (bool, bool, error) {
	var created, firstEver bool
	err := s.inTx(ctx, func(q dbExecutor) error {
		if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, cascadeLockKey); err != nil {
			return fmt.Errorf("lock accreditation grants: %w", err)
		}
		var exists, anyGrant bool
		err := q.QueryRowContext(ctx, `
			SELECT
				EXISTS (SELECT 1 FROM accreditation_grants WHERE attribute_id = $1),
				EXISTS (SELECT 1 FROM accreditation_grants)
		`, attributeID).Scan(&exists, &anyGrant)
		if err != nil {
			return fmt.Errorf("check accreditation guard: %w", err)
		}
		if exists {
			return nil
		}
		for _, g := range grants {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO accreditation_grants (id, kind, accredited_for, schema_address, attribute_id, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, g.ID, string(g.Kind), pq.Array(nonNil(g.AccreditedFor)), g.SchemaAddress, g.AttributeID, g.CreatedAt); err != nil {
				return fmt.Errorf("insert accreditation grant: %w", err)
			}
		}
		for _, t := range terms {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO terms_of_use (id, types, schema_address, attribute_id, credential_id, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, t.ID, pq.Array(nonNil(t.Types)), t.SchemaAddress, t.AttributeID, t.CredentialID, t.CreatedAt); err != nil {
				return fmt.Errorf("insert terms of use: %w", err)
			}
		}
		created = true
		firstEver = !anyGrant
		return nil
	})
	if err != nil {
		return false, false, err
	}
	return created, firstEver, nil
}

const grantColumns = `id, kind, accredited_for, schema_address, attribute_id, created_at`

func (s *PostgresStore) ListGrants(ctx context.Context) ([]accreditation.Grant, error) {
	return s.queryGrants(ctx, `SELECT `+grantColumns+` FROM accreditation_grants ORDER BY created_at, id`)
}

func (s *PostgresStore) FindGrants(ctx context.Context, ids []uuid.UUID) ([]accreditation.Grant, error) {
	return s.queryGrants(ctx, `
		SELECT `+grantColumns+` FROM accreditation_grants
		WHERE id = ANY($1::uuid[])
		ORDER BY created_at, id
	`, pq.Array(uuidStrings(ids)))
}

func (s *PostgresStore) FindGrantByKind(ctx context.Context, kind catalog.AccreditationKind) (*accreditation.Grant, error) {
	grants, err := s.queryGrants(ctx, `
		SELECT `+grantColumns+` FROM accreditation_grants
		WHERE kind = $1
		ORDER BY created_at, id
		LIMIT 1
	`, string(kind))
	if err != nil {
		return nil, err
	}
	if len(grants) == 0 {
		return nil, fmt.Errorf("grant of kind %s: %w", kind, sentinel.ErrNotFound)
	}
	return &grants[0], nil
}

func (s *PostgresStore) queryGrants(ctx context.Context, query string, args ...any) ([]accreditation.Grant, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query accreditation grants: %w", err)
	}
	defer rows.Close()

	var grants []accreditation.Grant
	for rows.Next() {
		var (
			g    accreditation.Grant
			kind string
		)
		if err := rows.Scan(&g.ID, &kind, pq.Array(&g.AccreditedFor), &g.SchemaAddress, &g.AttributeID, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan accreditation grant: %w", err)
		}
		g.Kind = catalog.AccreditationKind(kind)
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accreditation grants: %w", err)
	}
	return grants, nil
}

// SaveWhitelistEntry upserts the (kind, did) entry and links its grants.
func (s *PostgresStore) SaveWhitelistEntry(ctx context.Context, entry *accreditation.WhitelistEntry) error {
	return s.inTx(ctx, func(q dbExecutor) error {
		var id uuid.UUID
		err := q.QueryRowContext(ctx, `
			INSERT INTO accreditation_whitelist (id, kind, did)
			VALUES ($1, $2, $3)
			ON CONFLICT (kind, did) DO UPDATE SET did = EXCLUDED.did
			RETURNING id
		`, entry.ID, string(entry.Kind), entry.DID).Scan(&id)
		if err != nil {
			return fmt.Errorf("upsert whitelist entry: %w", err)
		}
		entry.ID = id
		for _, grantID := range entry.GrantIDs {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO accreditation_whitelist_grants (whitelist_id, grant_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, id, grantID); err != nil {
				return fmt.Errorf("link whitelist grant: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) FindWhitelistEntry(ctx context.Context, kind catalog.AccreditationKind, did string) (*accreditation.WhitelistEntry, error) {
	entry := &accreditation.WhitelistEntry{Kind: kind, DID: did}
	q := s.execer(ctx)
	err := q.QueryRowContext(ctx, `
		SELECT id FROM accreditation_whitelist WHERE kind = $1 AND did = $2
	`, string(kind), did).Scan(&entry.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("whitelist entry %s/%s: %w", kind, did, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find whitelist entry: %w", err)
	}
	rows, err := q.QueryContext(ctx, `
		SELECT grant_id FROM accreditation_whitelist_grants WHERE whitelist_id = $1
	`, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("load whitelist grants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan whitelist grant: %w", err)
		}
		entry.GrantIDs = append(entry.GrantIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate whitelist grants: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) DeleteByAttribute(ctx context.Context, attributeID string) (accreditation.Removal, error) {
	var removal accreditation.Removal
	err := s.inTx(ctx, func(q dbExecutor) error {
		if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, cascadeLockKey); err != nil {
			return fmt.Errorf("lock accreditation grants: %w", err)
		}
		res, err := q.ExecContext(ctx, `
			DELETE FROM accreditation_whitelist w
			WHERE EXISTS (
				SELECT 1 FROM accreditation_whitelist_grants wg
				JOIN accreditation_grants g ON g.id = wg.grant_id
				WHERE wg.whitelist_id = w.id AND g.attribute_id = $1
			)
		`, attributeID)
		if removal.Whitelist, err = affected(res, err); err != nil {
			return fmt.Errorf("delete whitelist entries: %w", err)
		}
		res, err = q.ExecContext(ctx, `DELETE FROM accreditation_grants WHERE attribute_id = $1`, attributeID)
		if removal.Grants, err = affected(res, err); err != nil {
			return fmt.Errorf("delete accreditation grants: %w", err)
		}
		res, err = q.ExecContext(ctx, `DELETE FROM terms_of_use WHERE attribute_id = $1`, attributeID)
		if removal.Terms, err = affected(res, err); err != nil {
			return fmt.Errorf("delete terms of use: %w", err)
		}
		return nil
	})
	if err != nil {
		return accreditation.Removal{}, err
	}
	return removal, nil
}

func affected(res sql.Result, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *PostgresStore) FindProxyRegistration(ctx context.Context) (*accreditation.ProxyRegistration, error) {
	var reg accreditation.ProxyRegistration
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT proxy_id, status_list_id, created_at FROM proxy_registrations
	`).Scan(&reg.ProxyID, &reg.StatusListID, &reg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("proxy registration: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find proxy registration: %w", err)
	}
	return &reg, nil
}

func (s *PostgresStore) SaveProxyRegistration(ctx context.Context, reg accreditation.ProxyRegistration) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO proxy_registrations (proxy_id, status_list_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (singleton) DO NOTHING
	`, reg.ProxyID, reg.StatusListID, reg.CreatedAt)
	if err != nil {
		return fmt.Errorf("save proxy registration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save proxy registration: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("proxy registration: %w", sentinel.ErrConflict)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
