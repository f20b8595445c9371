package store

import (
	"context"
	"database/sql"
	"fmt"

	"vcissuer/internal/catalog"
)

// PostgresStore reads operator-managed flows from Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a Postgres-backed catalog store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Apply upserts every row of a seed in one transaction.
func (s *PostgresStore) Apply(ctx context.Context, seed *catalog.Seed) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, d := range seed.PresentationDefinitions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO presentation_definitions (id, scope, content)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET scope = EXCLUDED.scope, content = EXCLUDED.content
		`, d.ID, d.Scope, []byte(d.Content))
		if err != nil {
			return fmt.Errorf("upsert presentation definition %s: %w", d.ID, err)
		}
	}
	for _, f := range seed.IssuanceFlows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO issuance_flows (
				credential_type, scope, response_type, deferred, schema_address,
				presentation_definition_id, revocation, expiry_seconds, terms_of_use_id, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), now())
			ON CONFLICT (credential_type) DO UPDATE SET
				scope = EXCLUDED.scope,
				response_type = EXCLUDED.response_type,
				deferred = EXCLUDED.deferred,
				schema_address = EXCLUDED.schema_address,
				presentation_definition_id = EXCLUDED.presentation_definition_id,
				revocation = EXCLUDED.revocation,
				expiry_seconds = EXCLUDED.expiry_seconds,
				terms_of_use_id = EXCLUDED.terms_of_use_id,
				updated_at = now()
		`, f.CredentialType, f.Scope, string(f.ResponseType), f.Deferred, f.SchemaAddress,
			f.PresentationDefinitionID, string(f.Revocation), f.ExpirySeconds, f.TermsOfUseID)
		if err != nil {
			return fmt.Errorf("upsert issuance flow %s: %w", f.CredentialType, err)
		}
	}
	for _, v := range seed.VerifyFlows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO verify_flows (scope, response_type, presentation_definition_id, updated_at)
			VALUES ($1, $2, NULLIF($3, ''), now())
			ON CONFLICT (scope) DO UPDATE SET
				response_type = EXCLUDED.response_type,
				presentation_definition_id = EXCLUDED.presentation_definition_id,
				updated_at = now()
		`, v.Scope, string(v.ResponseType), v.PresentationDefinitionID)
		if err != nil {
			return fmt.Errorf("upsert verify flow %s: %w", v.Scope, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListIssuanceFlows(ctx context.Context) ([]catalog.IssuanceFlow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT credential_type, scope, response_type, deferred, schema_address,
		       COALESCE(presentation_definition_id, ''), revocation, expiry_seconds, COALESCE(terms_of_use_id, '')
		FROM issuance_flows
		ORDER BY credential_type
	`)
	if err != nil {
		return nil, fmt.Errorf("query issuance flows: %w", err)
	}
	defer rows.Close()

	var out []catalog.IssuanceFlow
	for rows.Next() {
		var (
			f            catalog.IssuanceFlow
			responseType string
			revocation   string
		)
		if err := rows.Scan(&f.CredentialType, &f.Scope, &responseType, &f.Deferred, &f.SchemaAddress,
			&f.PresentationDefinitionID, &revocation, &f.ExpirySeconds, &f.TermsOfUseID); err != nil {
			return nil, fmt.Errorf("scan issuance flow: %w", err)
		}
		f.ResponseType = catalog.ResponseType(responseType)
		f.Revocation = catalog.RevocationPolicy(revocation)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issuance flows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListVerifyFlows(ctx context.Context) ([]catalog.VerifyFlow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scope, response_type, COALESCE(presentation_definition_id, '')
		FROM verify_flows
		ORDER BY scope
	`)
	if err != nil {
		return nil, fmt.Errorf("query verify flows: %w", err)
	}
	defer rows.Close()

	var out []catalog.VerifyFlow
	for rows.Next() {
		var (
			v            catalog.VerifyFlow
			responseType string
		)
		if err := rows.Scan(&v.Scope, &responseType, &v.PresentationDefinitionID); err != nil {
			return nil, fmt.Errorf("scan verify flow: %w", err)
		}
		v.ResponseType = catalog.ResponseType(responseType)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verify flows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListPresentationDefinitions(ctx context.Context) ([]catalog.PresentationDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, scope, content FROM presentation_definitions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query presentation definitions: %w", err)
	}
	defer rows.Close()

	var out []catalog.PresentationDefinition
	for rows.Next() {
		var (
			d       catalog.PresentationDefinition
			content []byte
		)
		if err := rows.Scan(&d.ID, &d.Scope, &content); err != nil {
			return nil, fmt.Errorf("scan presentation definition: %w", err)
		}
		d.Content = content
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate presentation definitions: %w", err)
	}
	return out, nil
}
