package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"vcissuer/internal/events"
	txcontext "vcissuer/pkg/platform/tx"
)

// PostgresStore writes events to the outbox table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, e events.Event) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO outbox (id, event_type, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, string(e.Type), e.AggregateID, []byte(e.Payload), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// PublishPending claims a batch with FOR UPDATE SKIP LOCKED so several relay
// instances can poll the same table.
func (s *PostgresStore) PublishPending(ctx context.Context, limit int, publish func(context.Context, events.Event) error) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, event_type, aggregate_id, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("claim outbox batch: %w", err)
	}
	var batch []events.Event
	for rows.Next() {
		var (
			e         events.Event
			eventType string
			payload   []byte
		)
		if err := rows.Scan(&e.ID, &eventType, &e.AggregateID, &payload, &e.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.Type = events.Type(eventType)
		e.Payload = payload
		batch = append(batch, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate outbox batch: %w", err)
	}
	rows.Close()

	published := make([]string, 0, len(batch))
	var publishErr error
	for _, e := range batch {
		if err := publish(ctx, e); err != nil {
			publishErr = err
			break
		}
		published = append(published, e.ID.String())
	}
	if len(published) > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE outbox SET published_at = $2 WHERE id = ANY($1::uuid[])
		`, pq.Array(published), time.Now()); err != nil {
			return 0, fmt.Errorf("mark outbox published: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox batch: %w", err)
	}
	return len(published), publishErr
}

// CountPending reports how many events still wait for delivery.
func (s *PostgresStore) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM outbox WHERE published_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending outbox: %w", err)
	}
	return n, nil
}
