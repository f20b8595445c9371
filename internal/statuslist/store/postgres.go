package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vcissuer/internal/statuslist"
	"vcissuer/pkg/platform/sentinel"
	txcontext "vcissuer/pkg/platform/tx"
)

// allocationLockKey is the advisory lock taken around slot allocation.
const allocationLockKey = 5301202

// PostgresStore persists status lists in PostgreSQL.
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

// inTx runs fn in the ambient transaction, or in a new one.
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

// Allocate serializes on a transaction-scoped advisory lock so that two
// issuers never create competing lists, then advances the latest list's
// cursor under a row lock.
func (s *PostgresStore) Allocate(ctx context.Context, now time.Time) (statuslist.Reservation, bool, error) {
	var (
		res     statuslist.Reservation
		created bool
	)
	err := s.inTx(ctx, func(q dbExecutor) error {
		if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, allocationLockKey); err != nil {
			return fmt.Errorf("lock status lists: %w", err)
		}
		var (
			id     int64
			cursor int
		)
		err := q.QueryRowContext(ctx, `
			SELECT id, current_index FROM status_lists
			ORDER BY id DESC
			LIMIT 1
			FOR UPDATE
		`).Scan(&id, &cursor)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("load latest status list: %w", err)
		case cursor < statuslist.MaxIndex:
			if _, err := q.ExecContext(ctx, `UPDATE status_lists SET current_index = $2 WHERE id = $1`, id, cursor+1); err != nil {
				return fmt.Errorf("advance status list cursor: %w", err)
			}
			res = statuslist.Reservation{ListID: id, Index: cursor + 1}
			return nil
		}
		newID, err := insertList(ctx, q, now)
		if err != nil {
			return err
		}
		res = statuslist.Reservation{ListID: newID, Index: 0}
		created = true
		return nil
	})
	if err != nil {
		return statuslist.Reservation{}, false, err
	}
	return res, created, nil
}

func (s *PostgresStore) Create(ctx context.Context, now time.Time) (*statuslist.List, error) {
	var list *statuslist.List
	err := s.inTx(ctx, func(q dbExecutor) error {
		if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, allocationLockKey); err != nil {
			return fmt.Errorf("lock status lists: %w", err)
		}
		id, err := insertList(ctx, q, now)
		if err != nil {
			return err
		}
		list = &statuslist.List{ID: id, Content: statuslist.NewContent(), CreatedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

func insertList(ctx context.Context, q dbExecutor, now time.Time) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO status_lists (content, current_index, created_at)
		VALUES ($1, 0, $2)
		RETURNING id
	`, statuslist.NewContent(), now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create status list: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*statuslist.List, error) {
	list := &statuslist.List{ID: id}
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT content, current_index, created_at FROM status_lists WHERE id = $1
	`, id).Scan(&list.Content, &list.CurrentIndex, &list.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("status list %d: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find status list: %w", err)
	}
	return list, nil
}

// SetBit locks the list row, reads the byte holding index and writes it back
// with the bit set. It joins the caller's transaction when one is in context.
func (s *PostgresStore) SetBit(ctx context.Context, id int64, index int) (bool, error) {
	byteIndex := index / 8
	mask := 0x80 >> (index % 8)
	var changed bool
	err := s.inTx(ctx, func(q dbExecutor) error {
		var previous int
		err := q.QueryRowContext(ctx, `
			SELECT get_byte(content, $2) FROM status_lists WHERE id = $1 FOR UPDATE
		`, id, byteIndex).Scan(&previous)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("status list %d: %w", id, sentinel.ErrNotFound)
			}
			return fmt.Errorf("load status list byte: %w", err)
		}
		if previous&mask != 0 {
			return nil
		}
		if _, err := q.ExecContext(ctx, `
			UPDATE status_lists SET content = set_byte(content, $2, $3) WHERE id = $1
		`, id, byteIndex, previous|mask); err != nil {
			return fmt.Errorf("set status list bit: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}
