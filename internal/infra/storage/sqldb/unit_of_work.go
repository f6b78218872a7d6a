package sqldb

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/blessbot/internal/core/domain"
	"github.com/vietddude/blessbot/internal/infra/storage"
)

// UnitOfWork bundles the bookkeeping of one event into a single database
// transaction, ensuring atomicity (all succeed or all fail).
type UnitOfWork struct {
	db *DB
	tx *sqlx.Tx
}

// NewUnitOfWork creates a new unit of work with an active transaction.
func (db *DB) NewUnitOfWork(ctx context.Context) (*UnitOfWork, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &UnitOfWork{db: db, tx: tx}, nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}
	err := u.tx.Commit()
	u.tx = nil
	return err
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}

// RecordTransfer appends a rate-limit row within the transaction.
func (u *UnitOfWork) RecordTransfer(ctx context.Context, handle string, direction domain.Direction) error {
	return recordTransfer(ctx, u.tx, u.db.nowMillis(), handle, direction)
}

// ConsumePending resolves a pending blessing within the transaction.
func (u *UnitOfWork) ConsumePending(ctx context.Context, id int64) error {
	return consumePending(ctx, u.tx, u.db.nowMillis(), id)
}

// MarkProcessed writes the processed marker within the transaction.
func (u *UnitOfWork) MarkProcessed(ctx context.Context, eventID int64, reason string) error {
	return markProcessed(ctx, u.tx, u.db.nowMillis(), eventID, reason)
}

// execer is satisfied by both *sqlx.DB and *sqlx.Tx.
type execer interface {
	sqlx.ExecerContext
	sqlx.QueryerContext
	Rebind(string) string
}

func recordTransfer(ctx context.Context, q execer, now int64, handle string, direction domain.Direction) error {
	if !direction.Valid() {
		return fmt.Errorf("invalid transfer direction %q", direction)
	}
	query := q.Rebind(`INSERT INTO transfers (handle, direction, created_at) VALUES (?, ?, ?)`)
	if _, err := q.ExecContext(ctx, query, domain.NormalizeHandle(handle), string(direction), now); err != nil {
		return fmt.Errorf("failed to record transfer: %w", err)
	}
	return nil
}

func consumePending(ctx context.Context, q execer, now int64, id int64) error {
	query := q.Rebind(`UPDATE pending_blessings SET consumed = TRUE, consumed_at = ? WHERE id = ? AND consumed = FALSE`)
	res, err := q.ExecContext(ctx, query, now, id)
	if err != nil {
		return fmt.Errorf("failed to consume pending blessing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to consume pending blessing: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	row := q.QueryRowxContext(ctx, q.Rebind(`SELECT EXISTS (SELECT 1 FROM pending_blessings WHERE id = ?)`), id)
	if err := row.Scan(&exists); err != nil {
		return fmt.Errorf("failed to look up pending blessing: %w", err)
	}
	if exists {
		return storage.ErrPendingConsumed
	}
	return storage.ErrPendingNotFound
}

func markProcessed(ctx context.Context, q execer, now int64, eventID int64, reason string) error {
	query := q.Rebind(`
		INSERT INTO processed_events (event_id, reason, processed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING
	`)
	if _, err := q.ExecContext(ctx, query, eventID, reason, now); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}
