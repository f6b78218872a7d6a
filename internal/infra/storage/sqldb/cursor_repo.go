package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/blessbot/internal/core/domain"
)

// CursorRepo implements storage.CursorRepository over SQL.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new SQL cursor repository.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

// Get retrieves a cursor by name. Returns nil when it was never saved.
func (r *CursorRepo) Get(ctx context.Context, name string) (*domain.Cursor, error) {
	var row struct {
		Name        string `db:"name"`
		LastEventID int64  `db:"last_event_id"`
		UpdatedAt   int64  `db:"updated_at"`
	}
	query := r.db.Rebind(`SELECT name, last_event_id, updated_at FROM cursors WHERE name = ?`)
	err := r.db.GetContext(ctx, &row, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	return &domain.Cursor{
		Name:        row.Name,
		LastEventID: row.LastEventID,
		UpdatedAt:   fromMillis(row.UpdatedAt),
	}, nil
}

// Save upserts a cursor.
func (r *CursorRepo) Save(ctx context.Context, name string, lastEventID int64) error {
	query := r.db.Rebind(`
		INSERT INTO cursors (name, last_event_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			last_event_id = excluded.last_event_id,
			updated_at = excluded.updated_at
	`)
	if _, err := r.db.ExecContext(ctx, query, name, lastEventID, r.db.nowMillis()); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}
