package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/blessbot/internal/core/domain"
)

// LedgerRepo implements storage.LedgerStore over SQL.
type LedgerRepo struct {
	db *DB
}

// NewLedgerRepo creates a new SQL ledger store.
func NewLedgerRepo(db *DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

type bindingRow struct {
	Handle        string `db:"handle"`
	WalletAddress string `db:"wallet_address"`
	BoundAt       int64  `db:"bound_at"`
	OriginEventID int64  `db:"origin_event_id"`
}

type pendingRow struct {
	ID            int64           `db:"id"`
	Recipient     string          `db:"recipient"`
	Amount        decimal.Decimal `db:"amount"`
	Sender        string          `db:"sender"`
	OriginEventID int64           `db:"origin_event_id"`
	CreatedAt     int64           `db:"created_at"`
	Consumed      bool            `db:"consumed"`
	ConsumedAt    sql.NullInt64   `db:"consumed_at"`
}

func (r pendingRow) toDomain() *domain.PendingBlessing {
	p := &domain.PendingBlessing{
		ID:              r.ID,
		RecipientHandle: r.Recipient,
		Amount:          r.Amount,
		SenderHandle:    r.Sender,
		OriginEventID:   r.OriginEventID,
		CreatedAt:       fromMillis(r.CreatedAt),
		Consumed:        r.Consumed,
	}
	if r.ConsumedAt.Valid {
		t := fromMillis(r.ConsumedAt.Int64)
		p.ConsumedAt = &t
	}
	return p
}

func (r *LedgerRepo) GetBinding(ctx context.Context, handle string) (*domain.Binding, error) {
	var row bindingRow
	query := r.db.Rebind(`SELECT handle, wallet_address, bound_at, origin_event_id FROM bindings WHERE handle = ?`)
	err := r.db.GetContext(ctx, &row, query, domain.NormalizeHandle(handle))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get binding: %w", err)
	}
	return &domain.Binding{
		Handle:        row.Handle,
		WalletAddress: row.WalletAddress,
		BoundAt:       fromMillis(row.BoundAt),
		OriginEventID: row.OriginEventID,
	}, nil
}

func (r *LedgerRepo) CreateBindingIfAbsent(ctx context.Context, handle, address string, originEventID int64) (bool, error) {
	query := r.db.Rebind(`
		INSERT INTO bindings (handle, wallet_address, bound_at, origin_event_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (handle) DO NOTHING
	`)
	res, err := r.db.ExecContext(ctx, query, domain.NormalizeHandle(handle), address, r.db.nowMillis(), originEventID)
	if err != nil {
		return false, fmt.Errorf("failed to create binding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to create binding: %w", err)
	}
	return n == 1, nil
}

func (r *LedgerRepo) RecordTransfer(ctx context.Context, handle string, direction domain.Direction) error {
	return recordTransfer(ctx, r.db, r.db.nowMillis(), handle, direction)
}

func (r *LedgerRepo) LastTransfer(ctx context.Context, handle string, direction domain.Direction) (*time.Time, error) {
	var last sql.NullInt64
	query := r.db.Rebind(`SELECT MAX(created_at) FROM transfers WHERE handle = ? AND direction = ?`)
	if err := r.db.GetContext(ctx, &last, query, domain.NormalizeHandle(handle), string(direction)); err != nil {
		return nil, fmt.Errorf("failed to get last transfer: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	t := fromMillis(last.Int64)
	return &t, nil
}

func (r *LedgerRepo) HasUnconsumedPending(ctx context.Context, handle string) (bool, error) {
	var exists bool
	query := r.db.Rebind(`SELECT EXISTS (SELECT 1 FROM pending_blessings WHERE recipient = ? AND consumed = FALSE)`)
	if err := r.db.GetContext(ctx, &exists, query, domain.NormalizeHandle(handle)); err != nil {
		return false, fmt.Errorf("failed to check pending blessing: %w", err)
	}
	return exists, nil
}

func (r *LedgerRepo) FirstUnconsumedPending(ctx context.Context, handle string) (*domain.PendingBlessing, error) {
	var row pendingRow
	query := r.db.Rebind(`
		SELECT id, recipient, amount, sender, origin_event_id, created_at, consumed, consumed_at
		FROM pending_blessings
		WHERE recipient = ? AND consumed = FALSE
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`)
	err := r.db.GetContext(ctx, &row, query, domain.NormalizeHandle(handle))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending blessing: %w", err)
	}
	return row.toDomain(), nil
}

func (r *LedgerRepo) EnqueuePendingIfAbsent(ctx context.Context, p *domain.PendingBlessing) (bool, error) {
	now := r.db.nowMillis()
	query := r.db.Rebind(`
		INSERT INTO pending_blessings (recipient, amount, sender, origin_event_id, created_at, consumed)
		VALUES (?, ?, ?, ?, ?, FALSE)
		ON CONFLICT DO NOTHING
		RETURNING id
	`)
	var id int64
	err := r.db.QueryRowxContext(ctx, query,
		domain.NormalizeHandle(p.RecipientHandle),
		p.Amount.String(),
		domain.NormalizeHandle(p.SenderHandle),
		p.OriginEventID,
		now,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to enqueue pending blessing: %w", err)
	}
	p.ID = id
	p.CreatedAt = fromMillis(now)
	return true, nil
}

func (r *LedgerRepo) ConsumePending(ctx context.Context, id int64) error {
	return consumePending(ctx, r.db, r.db.nowMillis(), id)
}

func (r *LedgerRepo) IsProcessed(ctx context.Context, eventID int64) (bool, error) {
	var exists bool
	query := r.db.Rebind(`SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = ?)`)
	if err := r.db.GetContext(ctx, &exists, query, eventID); err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return exists, nil
}

func (r *LedgerRepo) MarkProcessed(ctx context.Context, eventID int64, reason string) error {
	return markProcessed(ctx, r.db, r.db.nowMillis(), eventID, reason)
}

func (r *LedgerRepo) Settle(ctx context.Context, s domain.Settlement) error {
	uow, err := r.db.NewUnitOfWork(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	for _, t := range s.Transfers {
		if err := uow.RecordTransfer(ctx, t.Handle, t.Direction); err != nil {
			return err
		}
	}
	if s.ConsumePendingID != 0 {
		if err := uow.ConsumePending(ctx, s.ConsumePendingID); err != nil {
			return err
		}
	}
	if err := uow.MarkProcessed(ctx, s.EventID, s.Reason); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit settlement: %w", err)
	}
	return nil
}

// Reason returns the recorded reason for a processed event.
func (r *LedgerRepo) Reason(ctx context.Context, eventID int64) (string, error) {
	var reason string
	query := r.db.Rebind(`SELECT reason FROM processed_events WHERE event_id = ?`)
	err := r.db.GetContext(ctx, &reason, query, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get processed reason: %w", err)
	}
	return reason, nil
}
