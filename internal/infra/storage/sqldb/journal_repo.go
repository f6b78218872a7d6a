package sqldb

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/vietddude/blessbot/internal/core/domain"
)

// JournalRepo implements storage.TransferJournal over SQL.
type JournalRepo struct {
	db *DB
}

// NewJournalRepo creates a new SQL transfer journal.
func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

type outboundRow struct {
	TxHash      string          `db:"tx_hash"`
	EventID     int64           `db:"event_id"`
	Nonce       int64           `db:"nonce"`
	ToAddress   string          `db:"to_address"`
	Amount      decimal.Decimal `db:"amount"`
	Status      string          `db:"status"`
	BlockNumber int64           `db:"block_number"`
	CreatedAt   int64           `db:"created_at"`
	UpdatedAt   int64           `db:"updated_at"`
}

func (r outboundRow) toDomain() *domain.OutboundTransfer {
	return &domain.OutboundTransfer{
		TxHash:      r.TxHash,
		EventID:     r.EventID,
		Nonce:       uint64(r.Nonce),
		ToAddress:   r.ToAddress,
		Amount:      r.Amount,
		Status:      domain.OutboundStatus(r.Status),
		BlockNumber: uint64(r.BlockNumber),
		CreatedAt:   fromMillis(r.CreatedAt),
		UpdatedAt:   fromMillis(r.UpdatedAt),
	}
}

const outboundColumns = `tx_hash, event_id, nonce, to_address, amount, status, block_number, created_at, updated_at`

func (r *JournalRepo) Record(ctx context.Context, t *domain.OutboundTransfer) error {
	now := r.db.nowMillis()
	query := r.db.Rebind(`
		INSERT INTO outbound_transfers (` + outboundColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		t.TxHash, t.EventID, int64(t.Nonce), t.ToAddress, t.Amount.String(),
		string(t.Status), int64(t.BlockNumber), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to record outbound transfer: %w", err)
	}
	return nil
}

func (r *JournalRepo) UpdateStatus(ctx context.Context, txHash string, status domain.OutboundStatus, blockNumber uint64) error {
	query := r.db.Rebind(`UPDATE outbound_transfers SET status = ?, updated_at = ? WHERE tx_hash = ?`)
	args := []any{string(status), r.db.nowMillis(), txHash}
	if blockNumber > 0 {
		query = r.db.Rebind(`UPDATE outbound_transfers SET status = ?, updated_at = ?, block_number = ? WHERE tx_hash = ?`)
		args = []any{string(status), r.db.nowMillis(), int64(blockNumber), txHash}
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update outbound transfer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("outbound transfer %s not found", txHash)
	}
	return nil
}

func (r *JournalRepo) ForEvent(ctx context.Context, eventID int64) ([]*domain.OutboundTransfer, error) {
	var rows []outboundRow
	query := r.db.Rebind(`SELECT ` + outboundColumns + ` FROM outbound_transfers WHERE event_id = ? ORDER BY nonce ASC`)
	if err := r.db.SelectContext(ctx, &rows, query, eventID); err != nil {
		return nil, fmt.Errorf("failed to list outbound transfers: %w", err)
	}
	return toOutbound(rows), nil
}

func (r *JournalRepo) ListByStatus(ctx context.Context, statuses ...domain.OutboundStatus) ([]*domain.OutboundTransfer, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	query, args, err := sqlx.In(`SELECT `+outboundColumns+` FROM outbound_transfers WHERE status IN (?) ORDER BY nonce ASC`, names)
	if err != nil {
		return nil, fmt.Errorf("failed to build status query: %w", err)
	}
	var rows []outboundRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list outbound transfers: %w", err)
	}
	return toOutbound(rows), nil
}

func toOutbound(rows []outboundRow) []*domain.OutboundTransfer {
	out := make([]*domain.OutboundTransfer, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}
