package sqldb

import (
	"context"
	"fmt"

	"github.com/vietddude/blessbot/internal/core/domain"
)

// TransferLogRepo implements storage.TransferLogRepository over SQL.
type TransferLogRepo struct {
	db *DB
}

// NewTransferLogRepo creates a new SQL transfer log repository.
func NewTransferLogRepo(db *DB) *TransferLogRepo {
	return &TransferLogRepo{db: db}
}

type transferLogRow struct {
	Hash    string `db:"hash"`
	From    string `db:"from_addr"`
	To      string `db:"to_addr"`
	Token   string `db:"token"`
	Amount  string `db:"amount"`
	Memo    string `db:"memo"`
	ChainID int64  `db:"chain_id"`
	TS      int64  `db:"ts"`
}

func (r *TransferLogRepo) Upsert(ctx context.Context, e *domain.TransferLogEntry) error {
	ts := e.Time
	if ts.IsZero() {
		ts = r.db.now()
	}
	query := r.db.Rebind(`
		INSERT INTO transfer_log (hash, from_addr, to_addr, token, amount, memo, chain_id, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (hash) DO UPDATE SET
			from_addr = excluded.from_addr,
			to_addr = excluded.to_addr,
			token = excluded.token,
			amount = excluded.amount,
			memo = excluded.memo,
			chain_id = excluded.chain_id,
			ts = excluded.ts
	`)
	_, err := r.db.ExecContext(ctx, query, e.Hash, e.From, e.To, e.Token, e.Amount, e.Memo, e.ChainID, toMillis(ts))
	if err != nil {
		return fmt.Errorf("failed to upsert transfer log: %w", err)
	}
	return nil
}

func (r *TransferLogRepo) Exists(ctx context.Context, hash string) (bool, error) {
	var exists bool
	query := r.db.Rebind(`SELECT EXISTS (SELECT 1 FROM transfer_log WHERE hash = ?)`)
	if err := r.db.GetContext(ctx, &exists, query, hash); err != nil {
		return false, fmt.Errorf("failed to check transfer log: %w", err)
	}
	return exists, nil
}

func (r *TransferLogRepo) Recent(ctx context.Context, limit int) ([]*domain.TransferLogEntry, error) {
	var rows []transferLogRow
	query := r.db.Rebind(`
		SELECT hash, from_addr, to_addr, token, amount, memo, chain_id, ts
		FROM transfer_log
		ORDER BY ts DESC
		LIMIT ?
	`)
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list transfer log: %w", err)
	}
	out := make([]*domain.TransferLogEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, &domain.TransferLogEntry{
			Hash:    row.Hash,
			From:    row.From,
			To:      row.To,
			Token:   row.Token,
			Amount:  row.Amount,
			Memo:    row.Memo,
			ChainID: row.ChainID,
			Time:    fromMillis(row.TS),
		})
	}
	return out, nil
}
