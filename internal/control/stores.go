package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/blessbot/internal/infra/storage"
	"github.com/vietddude/blessbot/internal/infra/storage/memory"
	"github.com/vietddude/blessbot/internal/infra/storage/sqldb"
)

// Stores groups the repositories the bot and its tools use.
type Stores struct {
	Ledger      storage.LedgerStore
	Cursor      storage.CursorRepository
	Journal     storage.TransferJournal
	TransferLog storage.TransferLogRepository

	DB *sqldb.DB // nil in memory mode
}

// OpenStores connects to the database and applies migrations. Without a
// database URL the state lives in memory.
func OpenStores(ctx context.Context, cfg sqldb.Config) (*Stores, error) {
	if cfg.URL == "" {
		store := memory.NewMemoryStorage()
		slog.Warn("Using memory storage, state will not survive a restart")
		return &Stores{
			Ledger:      memory.NewLedgerRepo(store),
			Cursor:      memory.NewCursorRepo(store),
			Journal:     memory.NewJournalRepo(store),
			TransferLog: memory.NewTransferLogRepo(store),
		}, nil
	}

	db, err := sqldb.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}
	slog.Info("Using SQL storage", "driver", db.Driver())

	return &Stores{
		Ledger:      sqldb.NewLedgerRepo(db),
		Cursor:      sqldb.NewCursorRepo(db),
		Journal:     sqldb.NewJournalRepo(db),
		TransferLog: sqldb.NewTransferLogRepo(db),
		DB:          db,
	}, nil
}

// Close releases the database connection.
func (s *Stores) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
