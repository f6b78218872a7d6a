package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/blessbot/internal/core/domain"
)

var (
	// ErrPendingConsumed is returned when a pending blessing was already resolved.
	ErrPendingConsumed = errors.New("pending blessing already consumed")

	// ErrPendingNotFound is returned when consuming an unknown pending blessing.
	ErrPendingNotFound = errors.New("pending blessing not found")
)

// LedgerStore holds the engine's durable state: bindings, rate-limit history,
// pending blessings and processed-event markers. Every method commits before
// returning. Handles are normalized by the store.
type LedgerStore interface {
	// GetBinding returns the binding for handle, or nil when the handle is unbound.
	GetBinding(ctx context.Context, handle string) (*domain.Binding, error)

	// CreateBindingIfAbsent stores a binding unless one exists. Reports whether it was created.
	CreateBindingIfAbsent(ctx context.Context, handle, address string, originEventID int64) (bool, error)

	// RecordTransfer appends a rate-limit row.
	RecordTransfer(ctx context.Context, handle string, direction domain.Direction) error

	// LastTransfer returns the newest rate-limit row time, or nil when there is none.
	LastTransfer(ctx context.Context, handle string, direction domain.Direction) (*time.Time, error)

	// HasUnconsumedPending reports whether an open pending blessing exists for handle.
	HasUnconsumedPending(ctx context.Context, handle string) (bool, error)

	// FirstUnconsumedPending returns the oldest open pending blessing, or nil.
	FirstUnconsumedPending(ctx context.Context, handle string) (*domain.PendingBlessing, error)

	// EnqueuePendingIfAbsent stores p unless an open pending blessing exists for its
	// recipient. On success p.ID and p.CreatedAt are filled in.
	EnqueuePendingIfAbsent(ctx context.Context, p *domain.PendingBlessing) (bool, error)

	// ConsumePending resolves a pending blessing.
	ConsumePending(ctx context.Context, id int64) error

	// IsProcessed reports whether the event already ran.
	IsProcessed(ctx context.Context, eventID int64) (bool, error)

	// MarkProcessed records the event marker. Marking twice keeps the first reason.
	MarkProcessed(ctx context.Context, eventID int64, reason string) error

	// Settle applies transfer rows, pending consumption and the processed marker
	// in one transaction.
	Settle(ctx context.Context, s domain.Settlement) error
}

// CursorRepository stores the resume cursor of the mention stream.
type CursorRepository interface {
	// Get returns the cursor, or nil when it was never saved.
	Get(ctx context.Context, name string) (*domain.Cursor, error)

	// Save upserts the cursor.
	Save(ctx context.Context, name string, lastEventID int64) error
}

// TransferJournal records every transfer the funder signs.
type TransferJournal interface {
	// Record inserts a new journal entry.
	Record(ctx context.Context, t *domain.OutboundTransfer) error

	// UpdateStatus moves an entry to a new status.
	UpdateStatus(ctx context.Context, txHash string, status domain.OutboundStatus, blockNumber uint64) error

	// ForEvent returns the entries issued while handling an event.
	ForEvent(ctx context.Context, eventID int64) ([]*domain.OutboundTransfer, error)

	// ListByStatus returns entries in any of the given statuses, oldest first.
	ListByStatus(ctx context.Context, statuses ...domain.OutboundStatus) ([]*domain.OutboundTransfer, error)
}

// TransferLogRepository backs the query service's activity feed.
type TransferLogRepository interface {
	// Upsert stores or replaces an entry keyed by hash.
	Upsert(ctx context.Context, e *domain.TransferLogEntry) error

	// Exists reports whether a hash was logged.
	Exists(ctx context.Context, hash string) (bool, error)

	// Recent returns the newest entries.
	Recent(ctx context.Context, limit int) ([]*domain.TransferLogEntry, error)
}
