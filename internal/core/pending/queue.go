package pending

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vietddude/blessbot/internal/core/domain"
)

// EnqueueResult describes what Enqueue did.
type EnqueueResult int

const (
	// Enqueued means a new pending blessing was stored.
	Enqueued EnqueueResult = iota
	// Existing means another open pending blessing already holds the slot.
	Existing
	// Replayed means the open pending blessing was created by this same event.
	Replayed
)

func (r EnqueueResult) String() string {
	switch r {
	case Enqueued:
		return "enqueued"
	case Existing:
		return "existing"
	case Replayed:
		return "replayed"
	}
	return "unknown"
}

// Store is the part of the ledger the queue needs.
type Store interface {
	HasUnconsumedPending(ctx context.Context, handle string) (bool, error)
	FirstUnconsumedPending(ctx context.Context, handle string) (*domain.PendingBlessing, error)
	EnqueuePendingIfAbsent(ctx context.Context, p *domain.PendingBlessing) (bool, error)
}

// Queue holds blessings for handles that have not bound a wallet yet.
// At most one open entry exists per recipient.
type Queue struct {
	store Store
}

// NewQueue creates a queue over the ledger.
func NewQueue(store Store) *Queue {
	return &Queue{store: store}
}

// Enqueue stores a blessing for recipient unless one is already waiting.
func (q *Queue) Enqueue(
	ctx context.Context,
	recipient, sender string,
	amount decimal.Decimal,
	originEventID int64,
) (EnqueueResult, error) {
	p := &domain.PendingBlessing{
		RecipientHandle: domain.NormalizeHandle(recipient),
		SenderHandle:    domain.NormalizeHandle(sender),
		Amount:          amount,
		OriginEventID:   originEventID,
	}
	created, err := q.store.EnqueuePendingIfAbsent(ctx, p)
	if err != nil {
		return Existing, fmt.Errorf("failed to enqueue pending blessing: %w", err)
	}
	if created {
		return Enqueued, nil
	}

	existing, err := q.store.FirstUnconsumedPending(ctx, p.RecipientHandle)
	if err != nil {
		return Existing, fmt.Errorf("failed to read pending blessing: %w", err)
	}
	if existing != nil && existing.OriginEventID == originEventID {
		return Replayed, nil
	}
	return Existing, nil
}

// Oldest returns the earliest open blessing for recipient, or nil.
func (q *Queue) Oldest(ctx context.Context, recipient string) (*domain.PendingBlessing, error) {
	p, err := q.store.FirstUnconsumedPending(ctx, domain.NormalizeHandle(recipient))
	if err != nil {
		return nil, fmt.Errorf("failed to read pending blessing: %w", err)
	}
	return p, nil
}

// Has reports whether a blessing is waiting for recipient.
func (q *Queue) Has(ctx context.Context, recipient string) (bool, error) {
	ok, err := q.store.HasUnconsumedPending(ctx, domain.NormalizeHandle(recipient))
	if err != nil {
		return false, fmt.Errorf("failed to check pending blessing: %w", err)
	}
	return ok, nil
}
