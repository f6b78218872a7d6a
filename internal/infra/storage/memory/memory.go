package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/blessbot/internal/core/domain"
	"github.com/vietddude/blessbot/internal/infra/storage"
)

// MemoryStorage keeps every collection in process memory. It backs tests and
// dry runs; state is lost on exit.
type MemoryStorage struct {
	bindings  map[string]*domain.Binding
	transfers []*domain.TransferRecord
	pending   []*domain.PendingBlessing
	processed map[int64]*domain.ProcessedEvent
	cursors   map[string]*domain.Cursor
	journal   map[string]*domain.OutboundTransfer
	txLog     map[string]*domain.TransferLogEntry
	nextID    int64
	now       func() time.Time
	mu        sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		bindings:  make(map[string]*domain.Binding),
		processed: make(map[int64]*domain.ProcessedEvent),
		cursors:   make(map[string]*domain.Cursor),
		journal:   make(map[string]*domain.OutboundTransfer),
		txLog:     make(map[string]*domain.TransferLogEntry),
		now:       time.Now,
	}
}

// SetClock replaces the time source used for new rows.
func (s *MemoryStorage) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStorage) id() int64 {
	s.nextID++
	return s.nextID
}

// -----------------------------------------------------------------------------
// Ledger Store
// -----------------------------------------------------------------------------

type LedgerRepo struct {
	store *MemoryStorage
}

func NewLedgerRepo(store *MemoryStorage) *LedgerRepo {
	return &LedgerRepo{store: store}
}

func (r *LedgerRepo) GetBinding(ctx context.Context, handle string) (*domain.Binding, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if b, ok := r.store.bindings[domain.NormalizeHandle(handle)]; ok {
		copy := *b
		return &copy, nil
	}
	return nil, nil
}

func (r *LedgerRepo) CreateBindingIfAbsent(ctx context.Context, handle, address string, originEventID int64) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := domain.NormalizeHandle(handle)
	if _, ok := r.store.bindings[key]; ok {
		return false, nil
	}
	r.store.bindings[key] = &domain.Binding{
		Handle:        key,
		WalletAddress: address,
		BoundAt:       r.store.now().UTC(),
		OriginEventID: originEventID,
	}
	return true, nil
}

func (r *LedgerRepo) RecordTransfer(ctx context.Context, handle string, direction domain.Direction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.recordLocked(handle, direction)
}

func (r *LedgerRepo) recordLocked(handle string, direction domain.Direction) error {
	if !direction.Valid() {
		return fmt.Errorf("invalid transfer direction %q", direction)
	}
	r.store.transfers = append(r.store.transfers, &domain.TransferRecord{
		ID:        r.store.id(),
		Handle:    domain.NormalizeHandle(handle),
		Direction: direction,
		CreatedAt: r.store.now().UTC(),
	})
	return nil
}

func (r *LedgerRepo) LastTransfer(ctx context.Context, handle string, direction domain.Direction) (*time.Time, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	key := domain.NormalizeHandle(handle)
	var last *time.Time
	for _, t := range r.store.transfers {
		if t.Handle != key || t.Direction != direction {
			continue
		}
		if last == nil || t.CreatedAt.After(*last) {
			ts := t.CreatedAt
			last = &ts
		}
	}
	return last, nil
}

func (r *LedgerRepo) HasUnconsumedPending(ctx context.Context, handle string) (bool, error) {
	p, err := r.FirstUnconsumedPending(ctx, handle)
	return p != nil, err
}

func (r *LedgerRepo) FirstUnconsumedPending(ctx context.Context, handle string) (*domain.PendingBlessing, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	key := domain.NormalizeHandle(handle)
	var open []*domain.PendingBlessing
	for _, p := range r.store.pending {
		if p.RecipientHandle == key && !p.Consumed {
			open = append(open, p)
		}
	}
	if len(open) == 0 {
		return nil, nil
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].CreatedAt.Equal(open[j].CreatedAt) {
			return open[i].ID < open[j].ID
		}
		return open[i].CreatedAt.Before(open[j].CreatedAt)
	})
	copy := *open[0]
	return &copy, nil
}

func (r *LedgerRepo) EnqueuePendingIfAbsent(ctx context.Context, p *domain.PendingBlessing) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := domain.NormalizeHandle(p.RecipientHandle)
	for _, existing := range r.store.pending {
		if existing.RecipientHandle == key && !existing.Consumed {
			return false, nil
		}
	}
	row := *p
	row.ID = r.store.id()
	row.RecipientHandle = key
	row.SenderHandle = domain.NormalizeHandle(p.SenderHandle)
	row.CreatedAt = r.store.now().UTC()
	row.Consumed = false
	row.ConsumedAt = nil
	r.store.pending = append(r.store.pending, &row)

	p.ID = row.ID
	p.CreatedAt = row.CreatedAt
	return true, nil
}

func (r *LedgerRepo) ConsumePending(ctx context.Context, id int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.consumeLocked(id)
}

func (r *LedgerRepo) consumeLocked(id int64) error {
	for _, p := range r.store.pending {
		if p.ID != id {
			continue
		}
		if p.Consumed {
			return storage.ErrPendingConsumed
		}
		now := r.store.now().UTC()
		p.Consumed = true
		p.ConsumedAt = &now
		return nil
	}
	return storage.ErrPendingNotFound
}

func (r *LedgerRepo) IsProcessed(ctx context.Context, eventID int64) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	_, ok := r.store.processed[eventID]
	return ok, nil
}

func (r *LedgerRepo) MarkProcessed(ctx context.Context, eventID int64, reason string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.markLocked(eventID, reason)
	return nil
}

func (r *LedgerRepo) markLocked(eventID int64, reason string) {
	if _, ok := r.store.processed[eventID]; ok {
		return
	}
	r.store.processed[eventID] = &domain.ProcessedEvent{
		EventID:     eventID,
		Reason:      reason,
		ProcessedAt: r.store.now().UTC(),
	}
}

// Settle validates everything before mutating so a failure leaves no partial state.
func (r *LedgerRepo) Settle(ctx context.Context, s domain.Settlement) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, t := range s.Transfers {
		if !t.Direction.Valid() {
			return fmt.Errorf("invalid transfer direction %q", t.Direction)
		}
	}
	if s.ConsumePendingID != 0 {
		if err := r.checkConsumableLocked(s.ConsumePendingID); err != nil {
			return err
		}
	}

	for _, t := range s.Transfers {
		_ = r.recordLocked(t.Handle, t.Direction)
	}
	if s.ConsumePendingID != 0 {
		_ = r.consumeLocked(s.ConsumePendingID)
	}
	r.markLocked(s.EventID, s.Reason)
	return nil
}

func (r *LedgerRepo) checkConsumableLocked(id int64) error {
	for _, p := range r.store.pending {
		if p.ID == id {
			if p.Consumed {
				return storage.ErrPendingConsumed
			}
			return nil
		}
	}
	return storage.ErrPendingNotFound
}

// Reason returns the recorded reason for a processed event. Used by tests.
func (r *LedgerRepo) Reason(eventID int64) (string, bool) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if e, ok := r.store.processed[eventID]; ok {
		return e.Reason, true
	}
	return "", false
}

// Pending returns copies of every pending blessing for a recipient. Used by tests.
func (r *LedgerRepo) Pending(handle string) []domain.PendingBlessing {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	key := domain.NormalizeHandle(handle)
	var out []domain.PendingBlessing
	for _, p := range r.store.pending {
		if p.RecipientHandle == key {
			out = append(out, *p)
		}
	}
	return out
}

// Transfers returns copies of the rate-limit rows for a handle. Used by tests.
func (r *LedgerRepo) Transfers(handle string) []domain.TransferRecord {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	key := domain.NormalizeHandle(handle)
	var out []domain.TransferRecord
	for _, t := range r.store.transfers {
		if t.Handle == key {
			out = append(out, *t)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Cursor Repository
// -----------------------------------------------------------------------------

type CursorRepo struct {
	store *MemoryStorage
}

func NewCursorRepo(store *MemoryStorage) *CursorRepo {
	return &CursorRepo{store: store}
}

func (r *CursorRepo) Get(ctx context.Context, name string) (*domain.Cursor, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if c, ok := r.store.cursors[name]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, nil
}

func (r *CursorRepo) Save(ctx context.Context, name string, lastEventID int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.cursors[name] = &domain.Cursor{
		Name:        name,
		LastEventID: lastEventID,
		UpdatedAt:   r.store.now().UTC(),
	}
	return nil
}

// -----------------------------------------------------------------------------
// Transfer Journal
// -----------------------------------------------------------------------------

type JournalRepo struct {
	store *MemoryStorage
}

func NewJournalRepo(store *MemoryStorage) *JournalRepo {
	return &JournalRepo{store: store}
}

func (r *JournalRepo) Record(ctx context.Context, t *domain.OutboundTransfer) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.journal[t.TxHash]; ok {
		return fmt.Errorf("journal entry %s already exists", t.TxHash)
	}
	row := *t
	now := r.store.now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now
	r.store.journal[t.TxHash] = &row
	return nil
}

func (r *JournalRepo) UpdateStatus(ctx context.Context, txHash string, status domain.OutboundStatus, blockNumber uint64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t, ok := r.store.journal[txHash]
	if !ok {
		return fmt.Errorf("journal entry %s not found", txHash)
	}
	t.Status = status
	if blockNumber > 0 {
		t.BlockNumber = blockNumber
	}
	t.UpdatedAt = r.store.now().UTC()
	return nil
}

func (r *JournalRepo) ForEvent(ctx context.Context, eventID int64) ([]*domain.OutboundTransfer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.OutboundTransfer
	for _, t := range r.store.journal {
		if t.EventID == eventID {
			copy := *t
			out = append(out, &copy)
		}
	}
	sortByNonce(out)
	return out, nil
}

func (r *JournalRepo) ListByStatus(ctx context.Context, statuses ...domain.OutboundStatus) ([]*domain.OutboundTransfer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	want := make(map[domain.OutboundStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []*domain.OutboundTransfer
	for _, t := range r.store.journal {
		if want[t.Status] {
			copy := *t
			out = append(out, &copy)
		}
	}
	sortByNonce(out)
	return out, nil
}

func sortByNonce(ts []*domain.OutboundTransfer) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Nonce < ts[j].Nonce })
}

// -----------------------------------------------------------------------------
// Transfer Log Repository
// -----------------------------------------------------------------------------

type TransferLogRepo struct {
	store *MemoryStorage
}

func NewTransferLogRepo(store *MemoryStorage) *TransferLogRepo {
	return &TransferLogRepo{store: store}
}

func (r *TransferLogRepo) Upsert(ctx context.Context, e *domain.TransferLogEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	row := *e
	if row.Time.IsZero() {
		row.Time = r.store.now().UTC()
	}
	r.store.txLog[e.Hash] = &row
	return nil
}

func (r *TransferLogRepo) Exists(ctx context.Context, hash string) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	_, ok := r.store.txLog[hash]
	return ok, nil
}

func (r *TransferLogRepo) Recent(ctx context.Context, limit int) ([]*domain.TransferLogEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.TransferLogEntry, 0, len(r.store.txLog))
	for _, e := range r.store.txLog {
		copy := *e
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
