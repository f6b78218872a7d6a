package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/blessbot/internal/core/domain"
	"github.com/vietddude/blessbot/internal/infra/storage"
)

var (
	_ storage.LedgerStore           = (*LedgerRepo)(nil)
	_ storage.CursorRepository      = (*CursorRepo)(nil)
	_ storage.TransferJournal       = (*JournalRepo)(nil)
	_ storage.TransferLogRepository = (*TransferLogRepo)(nil)
)

func TestPendingOrderingAndUniqueness(t *testing.T) {
	store := NewMemoryStorage()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })
	repo := NewLedgerRepo(store)
	ctx := context.Background()

	first := &domain.PendingBlessing{RecipientHandle: "@Bob", SenderHandle: "alice", Amount: decimal.NewFromInt(1), OriginEventID: 1}
	ok, err := repo.EnqueuePendingIfAbsent(ctx, first)
	if err != nil || !ok {
		t.Fatalf("Enqueue = %v, %v", ok, err)
	}

	ok, _ = repo.EnqueuePendingIfAbsent(ctx, &domain.PendingBlessing{RecipientHandle: "bob", SenderHandle: "carol"})
	if ok {
		t.Fatal("expected second open pending to be rejected")
	}

	if err := repo.ConsumePending(ctx, first.ID); err != nil {
		t.Fatalf("ConsumePending() error = %v", err)
	}
	if err := repo.ConsumePending(ctx, first.ID); !errors.Is(err, storage.ErrPendingConsumed) {
		t.Errorf("ConsumePending() twice = %v", err)
	}

	got := repo.Pending("bob")
	if len(got) != 1 || !got[0].Consumed || got[0].ConsumedAt == nil {
		t.Errorf("Pending = %+v", got)
	}
}

func TestSettleValidatesBeforeMutating(t *testing.T) {
	store := NewMemoryStorage()
	repo := NewLedgerRepo(store)
	ctx := context.Background()

	err := repo.Settle(ctx, domain.Settlement{
		EventID:          3,
		Reason:           "bind_and_fulfill_pending",
		Transfers:        []domain.TransferSide{{Handle: "bob", Direction: domain.DirectionRecv}},
		ConsumePendingID: 99,
	})
	if !errors.Is(err, storage.ErrPendingNotFound) {
		t.Fatalf("Settle() = %v, want ErrPendingNotFound", err)
	}
	if len(repo.Transfers("bob")) != 0 {
		t.Error("expected no transfer rows")
	}
	if done, _ := repo.IsProcessed(ctx, 3); done {
		t.Error("expected event to stay unmarked")
	}
}

func TestLastTransferUsesNewestRow(t *testing.T) {
	store := NewMemoryStorage()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })
	repo := NewLedgerRepo(store)
	ctx := context.Background()

	_ = repo.RecordTransfer(ctx, "alice", domain.DirectionSent)
	now = now.Add(2 * time.Hour)
	_ = repo.RecordTransfer(ctx, "ALICE", domain.DirectionSent)

	last, err := repo.LastTransfer(ctx, "@alice", domain.DirectionSent)
	if err != nil || last == nil {
		t.Fatalf("LastTransfer = %v, %v", last, err)
	}
	if !last.Equal(now) {
		t.Errorf("LastTransfer = %v, want %v", last, now)
	}
}

func TestJournalListByStatus(t *testing.T) {
	store := NewMemoryStorage()
	repo := NewJournalRepo(store)
	ctx := context.Background()

	_ = repo.Record(ctx, &domain.OutboundTransfer{TxHash: "0x2", Nonce: 2, Status: domain.OutboundBroadcast})
	_ = repo.Record(ctx, &domain.OutboundTransfer{TxHash: "0x1", Nonce: 1, Status: domain.OutboundSigned})
	_ = repo.Record(ctx, &domain.OutboundTransfer{TxHash: "0x3", Nonce: 3, Status: domain.OutboundConfirmed})

	if err := repo.Record(ctx, &domain.OutboundTransfer{TxHash: "0x1"}); err == nil {
		t.Error("expected duplicate hash to be rejected")
	}

	open, _ := repo.ListByStatus(ctx, domain.OutboundSigned, domain.OutboundBroadcast)
	if len(open) != 2 || open[0].TxHash != "0x1" || open[1].TxHash != "0x2" {
		t.Errorf("ListByStatus = %+v", open)
	}
}
