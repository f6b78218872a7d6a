package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/blessbot/internal/core/cursor"
	"github.com/vietddude/blessbot/internal/core/domain"
	"github.com/vietddude/blessbot/internal/core/pending"
	"github.com/vietddude/blessbot/internal/core/ratelimit"
	"github.com/vietddude/blessbot/internal/infra/chain/evm"
	"github.com/vietddude/blessbot/internal/infra/storage"
	"github.com/vietddude/blessbot/internal/infra/storage/memory"
)

const (
	bobWallet   = "0x00000000000000000000000000000000000000b0"
	carolWallet = "0x00000000000000000000000000000000000000c0"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeTransfers struct {
	mu    sync.Mutex
	sends []evm.TransferRequest
	errs  []error
	n     int
}

func (f *fakeTransfers) Send(ctx context.Context, req evm.TransferRequest) (*evm.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.n++
	return &evm.TransferResult{TxHash: fmt.Sprintf("0xtx%d", f.n)}, nil
}

func (f *fakeTransfers) Token() evm.TokenInfo {
	return evm.TokenInfo{Symbol: "CIK", Decimals: 18}
}

type fakeSource struct {
	mentions []domain.Mention
	since    []int64
	err      error
}

func (f *fakeSource) Fetch(ctx context.Context, sinceID int64) ([]domain.Mention, error) {
	f.since = append(f.since, sinceID)
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Mention
	for _, m := range f.mentions {
		if m.ID > sinceID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeSink struct {
	replies []domain.Reply
	err     error
}

func (f *fakeSink) Reply(ctx context.Context, r domain.Reply) error {
	f.replies = append(f.replies, r)
	return f.err
}

// countingLedger counts every mutating call that reaches the store.
type countingLedger struct {
	storage.LedgerStore
	mutations int
}

func (c *countingLedger) CreateBindingIfAbsent(ctx context.Context, handle, address string, origin int64) (bool, error) {
	c.mutations++
	return c.LedgerStore.CreateBindingIfAbsent(ctx, handle, address, origin)
}

func (c *countingLedger) RecordTransfer(ctx context.Context, handle string, d domain.Direction) error {
	c.mutations++
	return c.LedgerStore.RecordTransfer(ctx, handle, d)
}

func (c *countingLedger) EnqueuePendingIfAbsent(ctx context.Context, p *domain.PendingBlessing) (bool, error) {
	c.mutations++
	return c.LedgerStore.EnqueuePendingIfAbsent(ctx, p)
}

func (c *countingLedger) ConsumePending(ctx context.Context, id int64) error {
	c.mutations++
	return c.LedgerStore.ConsumePending(ctx, id)
}

func (c *countingLedger) MarkProcessed(ctx context.Context, id int64, reason string) error {
	c.mutations++
	return c.LedgerStore.MarkProcessed(ctx, id, reason)
}

func (c *countingLedger) Settle(ctx context.Context, s domain.Settlement) error {
	c.mutations++
	return c.LedgerStore.Settle(ctx, s)
}

// failingLedger fails the processed check for one event.
type failingLedger struct {
	storage.LedgerStore
	failID int64
}

func (f *failingLedger) IsProcessed(ctx context.Context, id int64) (bool, error) {
	if id == f.failID {
		return false, errors.New("connection reset")
	}
	return f.LedgerStore.IsProcessed(ctx, id)
}

// ============================================================================
// Harness
// ============================================================================

type harness struct {
	t         *testing.T
	now       time.Time
	store     *memory.MemoryStorage
	ledger    *memory.LedgerRepo
	counting  *countingLedger
	journal   *memory.JournalRepo
	cursor    *cursor.DefaultManager
	transfers *fakeTransfers
	source    *fakeSource
	sink      *fakeSink
	orch      *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		now:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		store:     memory.NewMemoryStorage(),
		transfers: &fakeTransfers{},
		source:    &fakeSource{},
		sink:      &fakeSink{},
	}
	clock := func() time.Time { return h.now }
	h.store.SetClock(clock)
	h.ledger = memory.NewLedgerRepo(h.store)
	h.counting = &countingLedger{LedgerStore: h.ledger}
	h.journal = memory.NewJournalRepo(h.store)
	h.cursor = cursor.NewManager(memory.NewCursorRepo(h.store))
	h.build(h.counting)
	return h
}

func (h *harness) build(ledger storage.LedgerStore) {
	h.orch = New(Deps{
		Ledger:    ledger,
		Journal:   h.journal,
		Limiter:   ratelimit.New(ledger, ratelimit.WithClock(func() time.Time { return h.now })),
		Pending:   pending.NewQueue(ledger),
		Transfers: h.transfers,
		Cursor:    h.cursor,
		Source:    h.source,
		Replies:   h.sink,
	}, Config{
		BotHandle:     "@BlessBot",
		BindReward:    decimal.NewFromInt(1000),
		BlessAmount:   decimal.NewFromInt(100),
		ExplorerTxURL: "https://scan.test/tx/%s",
		Images:        ImageConfig{Dir: h.t.TempDir()},
	})
}

func (h *harness) handle(id int64, author, text string) Outcome {
	h.t.Helper()
	out, err := h.orch.Handle(context.Background(), domain.Mention{ID: id, Handle: author, Text: text})
	if err != nil {
		h.t.Fatalf("Handle(%d) error = %v", id, err)
	}
	return out
}

func (h *harness) bind(handle, wallet string, origin int64) {
	h.t.Helper()
	if _, err := h.ledger.CreateBindingIfAbsent(context.Background(), handle, checksum(wallet), origin); err != nil {
		h.t.Fatal(err)
	}
}

func (h *harness) lastReply() domain.Reply {
	h.t.Helper()
	if len(h.sink.replies) == 0 {
		h.t.Fatal("expected a reply")
	}
	return h.sink.replies[len(h.sink.replies)-1]
}

func (h *harness) expectReason(id int64, want Reason) {
	h.t.Helper()
	got, ok := h.ledger.Reason(id)
	if !ok {
		h.t.Fatalf("event %d not marked", id)
	}
	if got != string(want) {
		h.t.Errorf("event %d reason = %s, want %s", id, got, want)
	}
}

func countDir(rows []domain.TransferRecord, d domain.Direction) int {
	n := 0
	for _, r := range rows {
		if r.Direction == d {
			n++
		}
	}
	return n
}

// ============================================================================
// Scenarios
// ============================================================================

func TestBlessUnboundThenBareAddressFulfills(t *testing.T) {
	h := newHarness(t)

	out := h.handle(1, "Alice", "@blessbot bless @Bob")
	if out.Reason != ReasonNeedsBindEnqueued {
		t.Fatalf("reason = %s", out.Reason)
	}
	if got := h.lastReply().Message; got != "@bob needs to join the faith first. Please drop your ETH wallet below" {
		t.Errorf("reply = %q", got)
	}
	if countDir(h.ledger.Transfers("alice"), domain.DirectionSent) != 1 {
		t.Error("expected a sent row for alice")
	}
	if p := h.ledger.Pending("bob"); len(p) != 1 || p[0].SenderHandle != "alice" || !p[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("pending = %+v", p)
	}
	if len(h.transfers.sends) != 0 {
		t.Fatal("no transfer expected for an unbound recipient")
	}

	out = h.handle(2, "bob", "@blessbot here you go "+bobWallet)
	if out.Reason != ReasonBindAndFulfillPendingBare {
		t.Fatalf("reason = %s", out.Reason)
	}
	if len(h.transfers.sends) != 1 {
		t.Fatalf("sends = %d", len(h.transfers.sends))
	}
	send := h.transfers.sends[0]
	if !send.Amount.Equal(decimal.NewFromInt(1100)) || send.To != checksum(bobWallet) || send.EventID != 2 {
		t.Errorf("send = %+v", send)
	}
	p := h.ledger.Pending("bob")
	if len(p) != 1 || !p[0].Consumed {
		t.Errorf("pending should be consumed: %+v", p)
	}
	if countDir(h.ledger.Transfers("bob"), domain.DirectionRecv) != 1 {
		t.Error("expected a recv row for bob")
	}
	want := fmt.Sprintf("your wallet %s is bound. You’ve received 1000 CIK (bind) + 100 CIK blessing. Tx: https://scan.test/tx/0xtx1", checksum(bobWallet))
	if got := h.lastReply().Message; got != want {
		t.Errorf("reply = %q\nwant   %q", got, want)
	}
	if h.lastReply().Handle != "bob" {
		t.Errorf("reply handle = %q", h.lastReply().Handle)
	}
}

func TestBareAddressWithoutPendingAsksForBind(t *testing.T) {
	h := newHarness(t)

	out := h.handle(1, "dave", bobWallet)
	if out.Reason != ReasonBindInstructions {
		t.Fatalf("reason = %s", out.Reason)
	}
	if b, _ := h.ledger.GetBinding(context.Background(), "dave"); b != nil {
		t.Error("bare address without pending must not bind")
	}
	if got := h.lastReply().Message; got != `to bind, reply: "bind me 0xYOURADDRESS"` {
		t.Errorf("reply = %q", got)
	}
}

func TestBindRequest(t *testing.T) {
	t.Run("fresh bind pays the reward", func(t *testing.T) {
		h := newHarness(t)
		out := h.handle(5, "Carol", "bind me "+carolWallet)
		if out.Reason != ReasonBindReward {
			t.Fatalf("reason = %s", out.Reason)
		}
		b, _ := h.ledger.GetBinding(context.Background(), "carol")
		if b == nil || b.WalletAddress != checksum(carolWallet) || b.OriginEventID != 5 {
			t.Fatalf("binding = %+v", b)
		}
		if !h.transfers.sends[0].Amount.Equal(decimal.NewFromInt(1000)) {
			t.Errorf("amount = %s", h.transfers.sends[0].Amount)
		}
		want := fmt.Sprintf("your wallet %s is bound and you’ve received 1000 CIK! Tx: https://scan.test/tx/0xtx1", checksum(carolWallet))
		if got := h.lastReply().Message; got != want {
			t.Errorf("reply = %q", got)
		}
	})

	t.Run("same address", func(t *testing.T) {
		h := newHarness(t)
		h.bind("carol", carolWallet, 1)
		out := h.handle(5, "carol", "bind me "+carolWallet)
		if out.Reason != ReasonAlreadyBoundSame {
			t.Fatalf("reason = %s", out.Reason)
		}
		if !strings.HasSuffix(h.lastReply().Message, "No changes made.") {
			t.Errorf("reply = %q", h.lastReply().Message)
		}
		if len(h.transfers.sends) != 0 {
			t.Error("no transfer expected")
		}
	})

	t.Run("different address", func(t *testing.T) {
		h := newHarness(t)
		h.bind("carol", carolWallet, 1)
		out := h.handle(5, "carol", "bind me "+bobWallet)
		if out.Reason != ReasonAlreadyBoundDiff {
			t.Fatalf("reason = %s", out.Reason)
		}
		b, _ := h.ledger.GetBinding(context.Background(), "carol")
		if b.WalletAddress != checksum(carolWallet) {
			t.Error("binding must never change")
		}
		if !strings.HasSuffix(h.lastReply().Message, "Binding cannot be changed.") {
			t.Errorf("reply = %q", h.lastReply().Message)
		}
	})

	t.Run("bare address when bound", func(t *testing.T) {
		h := newHarness(t)
		h.bind("carol", carolWallet, 1)
		out := h.handle(5, "carol", bobWallet)
		if out.Reason != ReasonAlreadyBoundBare {
			t.Fatalf("reason = %s", out.Reason)
		}
	})

	t.Run("reward failure keeps binding", func(t *testing.T) {
		h := newHarness(t)
		h.transfers.errs = []error{&evm.TransferError{Stage: evm.StageBroadcast, Err: errors.New("rpc down")}}
		out := h.handle(5, "carol", "bind me "+carolWallet)
		if out.Reason != ReasonBindRewardFailed {
			t.Fatalf("reason = %s", out.Reason)
		}
		if b, _ := h.ledger.GetBinding(context.Background(), "carol"); b == nil {
			t.Error("binding should be kept")
		}
		if len(h.ledger.Transfers("carol")) != 0 {
			t.Error("failed reward must not record a recv row")
		}
		if got := h.lastReply().Message; got != "bind saved but reward failed to send." {
			t.Errorf("reply = %q", got)
		}
	})
}

func TestCombinedRewardFallback(t *testing.T) {
	setup := func(t *testing.T, errs ...error) *harness {
		h := newHarness(t)
		ctx := context.Background()
		if _, err := h.orch.Pending.Enqueue(ctx, "bob", "alice", decimal.NewFromInt(250), 1); err != nil {
			t.Fatal(err)
		}
		h.transfers.errs = errs
		return h
	}

	t.Run("definite failure falls back to bind reward", func(t *testing.T) {
		h := setup(t, &evm.TransferError{Stage: evm.StageReceipt, Err: evm.ErrReverted})
		out := h.handle(2, "bob", "bind me "+bobWallet)
		if out.Reason != ReasonBindReward {
			t.Fatalf("reason = %s", out.Reason)
		}
		if len(h.transfers.sends) != 2 {
			t.Fatalf("sends = %d", len(h.transfers.sends))
		}
		if !h.transfers.sends[0].Amount.Equal(decimal.NewFromInt(1250)) || !h.transfers.sends[1].Amount.Equal(decimal.NewFromInt(1000)) {
			t.Errorf("amounts = %s, %s", h.transfers.sends[0].Amount, h.transfers.sends[1].Amount)
		}
		if p := h.ledger.Pending("bob"); p[0].Consumed {
			t.Error("pending must stay open when only the bind reward was paid")
		}
	})

	t.Run("ambiguous failure does not retry", func(t *testing.T) {
		h := setup(t, &evm.TransferError{Stage: evm.StageReceipt, Ambiguous: true, Err: evm.ErrReceiptTimeout})
		out := h.handle(2, "bob", "bind me "+bobWallet)
		if out.Reason != ReasonBindRewardFailed {
			t.Fatalf("reason = %s", out.Reason)
		}
		if len(h.transfers.sends) != 1 {
			t.Errorf("sends = %d, want 1", len(h.transfers.sends))
		}
	})

	t.Run("unacknowledged broadcast does not retry", func(t *testing.T) {
		h := setup(t, &evm.TransferError{Stage: evm.StageBroadcast, TxHash: "0xabc", Ambiguous: true, Err: errors.New("i/o timeout")})
		out := h.handle(2, "bob", "bind me "+bobWallet)
		if out.Reason != ReasonBindRewardFailed {
			t.Fatalf("reason = %s", out.Reason)
		}
		if len(h.transfers.sends) != 1 {
			t.Errorf("sends = %d, want 1", len(h.transfers.sends))
		}
		if p := h.ledger.Pending("bob"); p[0].Consumed {
			t.Error("pending must stay open while the payout is unknown")
		}
	})
}

func TestBlessBoundRecipient(t *testing.T) {
	h := newHarness(t)
	h.bind("bob", bobWallet, 1)

	out := h.handle(10, "alice", "bless @BOB")
	if out.Reason != ReasonBlessSent || out.TxHash != "0xtx1" {
		t.Fatalf("outcome = %+v", out)
	}
	if h.transfers.sends[0].To != checksum(bobWallet) || !h.transfers.sends[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("send = %+v", h.transfers.sends[0])
	}
	if countDir(h.ledger.Transfers("alice"), domain.DirectionSent) != 1 || countDir(h.ledger.Transfers("bob"), domain.DirectionRecv) != 1 {
		t.Error("expected sent and recv rows")
	}
	if got := h.lastReply().Message; got != "→ @bob: 100 CIK sent! Tx: https://scan.test/tx/0xtx1" {
		t.Errorf("reply = %q", got)
	}

	// Sender limited within the window.
	h.now = h.now.Add(time.Hour)
	if out := h.handle(11, "alice", "bless @carol"); out.Reason != ReasonSenderRateLimit {
		t.Errorf("reason = %s, want sender_rate_limit", out.Reason)
	}
	if got := h.lastReply().Message; got != "you can only send a blessing once every 24h." {
		t.Errorf("reply = %q", got)
	}

	// Recipient limited within the window.
	if out := h.handle(12, "dave", "bless bob"); out.Reason != ReasonRecipientRateLimit {
		t.Errorf("reason = %s, want recipient_rate_limit", out.Reason)
	}
	if got := h.lastReply().Message; got != "@bob already received CIK in last 24h." {
		t.Errorf("reply = %q", got)
	}

	// Both windows expire.
	h.now = h.now.Add(24 * time.Hour)
	if out := h.handle(13, "alice", "bless bob"); out.Reason != ReasonBlessSent {
		t.Errorf("reason = %s, want bless_sent", out.Reason)
	}
	if len(h.transfers.sends) != 2 {
		t.Errorf("sends = %d", len(h.transfers.sends))
	}
}

func TestBlessEdgeCases(t *testing.T) {
	t.Run("self bless", func(t *testing.T) {
		h := newHarness(t)
		if out := h.handle(1, "Alice", "bless @alice"); out.Reason != ReasonSelfBlessBlock {
			t.Fatalf("reason = %s", out.Reason)
		}
		if got := h.lastReply().Message; got != "you can’t bless yourself." {
			t.Errorf("reply = %q", got)
		}
		if len(h.ledger.Transfers("alice")) != 0 {
			t.Error("self bless must not record rows")
		}
	})

	t.Run("transfer failure records nothing", func(t *testing.T) {
		h := newHarness(t)
		h.bind("bob", bobWallet, 1)
		h.transfers.errs = []error{&evm.TransferError{Stage: evm.StageEstimate, Err: errors.New("boom")}}
		if out := h.handle(2, "alice", "bless bob"); out.Reason != ReasonBlessFailed {
			t.Fatalf("reason = %s", out.Reason)
		}
		if len(h.ledger.Transfers("alice")) != 0 || len(h.ledger.Transfers("bob")) != 0 {
			t.Error("failed blessing must not consume rate limits")
		}
		if got := h.lastReply().Message; got != "failed to send blessing." {
			t.Errorf("reply = %q", got)
		}
	})

	t.Run("second blessing for unbound recipient", func(t *testing.T) {
		h := newHarness(t)
		h.handle(1, "alice", "bless bob")
		out := h.handle(2, "carol", "bless bob")
		if out.Reason != ReasonNeedsBindExistingPending {
			t.Fatalf("reason = %s", out.Reason)
		}
		if len(h.ledger.Transfers("carol")) != 0 {
			t.Error("existing pending must not charge the sender")
		}
		if len(h.ledger.Pending("bob")) != 1 {
			t.Error("expected a single pending row")
		}
	})

	t.Run("unrecognized and self mention stay silent", func(t *testing.T) {
		h := newHarness(t)
		if out := h.handle(1, "alice", "gm frens"); out.Reason != ReasonUnrecognized {
			t.Errorf("reason = %s", out.Reason)
		}
		if out := h.handle(2, "BlessBot", "bless @alice"); out.Reason != ReasonSelfMention {
			t.Errorf("reason = %s", out.Reason)
		}
		if len(h.sink.replies) != 0 {
			t.Errorf("replies = %d, want 0", len(h.sink.replies))
		}
	})
}

// ============================================================================
// Idempotency and recovery
// ============================================================================

func TestReplayIsNoop(t *testing.T) {
	h := newHarness(t)
	h.bind("bob", bobWallet, 1)
	h.handle(7, "alice", "bless bob")

	mutations := h.counting.mutations
	replies := len(h.sink.replies)
	sends := len(h.transfers.sends)

	out := h.handle(7, "alice", "bless bob")
	if !out.Skipped {
		t.Fatal("expected replay to be skipped")
	}
	if h.counting.mutations != mutations || len(h.sink.replies) != replies || len(h.transfers.sends) != sends {
		t.Errorf("replay caused side effects: mutations %d->%d replies %d->%d sends %d->%d",
			mutations, h.counting.mutations, replies, len(h.sink.replies), sends, len(h.transfers.sends))
	}
}

func TestCrashAfterBindingResumesReward(t *testing.T) {
	h := newHarness(t)
	// Binding committed by event 9 before the crash; marker missing.
	h.bind("bob", bobWallet, 9)

	out := h.handle(9, "bob", "bind me "+bobWallet)
	if out.Reason != ReasonBindReward {
		t.Fatalf("reason = %s", out.Reason)
	}
	if len(h.transfers.sends) != 1 {
		t.Errorf("sends = %d", len(h.transfers.sends))
	}
}

func TestCrashAfterEnqueueRecordsSender(t *testing.T) {
	h := newHarness(t)
	if _, err := h.orch.Pending.Enqueue(context.Background(), "bob", "alice", decimal.NewFromInt(100), 4); err != nil {
		t.Fatal(err)
	}

	out := h.handle(4, "alice", "bless bob")
	if out.Reason != ReasonNeedsBindEnqueued {
		t.Fatalf("reason = %s", out.Reason)
	}
	if countDir(h.ledger.Transfers("alice"), domain.DirectionSent) != 1 {
		t.Error("replayed enqueue should still charge the sender once")
	}
}

func TestJournaledTransferBlocksResend(t *testing.T) {
	h := newHarness(t)
	h.bind("bob", bobWallet, 1)
	err := h.journal.Record(context.Background(), &domain.OutboundTransfer{
		TxHash: "0xabc", EventID: 3, Nonce: 1, Status: domain.OutboundBroadcast,
	})
	if err != nil {
		t.Fatal(err)
	}

	out := h.handle(3, "alice", "bless bob")
	if out.Reason != ReasonTransferNeedsReconcile {
		t.Fatalf("reason = %s", out.Reason)
	}
	if len(h.transfers.sends) != 0 || len(h.sink.replies) != 0 {
		t.Error("guarded event must not send or reply")
	}

	// A failed journal entry does not block.
	_ = h.journal.Record(context.Background(), &domain.OutboundTransfer{
		TxHash: "0xdef", EventID: 4, Nonce: 2, Status: domain.OutboundFailed,
	})
	if out := h.handle(4, "alice", "bless bob"); out.Reason != ReasonBlessSent {
		t.Errorf("reason = %s", out.Reason)
	}
}

func TestReplyFailureKeepsMarker(t *testing.T) {
	h := newHarness(t)
	h.sink.err = errors.New("page crashed")

	h.handle(1, "dave", "bind me "+bobWallet)
	h.expectReason(1, ReasonBindReward)
	if out := h.handle(1, "dave", "bind me "+bobWallet); !out.Skipped {
		t.Error("event must stay processed after a failed reply")
	}
}

// ============================================================================
// Batches
// ============================================================================

func TestRunCycleAdvancesCursor(t *testing.T) {
	h := newHarness(t)
	h.source.mentions = []domain.Mention{
		{ID: 30, Handle: "carol", Text: "gm"},
		{ID: 10, Handle: "alice", Text: "bless bob"},
		{ID: 20, Handle: "bob", Text: bobWallet},
	}
	ctx := context.Background()

	if err := h.orch.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	h.expectReason(10, ReasonNeedsBindEnqueued)
	h.expectReason(20, ReasonBindAndFulfillPendingBare)
	h.expectReason(30, ReasonUnrecognized)
	if pos, _ := h.cursor.Position(ctx); pos != 30 {
		t.Errorf("cursor = %d, want 30", pos)
	}

	if err := h.orch.RunCycle(ctx); err != nil {
		t.Fatalf("second RunCycle() error = %v", err)
	}
	if got := h.source.since[1]; got != 30 {
		t.Errorf("second fetch since = %d, want 30", got)
	}
}

func TestProcessBatchAbortsOnStoreFailure(t *testing.T) {
	h := newHarness(t)
	h.build(&failingLedger{LedgerStore: h.ledger, failID: 2})
	ctx := context.Background()

	res, err := h.orch.ProcessBatch(ctx, []domain.Mention{
		{ID: 1, Handle: "alice", Text: "gm"},
		{ID: 2, Handle: "alice", Text: "gm"},
		{ID: 3, Handle: "alice", Text: "gm"},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Handled != 1 || res.Highest != 1 {
		t.Errorf("result = %+v", res)
	}
	if _, ok := h.ledger.Reason(2); ok {
		t.Error("failed event must stay unmarked")
	}
	if _, ok := h.ledger.Reason(3); ok {
		t.Error("events after the failure must not run")
	}
	if pos, _ := h.cursor.Position(ctx); pos != 1 {
		t.Errorf("cursor = %d, want 1", pos)
	}
}

func TestRepliesCarryImages(t *testing.T) {
	h := newHarness(t)
	dir := h.orch.images.Dir
	if err := os.WriteFile(filepath.Join(dir, "needs_bind.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	h.handle(1, "alice", "bless bob")
	if imgs := h.lastReply().Images; len(imgs) != 1 || filepath.Base(imgs[0]) != "needs_bind.png" {
		t.Errorf("images = %v", imgs)
	}

	h.handle(2, "alice", "bless @alice")
	if imgs := h.lastReply().Images; len(imgs) != 0 {
		t.Errorf("missing image should be skipped, got %v", imgs)
	}
}
