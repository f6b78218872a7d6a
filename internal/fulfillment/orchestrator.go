// Package fulfillment turns classified mentions into bindings, token
// transfers, pending blessings and replies. Each mention is handled at most
// once: the processed marker is committed together with the event's
// bookkeeping before any reply is posted.
package fulfillment

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/vietddude/blessbot/internal/core/command"
	"github.com/vietddude/blessbot/internal/core/cursor"
	"github.com/vietddude/blessbot/internal/core/domain"
	"github.com/vietddude/blessbot/internal/core/pending"
	"github.com/vietddude/blessbot/internal/core/ratelimit"
	"github.com/vietddude/blessbot/internal/infra/chain/evm"
	"github.com/vietddude/blessbot/internal/infra/storage"
	"github.com/vietddude/blessbot/internal/metrics"
)

// DefaultExplorerTxURL formats a transaction link.
const DefaultExplorerTxURL = "https://basescan.org/tx/%s"

// Transferrer sends tokens from the funder account.
type Transferrer interface {
	Send(ctx context.Context, req evm.TransferRequest) (*evm.TransferResult, error)
	Token() evm.TokenInfo
}

// Config holds the engine's amounts and presentation settings.
type Config struct {
	BotHandle     string
	BindReward    decimal.Decimal
	BlessAmount   decimal.Decimal
	ExplorerTxURL string
	Images        ImageConfig
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Ledger    storage.LedgerStore
	Journal   storage.TransferJournal
	Limiter   *ratelimit.Limiter
	Pending   *pending.Queue
	Transfers Transferrer
	Cursor    cursor.Manager
	Source    MentionSource
	Replies   ReplySink
}

// Outcome is the result of handling one mention.
type Outcome struct {
	EventID int64
	Reason  Reason
	Skipped bool // already processed
	TxHash  string
}

// BatchResult summarizes a processed batch.
type BatchResult struct {
	Outcomes []Outcome
	Handled  int
	Skipped  int
	Highest  int64
}

// Orchestrator runs the fulfillment state machine.
type Orchestrator struct {
	Deps
	cfg    Config
	bot    string
	log    *slog.Logger
	images ImageConfig
}

// New creates an orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.ExplorerTxURL == "" {
		cfg.ExplorerTxURL = DefaultExplorerTxURL
	}
	images := DefaultImageConfig()
	if cfg.Images.Dir != "" {
		images.Dir = cfg.Images.Dir
	}
	for _, kind := range []ImageKind{
		ImageBindSuccess, ImageNeedsBind, ImageBlessSent, ImageSenderRateLimit,
		ImageRecipientRateLimit, ImageBlessFailed, ImageBindFailed,
	} {
		if name := cfg.Images.file(kind); name != "" {
			images.set(kind, name)
		}
	}
	return &Orchestrator{
		Deps:   deps,
		cfg:    cfg,
		bot:    domain.NormalizeHandle(cfg.BotHandle),
		log:    slog.Default().With("component", "fulfillment"),
		images: images,
	}
}

// result is what a command handler decided. Bookkeeping in Settle is applied
// atomically with the processed marker.
type result struct {
	reason    Reason
	message   string
	image     ImageKind
	transfers []domain.TransferSide
	consumeID int64
	txHash    string
}

// ============================================================================
// Cycle
// ============================================================================

// RunCycle fetches mentions past the cursor and processes them.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	since, err := o.Cursor.Position(ctx)
	if err != nil {
		return err
	}
	mentions, err := o.Source.Fetch(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to fetch mentions: %w", err)
	}
	if len(mentions) == 0 {
		o.log.Info("No new mentions", "since", since)
		return nil
	}

	res, err := o.ProcessBatch(ctx, mentions)
	o.log.Info("Batch processed",
		"fetched", len(mentions),
		"handled", res.Handled,
		"skipped", res.Skipped,
		"cursor", res.Highest,
	)
	return err
}

// ProcessBatch handles mentions in ascending id order and then advances the
// cursor. A store failure aborts the batch; the cursor still moves past the
// events handled before it.
func (o *Orchestrator) ProcessBatch(ctx context.Context, mentions []domain.Mention) (BatchResult, error) {
	sorted := make([]domain.Mention, len(mentions))
	copy(sorted, mentions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var (
		res      BatchResult
		batchErr error
	)
	for _, m := range sorted {
		if err := ctx.Err(); err != nil {
			batchErr = err
			break
		}
		out, err := o.Handle(ctx, m)
		if err != nil {
			batchErr = fmt.Errorf("event %d: %w", m.ID, err)
			break
		}
		res.Outcomes = append(res.Outcomes, out)
		if out.Skipped {
			res.Skipped++
		} else {
			res.Handled++
		}
		if m.ID > res.Highest {
			res.Highest = m.ID
		}
	}

	if res.Highest > 0 {
		if err := o.Cursor.Advance(ctx, res.Highest); err != nil {
			if batchErr == nil {
				batchErr = err
			} else {
				o.log.Error("Failed to advance cursor", "error", err)
			}
		}
	}
	return res, batchErr
}

// ============================================================================
// Event handling
// ============================================================================

// Handle processes a single mention. A returned error means the event is left
// unmarked and will be retried.
func (o *Orchestrator) Handle(ctx context.Context, m domain.Mention) (Outcome, error) {
	out := Outcome{EventID: m.ID}

	done, err := o.Ledger.IsProcessed(ctx, m.ID)
	if err != nil {
		return out, fmt.Errorf("failed to check processed marker: %w", err)
	}
	if done {
		out.Skipped = true
		return out, nil
	}

	author := domain.NormalizeHandle(m.Handle)
	log := o.log.With("event_id", m.ID, "author", author)

	var r result
	switch {
	case author == "" || author == o.bot:
		r = result{reason: ReasonSelfMention}
	default:
		guarded, err := o.needsReconcile(ctx, m.ID)
		if err != nil {
			return out, err
		}
		if guarded {
			log.Error("Event has a journaled transfer but no marker, skipping until reconciled")
			r = result{reason: ReasonTransferNeedsReconcile}
			break
		}
		r, err = o.dispatch(ctx, m, author)
		if err != nil {
			return out, err
		}
	}

	err = o.Ledger.Settle(ctx, domain.Settlement{
		EventID:          m.ID,
		Reason:           string(r.reason),
		Transfers:        r.transfers,
		ConsumePendingID: r.consumeID,
	})
	if err != nil {
		return out, fmt.Errorf("failed to settle event: %w", err)
	}
	metrics.EventsProcessed.WithLabelValues(string(r.reason)).Inc()
	log.Info("Event processed", "reason", r.reason, "tx", r.txHash)

	out.Reason = r.reason
	out.TxHash = r.txHash

	if r.message != "" {
		o.reply(ctx, m, r)
	}
	return out, nil
}

// needsReconcile reports whether a transfer for the event may already have
// landed on chain.
func (o *Orchestrator) needsReconcile(ctx context.Context, eventID int64) (bool, error) {
	if o.Journal == nil {
		return false, nil
	}
	entries, err := o.Journal.ForEvent(ctx, eventID)
	if err != nil {
		return false, fmt.Errorf("failed to read transfer journal: %w", err)
	}
	for _, e := range entries {
		if e.Status != domain.OutboundFailed && e.Status != domain.OutboundReverted {
			return true, nil
		}
	}
	return false, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, m domain.Mention, author string) (result, error) {
	cmd := command.Classify(m.Text)
	switch cmd.Kind {
	case domain.CommandBareAddress:
		return o.handleBareAddress(ctx, m, author, cmd.Address)
	case domain.CommandBind:
		return o.handleBind(ctx, m, author, cmd.Address)
	case domain.CommandBless:
		return o.handleBless(ctx, m, author, cmd.Target)
	}
	return result{reason: ReasonUnrecognized}, nil
}

func (o *Orchestrator) reply(ctx context.Context, m domain.Mention, r result) {
	err := o.Replies.Reply(ctx, domain.Reply{
		EventID: m.ID,
		Handle:  domain.NormalizeHandle(m.Handle),
		Message: r.message,
		Images:  o.images.Resolve(r.image),
	})
	if err != nil {
		metrics.RepliesFailed.Inc()
		o.log.Warn("Failed to post reply", "event_id", m.ID, "reason", r.reason, "error", err)
	}
}

// ----------------------------------------------------------------------------
// Bind
// ----------------------------------------------------------------------------

func (o *Orchestrator) handleBareAddress(ctx context.Context, m domain.Mention, author, address string) (result, error) {
	b, err := o.Ledger.GetBinding(ctx, author)
	if err != nil {
		return result{}, fmt.Errorf("failed to get binding: %w", err)
	}
	if b != nil {
		if b.OriginEventID == m.ID {
			return o.rewardAfterBind(ctx, m, author, b.WalletAddress, bareBindReasons)
		}
		return result{
			reason:  ReasonAlreadyBoundBare,
			message: msgAlreadyBound(b.WalletAddress),
			image:   ImageBindFailed,
		}, nil
	}

	waiting, err := o.Pending.Has(ctx, author)
	if err != nil {
		return result{}, err
	}
	if !waiting {
		return result{
			reason:  ReasonBindInstructions,
			message: msgBindInstructions,
			image:   ImageNeedsBind,
		}, nil
	}

	wallet := checksum(address)
	created, err := o.Ledger.CreateBindingIfAbsent(ctx, author, wallet, m.ID)
	if err != nil {
		return result{}, fmt.Errorf("failed to create binding: %w", err)
	}
	if !created {
		return result{reason: ReasonBindExistsBare, message: msgBindingExists, image: ImageBindFailed}, nil
	}
	return o.rewardAfterBind(ctx, m, author, wallet, bareBindReasons)
}

func (o *Orchestrator) handleBind(ctx context.Context, m domain.Mention, author, address string) (result, error) {
	b, err := o.Ledger.GetBinding(ctx, author)
	if err != nil {
		return result{}, fmt.Errorf("failed to get binding: %w", err)
	}
	if b != nil {
		switch {
		case b.OriginEventID == m.ID:
			return o.rewardAfterBind(ctx, m, author, b.WalletAddress, explicitBindReasons)
		case strings.EqualFold(b.WalletAddress, address):
			return result{
				reason:  ReasonAlreadyBoundSame,
				message: msgAlreadyBound(b.WalletAddress),
				image:   ImageBindFailed,
			}, nil
		default:
			return result{
				reason:  ReasonAlreadyBoundDiff,
				message: msgBindingImmutable(b.WalletAddress),
				image:   ImageBindFailed,
			}, nil
		}
	}

	wallet := checksum(address)
	created, err := o.Ledger.CreateBindingIfAbsent(ctx, author, wallet, m.ID)
	if err != nil {
		return result{}, fmt.Errorf("failed to create binding: %w", err)
	}
	if !created {
		return result{reason: ReasonBindExistsExplicit, message: msgBindingExists, image: ImageBindFailed}, nil
	}
	return o.rewardAfterBind(ctx, m, author, wallet, explicitBindReasons)
}

// rewardAfterBind pays a freshly bound handle. A waiting blessing is paid
// together with the bind reward; when that transfer fails without ambiguity
// the bind reward alone is retried.
func (o *Orchestrator) rewardAfterBind(
	ctx context.Context,
	m domain.Mention,
	author, wallet string,
	reasons bindReasons,
) (result, error) {
	token := o.Transfers.Token()
	failed := result{reason: reasons.failed, message: msgBindRewardFailed, image: ImageBindFailed}

	p, err := o.Pending.Oldest(ctx, author)
	if err != nil {
		return result{}, err
	}
	if p != nil {
		total := o.cfg.BindReward.Add(p.Amount)
		res, err := o.send(ctx, m.ID, wallet, total)
		if err == nil {
			return result{
				reason: reasons.fulfill,
				message: msgBindAndFulfill(wallet,
					evm.FormatAmount(o.cfg.BindReward, token.Decimals),
					evm.FormatAmount(p.Amount, token.Decimals),
					token.Symbol, o.link(res.TxHash)),
				image:     ImageBindSuccess,
				transfers: []domain.TransferSide{{Handle: author, Direction: domain.DirectionRecv}},
				consumeID: p.ID,
				txHash:    res.TxHash,
			}, nil
		}
		if evm.IsAmbiguous(err) {
			o.log.Error("Combined reward outcome unknown, not retrying", "event_id", m.ID, "error", err)
			return failed, nil
		}
		o.log.Warn("Combined reward failed, sending bind reward only", "event_id", m.ID, "error", err)
	}

	res, err := o.send(ctx, m.ID, wallet, o.cfg.BindReward)
	if err != nil {
		o.log.Error("Bind reward failed", "event_id", m.ID, "error", err)
		return failed, nil
	}
	return result{
		reason: reasons.reward,
		message: msgBindReward(wallet,
			evm.FormatAmount(o.cfg.BindReward, token.Decimals),
			token.Symbol, o.link(res.TxHash)),
		image:     ImageBindSuccess,
		transfers: []domain.TransferSide{{Handle: author, Direction: domain.DirectionRecv}},
		txHash:    res.TxHash,
	}, nil
}

// ----------------------------------------------------------------------------
// Bless
// ----------------------------------------------------------------------------

func (o *Orchestrator) handleBless(ctx context.Context, m domain.Mention, author, rawTarget string) (result, error) {
	target := domain.NormalizeHandle(rawTarget)
	if target == author {
		return result{reason: ReasonSelfBlessBlock, message: msgSelfBless, image: ImageBlessFailed}, nil
	}

	ok, err := o.Limiter.CanAct(ctx, author, domain.DirectionSent)
	if err != nil {
		return result{}, err
	}
	if !ok {
		return result{reason: ReasonSenderRateLimit, message: msgSenderRateLimit, image: ImageSenderRateLimit}, nil
	}

	token := o.Transfers.Token()
	b, err := o.Ledger.GetBinding(ctx, target)
	if err != nil {
		return result{}, fmt.Errorf("failed to get binding: %w", err)
	}
	if b == nil {
		return o.enqueueBlessing(ctx, m, author, target)
	}

	ok, err = o.Limiter.CanAct(ctx, target, domain.DirectionRecv)
	if err != nil {
		return result{}, err
	}
	if !ok {
		return result{
			reason:  ReasonRecipientRateLimit,
			message: msgRecipientRateLimit(target, token.Symbol),
			image:   ImageRecipientRateLimit,
		}, nil
	}

	res, err := o.send(ctx, m.ID, b.WalletAddress, o.cfg.BlessAmount)
	if err != nil {
		o.log.Error("Blessing failed", "event_id", m.ID, "target", target, "error", err)
		return result{reason: ReasonBlessFailed, message: msgBlessFailed, image: ImageBlessFailed}, nil
	}
	return result{
		reason: ReasonBlessSent,
		message: msgBlessSent(target,
			evm.FormatAmount(o.cfg.BlessAmount, token.Decimals),
			token.Symbol, o.link(res.TxHash)),
		image: ImageBlessSent,
		transfers: []domain.TransferSide{
			{Handle: author, Direction: domain.DirectionSent},
			{Handle: target, Direction: domain.DirectionRecv},
		},
		txHash: res.TxHash,
	}, nil
}

func (o *Orchestrator) enqueueBlessing(ctx context.Context, m domain.Mention, author, target string) (result, error) {
	enq, err := o.Pending.Enqueue(ctx, target, author, o.cfg.BlessAmount, m.ID)
	if err != nil {
		return result{}, err
	}
	r := result{message: msgNeedsBind(target), image: ImageNeedsBind}
	if enq == pending.Existing {
		r.reason = ReasonNeedsBindExistingPending
		return r, nil
	}
	r.reason = ReasonNeedsBindEnqueued
	r.transfers = []domain.TransferSide{{Handle: author, Direction: domain.DirectionSent}}
	return r, nil
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func (o *Orchestrator) send(ctx context.Context, eventID int64, to string, amount decimal.Decimal) (*evm.TransferResult, error) {
	return o.Transfers.Send(ctx, evm.TransferRequest{EventID: eventID, To: to, Amount: amount})
}

func (o *Orchestrator) link(txHash string) string {
	return fmt.Sprintf(o.cfg.ExplorerTxURL, txHash)
}

func checksum(address string) string {
	return common.HexToAddress(address).Hex()
}
