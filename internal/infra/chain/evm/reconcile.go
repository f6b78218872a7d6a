package evm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/blessbot/internal/core/domain"
)

// ReconcileReport summarizes a reconciliation pass over the journal.
type ReconcileReport struct {
	Checked   int
	Confirmed []*domain.OutboundTransfer
	Reverted  []*domain.OutboundTransfer
	Dropped   []*domain.OutboundTransfer
	Pending   []*domain.OutboundTransfer
}

// Reconcile settles journal entries whose outcome is unknown by looking up
// their receipts. An entry with no receipt whose nonce the chain has already
// used is marked failed. Anything else stays pending.
func (p *Pipeline) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	entries, err := p.journal.ListByStatus(ctx,
		domain.OutboundSigned, domain.OutboundBroadcast, domain.OutboundUnconfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled transfers: %w", err)
	}

	report := &ReconcileReport{Checked: len(entries)}
	if len(entries) == 0 {
		return report, nil
	}

	minedNonce, err := p.client.NonceAt(ctx, p.from, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get mined nonce: %w", err)
	}

	for _, e := range entries {
		receipt, err := p.client.TransactionReceipt(ctx, common.HexToHash(e.TxHash))
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return report, fmt.Errorf("failed to get receipt for %s: %w", e.TxHash, err)
		}

		switch {
		case receipt != nil && receipt.Status == types.ReceiptStatusSuccessful:
			e.Status = domain.OutboundConfirmed
			e.BlockNumber = receipt.BlockNumber.Uint64()
			report.Confirmed = append(report.Confirmed, e)
		case receipt != nil:
			e.Status = domain.OutboundReverted
			e.BlockNumber = receipt.BlockNumber.Uint64()
			report.Reverted = append(report.Reverted, e)
		case e.Nonce < minedNonce:
			e.Status = domain.OutboundFailed
			report.Dropped = append(report.Dropped, e)
		default:
			report.Pending = append(report.Pending, e)
			continue
		}

		if err := p.journal.UpdateStatus(ctx, e.TxHash, e.Status, e.BlockNumber); err != nil {
			return report, fmt.Errorf("failed to update %s: %w", e.TxHash, err)
		}
		p.log.Info("Reconciled transfer", "tx", e.TxHash, "event_id", e.EventID, "status", e.Status)
	}
	return report, nil
}
