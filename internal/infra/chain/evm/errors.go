package evm

import (
	"errors"
	"fmt"
	"strings"
)

// Stage names the pipeline step a transfer failed in.
type Stage string

const (
	StageBuild     Stage = "build"
	StageEstimate  Stage = "estimate"
	StageSign      Stage = "sign"
	StageJournal   Stage = "journal"
	StageBroadcast Stage = "broadcast"
	StageReceipt   Stage = "receipt"
	StageConfirm   Stage = "confirm"
)

// TransferError reports a failed transfer. Ambiguous is set when the
// transaction was broadcast but its outcome is unknown; such transfers must
// be reconciled, never retried.
type TransferError struct {
	Stage     Stage
	TxHash    string
	Ambiguous bool
	Err       error
}

func (e *TransferError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("transfer failed at %s (tx %s): %v", e.Stage, e.TxHash, e.Err)
	}
	return fmt.Sprintf("transfer failed at %s: %v", e.Stage, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// IsAmbiguous reports whether err is a transfer whose outcome is unknown.
func IsAmbiguous(err error) bool {
	var te *TransferError
	return errors.As(err, &te) && te.Ambiguous
}

var (
	// ErrReceiptTimeout is returned when no receipt shows up in time.
	ErrReceiptTimeout = errors.New("timed out waiting for receipt")

	// ErrReverted is returned when the transaction was mined but failed.
	ErrReverted = errors.New("transaction reverted")

	// ErrNoBaseFee is returned when the chain head carries no base fee.
	ErrNoBaseFee = errors.New("latest header has no base fee")
)

// rejections are node replies that prove a transaction was not accepted into
// the pool.
var rejections = []string{
	"nonce too low",
	"nonce too high",
	"underpriced",
	"insufficient funds",
	"intrinsic gas too low",
	"exceeds block gas limit",
	"gas limit reached",
	"max fee per gas less than block base fee",
	"fee cap less than block base fee",
	"max priority fee per gas higher than max fee per gas",
	"invalid sender",
	"invalid chain id",
	"tx fee exceeds the configured cap",
	"oversized data",
}

// rejectedByNode reports whether a SendTransaction error is a definite
// refusal. Anything else, including timeouts and dropped connections, may
// hide an accepted transaction.
func rejectedByNode(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, r := range rejections {
		if strings.Contains(s, r) {
			return true
		}
	}
	return false
}
