package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OutboundStatus tracks a token transfer issued by the funder account.
type OutboundStatus string

const (
	OutboundSigned      OutboundStatus = "signed"
	OutboundBroadcast   OutboundStatus = "broadcast"
	OutboundConfirmed   OutboundStatus = "confirmed"
	OutboundReverted    OutboundStatus = "reverted"
	OutboundUnconfirmed OutboundStatus = "unconfirmed"
	OutboundFailed      OutboundStatus = "failed"
)

// Unsettled reports whether the transfer may still land on chain.
func (s OutboundStatus) Unsettled() bool {
	switch s {
	case OutboundSigned, OutboundBroadcast, OutboundUnconfirmed:
		return true
	}
	return false
}

// OutboundTransfer is a journal entry for one signed transfer.
type OutboundTransfer struct {
	TxHash      string
	EventID     int64
	Nonce       uint64
	ToAddress   string
	Amount      decimal.Decimal
	Status      OutboundStatus
	BlockNumber uint64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TransferLogEntry is a transfer reported to the query service by the frontend.
type TransferLogEntry struct {
	Hash    string    `json:"hash"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Token   string    `json:"token"`
	Amount  string    `json:"amount"`
	Memo    string    `json:"memo,omitempty"`
	ChainID int64     `json:"chain_id"`
	Time    time.Time `json:"ts"`
}
