package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Binding maps a handle to the wallet that receives its tokens.
// Created once per handle and never updated.
type Binding struct {
	Handle        string
	WalletAddress string
	BoundAt       time.Time
	OriginEventID int64 // mention that created the binding
}

// Direction is the side of a transfer a handle took part in.
type Direction string

const (
	DirectionSent Direction = "sent"
	DirectionRecv Direction = "recv"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionSent || d == DirectionRecv
}

// TransferRecord is one row of the rate-limit history.
type TransferRecord struct {
	ID        int64
	Handle    string
	Direction Direction
	CreatedAt time.Time
}

// PendingBlessing is a blessing addressed to a handle that has not bound a wallet yet.
type PendingBlessing struct {
	ID              int64
	RecipientHandle string
	Amount          decimal.Decimal
	SenderHandle    string
	OriginEventID   int64
	CreatedAt       time.Time
	Consumed        bool
	ConsumedAt      *time.Time
}

// ProcessedEvent marks a mention whose business logic already ran.
type ProcessedEvent struct {
	EventID     int64
	Reason      string
	ProcessedAt time.Time
}

// TransferSide is a rate-limit row to append during settlement.
type TransferSide struct {
	Handle    string
	Direction Direction
}

// Settlement groups the bookkeeping that follows one event's side effects.
// Stores apply it atomically.
type Settlement struct {
	EventID          int64
	Reason           string
	Transfers        []TransferSide
	ConsumePendingID int64 // 0 when no pending blessing is resolved
}
