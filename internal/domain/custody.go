package domain

import (
	"context"
	"time"
)

// TransferKind labels why value moved.
type TransferKind string

const (
	TransferWager TransferKind = "wager"
	TransferClaim TransferKind = "claim"
	TransferFees  TransferKind = "fees"
)

// TransferRequest instructs the custody service to move value between two
// accounts. Authority is the identity authorising the debit of From;
// ExpectedOwner, when set, must own To.
type TransferRequest struct {
	ID            string
	Kind          TransferKind
	MarketID      string
	From          string
	To            string
	Amount        uint64
	Asset         string
	Authority     string
	ExpectedOwner string
}

// TransferReceipt confirms an executed transfer.
type TransferReceipt struct {
	ID         string
	Kind       TransferKind
	From       string
	To         string
	Amount     uint64
	ExecutedAt time.Time
}

// Account is a custody balance record.
type Account struct {
	ID      string
	Owner   string
	Asset   string
	Balance uint64
}

// Custody moves value. It is the only path by which balances change.
type Custody interface {
	OpenAccount(ctx context.Context, id, owner, asset string) (Account, error)
	Account(ctx context.Context, id string) (Account, error)
	Transfer(ctx context.Context, req TransferRequest) (TransferReceipt, error)
}

// WagerReceipt is the result of a placed wager.
type WagerReceipt struct {
	Market   Market
	Position Position
	Side     Side
	Amount   uint64
	Fee      uint64
	Transfer TransferReceipt
}

// ClaimReceipt is the result of a successful claim.
type ClaimReceipt struct {
	Market   Market
	Position Position
	Winnings uint64
	Transfer TransferReceipt
}

// FeeReceipt is the result of a fee withdrawal.
type FeeReceipt struct {
	Market   Market
	Amount   uint64
	Transfer TransferReceipt
}
