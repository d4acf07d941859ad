package ledger

import (
	"context"
	"time"

	"github.com/walletflow/walletflow/internal/identity"
)

// Status is the lifecycle state of a wallet.
type Status string

const (
	StatusActive Status = "active"
	StatusFrozen Status = "frozen"
	StatusClosed Status = "closed"
)

// DefaultCurrency is assigned to wallets opened without an explicit currency.
const DefaultCurrency = "IDR"

// Wallet is a snapshot of a balance held by one owner. Balance is expressed in
// minor currency units and is never negative.
type Wallet struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"user_id"`
	Balance   int64     `json:"balance"`
	Currency  string    `json:"currency"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ledger owns wallet balances. Debit and Credit are each atomic on a single
// wallet; a pair of them is not, and callers moving funds between wallets must
// compensate around that seam.
type Ledger interface {
	// Wallet returns a snapshot of the wallet owned by caller. It never mutates.
	Wallet(ctx context.Context, caller identity.Identity, id int64) (Wallet, error)
	// WalletByOwner resolves the single wallet of ownerID, failing when the
	// owner has none or more than one.
	WalletByOwner(ctx context.Context, caller identity.Identity, ownerID int64) (Wallet, error)
	// Wallets lists the wallets owned by caller.
	Wallets(ctx context.Context, caller identity.Identity) ([]Wallet, error)
	// Create opens an empty wallet for caller.
	Create(ctx context.Context, caller identity.Identity, currency string) (Wallet, error)
	// Debit removes amount from a wallet owned by caller.
	Debit(ctx context.Context, caller identity.Identity, id, amount int64) (Wallet, error)
	// Credit adds amount to any existing wallet.
	Credit(ctx context.Context, caller identity.Identity, id, amount int64) (Wallet, error)
}
