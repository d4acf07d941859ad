// Package wallet is the wallet service: it owns balances and exposes the ledger
// primitives to the orchestrators over HTTP.
package wallet

import (
	"context"
	"log/slog"
	"time"

	"github.com/walletflow/walletflow/internal/audit"
	"github.com/walletflow/walletflow/internal/failure"
	"github.com/walletflow/walletflow/internal/identity"
	"github.com/walletflow/walletflow/internal/ledger"
)

const topupDescription = "Topup wallet"

// Balance is the balance of one wallet at a point in time.
type Balance struct {
	WalletID int64     `json:"wallet_id"`
	Amount   int64     `json:"balance"`
	Currency string    `json:"currency"`
	AsOf     time.Time `json:"timestamp"`
}

// Service exposes wallet operations backed by the ledger.
type Service struct {
	ledger ledger.Ledger
	audit  audit.Sink
	logger *slog.Logger
}

// NewService builds a wallet service instance.
func NewService(l ledger.Ledger, sink audit.Sink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: l, audit: sink, logger: logger}
}

// Create opens the caller's wallet.
func (s *Service) Create(ctx context.Context, caller identity.Identity, currency string) (ledger.Wallet, error) {
	w, err := s.ledger.Create(ctx, caller, currency)
	if err != nil {
		return ledger.Wallet{}, err
	}
	s.logger.Info("wallet opened", slog.Int64("wallet_id", w.ID), slog.Int64("owner_id", w.OwnerID))
	return w, nil
}

// Get returns a wallet owned by caller.
func (s *Service) Get(ctx context.Context, caller identity.Identity, id int64) (ledger.Wallet, error) {
	return s.ledger.Wallet(ctx, caller, id)
}

// List returns the caller's wallets.
func (s *Service) List(ctx context.Context, caller identity.Identity) ([]ledger.Wallet, error) {
	return s.ledger.Wallets(ctx, caller)
}

// ByOwner resolves the single wallet of ownerID.
func (s *Service) ByOwner(ctx context.Context, caller identity.Identity, ownerID int64) (ledger.Wallet, error) {
	return s.ledger.WalletByOwner(ctx, caller, ownerID)
}

// Balance returns the balance of a wallet owned by caller.
func (s *Service) Balance(ctx context.Context, caller identity.Identity, id int64) (Balance, error) {
	w, err := s.ledger.Wallet(ctx, caller, id)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: w.ID, Amount: w.Balance, Currency: w.Currency, AsOf: time.Now().UTC()}, nil
}

// Debit removes amount from a wallet owned by caller.
func (s *Service) Debit(ctx context.Context, caller identity.Identity, id, amount int64) (ledger.Wallet, error) {
	return s.ledger.Debit(ctx, caller, id, amount)
}

// Credit adds amount to any wallet. Orchestrators use it for transfer
// destinations and for compensating their own debits. It is not rate limited:
// a rejected refund would strand funds.
func (s *Service) Credit(ctx context.Context, caller identity.Identity, id, amount int64) (ledger.Wallet, error) {
	w, err := s.ledger.Credit(ctx, caller, id, amount)
	if err != nil {
		return ledger.Wallet{}, err
	}
	s.logger.InfoContext(ctx, "wallet credited",
		slog.Int64("owner_id", caller.OwnerID()),
		slog.Int64("wallet_id", w.ID),
		slog.Int64("wallet_owner_id", w.OwnerID),
		slog.Int64("amount", amount),
	)
	return w, nil
}

// Topup credits a wallet the caller owns and records a topup entry. Unlike
// Credit it refuses wallets of other owners.
func (s *Service) Topup(ctx context.Context, caller identity.Identity, id, amount int64) (ledger.Wallet, error) {
	if amount <= 0 {
		return ledger.Wallet{}, failure.New(failure.ErrInvalidAmount, "amount must be positive")
	}
	if _, err := s.ledger.Wallet(ctx, caller, id); err != nil {
		return ledger.Wallet{}, err
	}
	w, err := s.ledger.Credit(ctx, caller, id, amount)
	if err != nil {
		return ledger.Wallet{}, err
	}
	s.audit.Record(ctx, caller, audit.Entry{
		WalletID:    w.ID,
		Type:        audit.TypeTopup,
		Amount:      amount,
		Description: topupDescription,
		CreatedAt:   time.Now().UTC(),
	})
	return w, nil
}
