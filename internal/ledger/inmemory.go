package ledger

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/walletflow/walletflow/internal/failure"
	"github.com/walletflow/walletflow/internal/identity"
)

// account serialises every balance change of one wallet.
type account struct {
	mu     sync.Mutex
	wallet Wallet
}

type inMemoryLedger struct {
	mu       sync.RWMutex
	accounts map[int64]*account
	byOwner  map[int64][]int64
	nextID   int64
	now      func() time.Time
}

// NewInMemory creates a concurrency-safe in-memory ledger seeded with wallets.
// Seeds bypass the one-wallet-per-owner rule so tests can model legacy data.
func NewInMemory(seed ...Wallet) Ledger {
	l := &inMemoryLedger{
		accounts: make(map[int64]*account),
		byOwner:  make(map[int64][]int64),
		nextID:   1,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, w := range seed {
		if w.Status == "" {
			w.Status = StatusActive
		}
		if w.Currency == "" {
			w.Currency = DefaultCurrency
		}
		if w.CreatedAt.IsZero() {
			w.CreatedAt = l.now()
			w.UpdatedAt = w.CreatedAt
		}
		l.accounts[w.ID] = &account{wallet: w}
		l.byOwner[w.OwnerID] = append(l.byOwner[w.OwnerID], w.ID)
		if w.ID >= l.nextID {
			l.nextID = w.ID + 1
		}
	}
	return l
}

func (l *inMemoryLedger) lookup(id int64) (*account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[id]
	if !ok {
		return nil, failure.New(failure.ErrNotFound, fmt.Sprintf("wallet %d", id))
	}
	return acc, nil
}

func (a *account) snapshot() Wallet {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.wallet
}

func (l *inMemoryLedger) Wallet(_ context.Context, caller identity.Identity, id int64) (Wallet, error) {
	acc, err := l.lookup(id)
	if err != nil {
		return Wallet{}, err
	}
	w := acc.snapshot()
	if !caller.Owns(w.OwnerID) {
		return Wallet{}, failure.New(failure.ErrUnauthorized, fmt.Sprintf("wallet %d", id))
	}
	return w, nil
}

func (l *inMemoryLedger) WalletByOwner(_ context.Context, _ identity.Identity, ownerID int64) (Wallet, error) {
	l.mu.RLock()
	ids := append([]int64(nil), l.byOwner[ownerID]...)
	l.mu.RUnlock()

	switch len(ids) {
	case 0:
		return Wallet{}, failure.New(failure.ErrNotFound, fmt.Sprintf("owner %d has no wallet", ownerID))
	case 1:
		acc, err := l.lookup(ids[0])
		if err != nil {
			return Wallet{}, err
		}
		return acc.snapshot(), nil
	default:
		return Wallet{}, failure.New(failure.ErrNotFound, fmt.Sprintf("owner %d has %d wallets", ownerID, len(ids)))
	}
}

func (l *inMemoryLedger) Wallets(_ context.Context, caller identity.Identity) ([]Wallet, error) {
	l.mu.RLock()
	ids := append([]int64(nil), l.byOwner[caller.OwnerID()]...)
	l.mu.RUnlock()

	wallets := make([]Wallet, 0, len(ids))
	for _, id := range ids {
		acc, err := l.lookup(id)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, acc.snapshot())
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].ID < wallets[j].ID })
	return wallets, nil
}

func (l *inMemoryLedger) Create(_ context.Context, caller identity.Identity, currency string) (Wallet, error) {
	if caller.IsZero() {
		return Wallet{}, failure.ErrUnauthorized
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.byOwner[caller.OwnerID()]) > 0 {
		return Wallet{}, failure.New(failure.ErrDuplicateWallet, fmt.Sprintf("owner %d", caller.OwnerID()))
	}

	now := l.now()
	w := Wallet{
		ID:        l.nextID,
		OwnerID:   caller.OwnerID(),
		Currency:  currency,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.nextID++
	l.accounts[w.ID] = &account{wallet: w}
	l.byOwner[w.OwnerID] = append(l.byOwner[w.OwnerID], w.ID)
	return w, nil
}

func (l *inMemoryLedger) Debit(_ context.Context, caller identity.Identity, id, amount int64) (Wallet, error) {
	if amount <= 0 {
		return Wallet{}, failure.ErrInvalidAmount
	}
	acc, err := l.lookup(id)
	if err != nil {
		return Wallet{}, err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	if !caller.Owns(acc.wallet.OwnerID) {
		return Wallet{}, failure.New(failure.ErrUnauthorized, fmt.Sprintf("wallet %d", id))
	}
	if acc.wallet.Status != StatusActive {
		return Wallet{}, failure.New(failure.ErrWalletInactive, string(acc.wallet.Status))
	}
	// Checked under the wallet lock: two concurrent debits cannot both pass.
	if acc.wallet.Balance < amount {
		return Wallet{}, failure.ErrInsufficientBalance
	}
	acc.wallet.Balance -= amount
	acc.wallet.UpdatedAt = l.now()
	return acc.wallet, nil
}

func (l *inMemoryLedger) Credit(_ context.Context, _ identity.Identity, id, amount int64) (Wallet, error) {
	if amount <= 0 {
		return Wallet{}, failure.ErrInvalidAmount
	}
	acc, err := l.lookup(id)
	if err != nil {
		return Wallet{}, err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()
	if acc.wallet.Balance > math.MaxInt64-amount {
		return Wallet{}, failure.New(failure.ErrInvalidAmount, fmt.Sprintf("wallet %d balance would overflow", id))
	}
	acc.wallet.Balance += amount
	acc.wallet.UpdatedAt = l.now()
	return acc.wallet, nil
}
