package ledger

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/walletflow/walletflow/internal/failure"
	"github.com/walletflow/walletflow/internal/identity"
)

func owner(id int64) identity.Identity {
	return identity.Trusted(id, "token", time.Time{})
}

func TestInMemoryLedger_DebitCredit(t *testing.T) {
	l := NewInMemory(Wallet{ID: 1, OwnerID: 1, Balance: 150_000})
	ctx := context.Background()

	w, err := l.Debit(ctx, owner(1), 1, 50_000)
	if err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if w.Balance != 100_000 {
		t.Fatalf("expected balance 100000, got %d", w.Balance)
	}

	w, err = l.Credit(ctx, owner(2), 1, 25_000)
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if w.Balance != 125_000 {
		t.Fatalf("expected balance 125000, got %d", w.Balance)
	}
}

func TestInMemoryLedger_DebitRejections(t *testing.T) {
	l := NewInMemory(
		Wallet{ID: 1, OwnerID: 1, Balance: 100_000},
		Wallet{ID: 2, OwnerID: 2, Balance: 100_000, Status: StatusFrozen},
	)
	ctx := context.Background()

	tests := []struct {
		name   string
		caller identity.Identity
		id     int64
		amount int64
		want   error
	}{
		{"zero amount", owner(1), 1, 0, failure.ErrInvalidAmount},
		{"negative amount", owner(1), 1, -5, failure.ErrInvalidAmount},
		{"missing wallet", owner(1), 99, 10, failure.ErrNotFound},
		{"not owner", owner(2), 1, 10, failure.ErrUnauthorized},
		{"frozen", owner(2), 2, 10, failure.ErrWalletInactive},
		{"insufficient", owner(1), 1, 200_000, failure.ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.Debit(ctx, tt.caller, tt.id, tt.amount); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	w, _ := l.Wallet(ctx, owner(1), 1)
	if w.Balance != 100_000 {
		t.Fatalf("rejected debits mutated balance: %d", w.Balance)
	}
}

func TestInMemoryLedger_CreditIgnoresOwnershipAndStatus(t *testing.T) {
	l := NewInMemory(Wallet{ID: 1, OwnerID: 1, Status: StatusFrozen})
	ctx := context.Background()

	if _, err := l.Credit(ctx, identity.Identity{}, 1, 10); err != nil {
		t.Fatalf("credit to frozen wallet failed: %v", err)
	}
	if _, err := l.Credit(ctx, owner(1), 1, 0); !errors.Is(err, failure.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := l.Credit(ctx, owner(1), 42, 10); !errors.Is(err, failure.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInMemoryLedger_CreditRejectsOverflow(t *testing.T) {
	l := NewInMemory(Wallet{ID: 1, OwnerID: 1, Balance: 10})
	ctx := context.Background()

	if _, err := l.Credit(ctx, owner(1), 1, math.MaxInt64); !errors.Is(err, failure.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	w, _ := l.Wallet(ctx, owner(1), 1)
	if w.Balance != 10 {
		t.Fatalf("rejected credit mutated balance: %d", w.Balance)
	}
	if w, err := l.Credit(ctx, owner(1), 1, math.MaxInt64-10); err != nil || w.Balance != math.MaxInt64 {
		t.Fatalf("expected credit up to the limit, got %d, %v", w.Balance, err)
	}
}

func TestInMemoryLedger_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	l := NewInMemory(Wallet{ID: 1, OwnerID: 1, Balance: 100_000})
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Debit(ctx, owner(1), 1, 60_000)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, failure.ErrInsufficientBalance):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != 1 || rejected.Load() != 1 {
		t.Fatalf("expected one success and one rejection, got %d/%d", succeeded.Load(), rejected.Load())
	}
	w, _ := l.Wallet(ctx, owner(1), 1)
	if w.Balance != 40_000 {
		t.Fatalf("expected final balance 40000, got %d", w.Balance)
	}
}

func TestInMemoryLedger_ConcurrentMixedTrafficKeepsInvariant(t *testing.T) {
	l := NewInMemory(Wallet{ID: 1, OwnerID: 1, Balance: 10_000})
	ctx := context.Background()

	const workers = 50
	var (
		wg       sync.WaitGroup
		debited  atomic.Int64
		credited atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%3 == 0 {
				if _, err := l.Credit(ctx, owner(1), 1, 700); err == nil {
					credited.Add(700)
				}
				return
			}
			if _, err := l.Debit(ctx, owner(1), 1, 900); err == nil {
				debited.Add(900)
			}
		}(i)
	}
	wg.Wait()

	w, _ := l.Wallet(ctx, owner(1), 1)
	if w.Balance < 0 {
		t.Fatalf("balance went negative: %d", w.Balance)
	}
	if want := 10_000 + credited.Load() - debited.Load(); w.Balance != want {
		t.Fatalf("ledger not balanced, want %d got %d", want, w.Balance)
	}
}

func TestInMemoryLedger_WalletByOwner(t *testing.T) {
	l := NewInMemory(
		Wallet{ID: 1, OwnerID: 1},
		Wallet{ID: 2, OwnerID: 2},
		Wallet{ID: 3, OwnerID: 2},
	)
	ctx := context.Background()

	w, err := l.WalletByOwner(ctx, owner(9), 1)
	if err != nil || w.ID != 1 {
		t.Fatalf("expected wallet 1, got %+v (%v)", w, err)
	}
	if _, err := l.WalletByOwner(ctx, owner(9), 2); !errors.Is(err, failure.ErrNotFound) {
		t.Fatalf("expected ambiguous owner to fail, got %v", err)
	}
	if _, err := l.WalletByOwner(ctx, owner(9), 3); !errors.Is(err, failure.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInMemoryLedger_CreateEnforcesOneWalletPerOwner(t *testing.T) {
	l := NewInMemory(Wallet{ID: 1, OwnerID: 1})
	ctx := context.Background()

	w, err := l.Create(ctx, owner(4), "idr")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if w.ID != 2 || w.Balance != 0 || w.Currency != "IDR" || w.Status != StatusActive {
		t.Fatalf("unexpected wallet: %+v", w)
	}
	if _, err := l.Create(ctx, owner(4), ""); !errors.Is(err, failure.ErrDuplicateWallet) {
		t.Fatalf("expected duplicate wallet, got %v", err)
	}

	wallets, err := l.Wallets(ctx, owner(4))
	if err != nil || len(wallets) != 1 {
		t.Fatalf("expected one wallet, got %d (%v)", len(wallets), err)
	}
}

func TestInMemoryLedger_ReadsDoNotMutate(t *testing.T) {
	l := NewInMemory(Wallet{ID: 1, OwnerID: 1, Balance: 500})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.Wallet(ctx, owner(1), 1); err != nil {
			t.Fatalf("wallet: %v", err)
		}
		if _, err := l.WalletByOwner(ctx, owner(1), 1); err != nil {
			t.Fatalf("wallet by owner: %v", err)
		}
	}
	if _, err := l.Wallet(ctx, owner(2), 1); !errors.Is(err, failure.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	w, _ := l.Wallet(ctx, owner(1), 1)
	if w.Balance != 500 {
		t.Fatalf("reads changed the balance: %d", w.Balance)
	}
}
