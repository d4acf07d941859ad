package transfers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletflow/walletflow/internal/audit"
	"github.com/walletflow/walletflow/internal/breaker"
	"github.com/walletflow/walletflow/internal/failure"
	"github.com/walletflow/walletflow/internal/identity"
	"github.com/walletflow/walletflow/internal/ledger"
	"github.com/walletflow/walletflow/internal/logging"
	"github.com/walletflow/walletflow/internal/reconcile"
	"github.com/walletflow/walletflow/internal/saga"
	"github.com/walletflow/walletflow/internal/walletclient"
)

func owner(id int64) identity.Identity {
	return identity.Trusted(id, "token", time.Time{})
}

// faultyLedger injects failures into a working ledger.
type faultyLedger struct {
	ledger.Ledger

	mu          sync.Mutex
	resolveErr  error
	creditErr   map[int64][]error // per wallet, consumed in order
	creditCalls map[int64]int
}

func newFaulty(l ledger.Ledger) *faultyLedger {
	return &faultyLedger{Ledger: l, creditErr: map[int64][]error{}, creditCalls: map[int64]int{}}
}

func (f *faultyLedger) WalletByOwner(ctx context.Context, caller identity.Identity, ownerID int64) (ledger.Wallet, error) {
	if f.resolveErr != nil {
		return ledger.Wallet{}, f.resolveErr
	}
	return f.Ledger.WalletByOwner(ctx, caller, ownerID)
}

func (f *faultyLedger) Credit(ctx context.Context, caller identity.Identity, id, amount int64) (ledger.Wallet, error) {
	f.mu.Lock()
	f.creditCalls[id]++
	var err error
	if errs := f.creditErr[id]; len(errs) > 0 {
		err, f.creditErr[id] = errs[0], errs[1:]
	}
	f.mu.Unlock()
	if err != nil {
		return ledger.Wallet{}, err
	}
	return f.Ledger.Credit(ctx, caller, id, amount)
}

type fixture struct {
	base   ledger.Ledger
	faulty *faultyLedger
	mem    *audit.MemoryRecorder
	store  reconcile.Store
	svc    *Service
}

func newFixture(seed ...ledger.Wallet) fixture {
	if len(seed) == 0 {
		seed = []ledger.Wallet{
			{ID: 1, OwnerID: 1, Balance: 100_000},
			{ID: 2, OwnerID: 2, Balance: 300_000},
		}
	}
	base := ledger.NewInMemory(seed...)
	faulty := newFaulty(base)
	mem := audit.NewMemoryRecorder()
	store := reconcile.NewMemoryStore()
	policy := saga.CompensationPolicy{Attempts: 3, BaseDelay: time.Millisecond, Timeout: time.Second}
	svc := NewService(faulty, audit.BestEffort(mem, logging.Discard(), time.Second), store, policy, logging.Discard())
	return fixture{base: base, faulty: faulty, mem: mem, store: store, svc: svc}
}

func (f fixture) balance(t *testing.T, ownerID, walletID int64) int64 {
	t.Helper()
	w, err := f.base.Wallet(context.Background(), owner(ownerID), walletID)
	if err != nil {
		t.Fatalf("wallet %d: %v", walletID, err)
	}
	return w.Balance
}

func TestTransferMovesFunds(t *testing.T) {
	f := newFixture()

	res, err := f.svc.Transfer(context.Background(), owner(1), TransferIntent{SourceWalletID: 1, DestinationOwnerID: 2, Amount: 50_000})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if res.SourceWalletID != 1 || res.DestinationWalletID != 2 || res.Amount != 50_000 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := f.balance(t, 1, 1); got != 50_000 {
		t.Fatalf("expected source 50000, got %d", got)
	}
	if got := f.balance(t, 2, 2); got != 350_000 {
		t.Fatalf("expected destination 350000, got %d", got)
	}

	entries := f.mem.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.TypeTransfer, entries[0].Type)
	assert.Equal(t, int64(1), entries[0].WalletID)
	assert.Equal(t, "Transfer to user 2", entries[0].Description)
}

func TestTransferConservesTotal(t *testing.T) {
	f := newFixture()
	before := f.balance(t, 1, 1) + f.balance(t, 2, 2)

	for _, amount := range []int64{1, 999, 25_000, 74_000} {
		_, err := f.svc.Transfer(context.Background(), owner(1), TransferIntent{SourceWalletID: 1, DestinationOwnerID: 2, Amount: amount})
		require.NoError(t, err)
	}
	_, err := f.svc.Transfer(context.Background(), owner(1), TransferIntent{SourceWalletID: 1, DestinationOwnerID: 2, Amount: 1})
	assert.ErrorIs(t, err, failure.ErrInsufficientBalance)

	assert.Equal(t, before, f.balance(t, 1, 1)+f.balance(t, 2, 2))
	assert.Equal(t, int64(0), f.balance(t, 1, 1))
}

func TestTransferResolutionTimeoutIsCompensated(t *testing.T) {
	f := newFixture()
	f.faulty.resolveErr = failure.New(failure.ErrTimeout, "GET /wallets/by-owner/2")

	_, err := f.svc.Transfer(context.Background(), owner(1), TransferIntent{SourceWalletID: 1, DestinationOwnerID: 2, Amount: 50_000})
	if !errors.Is(err, failure.ErrTransferFailed) {
		t.Fatalf("expected transfer failed, got %v", err)
	}
	assert.NotErrorIs(t, err, failure.ErrCompensationFailed)
	assert.Equal(t, int64(100_000), f.balance(t, 1, 1))
	assert.Equal(t, int64(300_000), f.balance(t, 2, 2))
	assert.Empty(t, f.mem.Entries())

	open, err := f.store.List(context.Background(), reconcile.Filter{UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestTransferUnknownDestinationIsCompensated(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Transfer(context.Background(), owner(1), TransferIntent{SourceWalletID: 1, DestinationOwnerID: 42, Amount: 10_000})
	assert.ErrorIs(t, err, failure.ErrTransferFailed)
	assert.ErrorIs(t, err, failure.ErrDestinationNotFound)
	assert.Equal(t, int64(100_000), f.balance(t, 1, 1))
}

func TestTransferAmbiguousDestinationIsNeverCredited(t *testing.T) {
	f := newFixture(
		ledger.Wallet{ID: 1, OwnerID: 1, Balance: 100_000},
		ledger.Wallet{ID: 2, OwnerID: 2, Balance: 10},
		ledger.Wallet{ID: 3, OwnerID: 2, Balance: 20},
	)

	_, err := f.svc.Transfer(context.Background(), owner(1), TransferIntent{SourceWalletID: 1, DestinationOwnerID: 2, Amount: 5_000})
	assert.ErrorIs(t, err, failure.ErrDestinationNotFound)
	assert.Equal(t, int64(100_000), f.balance(t, 1, 1))
	assert.Equal(t, int64(10), f.balance(t, 2, 2))
	assert.Equal(t, int64(20), f.balance(t, 2, 3))
	assert.Zero(t, f.faulty.creditCalls[2])
	assert.Zero(t, f.faulty.creditCalls[3])
}

func TestTransferCreditFailureIsCompensated(t *testing.T) {
	f := newFixture()
	f.faulty.creditErr[2] = []error{failure.New(failure.ErrServiceUnavailable, "wallet service down")}

	_, err := f.svc.Transfer(context.Background(), owner(1), TransferIntent{SourceWalletID: 1, DestinationOwnerID: 2, Amount: 50_000})
	assert.ErrorIs(t, err, failure.ErrTransferFailed)
	assert.Equal(t, int64(100_000), f.balance(t, 1, 1))
	assert.Equal(t, int64(300_000), f.balance(t, 2, 2))
}

func TestTransferCompensationRetriesTransportErrors(t *testing.T) {
	f := newFixture()
	f.faulty.resolveErr = failure.New(failure.ErrServiceUnavailable, "down")
	f.faulty.creditErr[1] = []error{
		failure.New(failure.ErrTimeout, "credit back"),
		failure.New(failure.ErrServiceUnavailable, "credit back"),
	}

	_, err := f.svc.Transfer(context.Background(), owner(1), TransferIntent{SourceWalletID: 1, DestinationOwnerID: 2, Amount: 50_000})
	assert.ErrorIs(t, err, failure.ErrTransferFailed)
	assert.Equal(t, 3, f.faulty.creditCalls[1])
	assert.Equal(t, int64(100_000), f.balance(t, 1, 1))
}

func TestTransferCompensationFailureIsFlagged(t *testing.T) {
	f := newFixture()
	f.faulty.resolveErr = failure.New(failure.ErrTimeout, "by-owner")
	down := failure.New(failure.ErrServiceUnavailable, "credit back")
	f.faulty.creditErr[1] = []error{down, down, down}

	_, err := f.svc.Transfer(context.Background(), owner(1), TransferIntent{SourceWalletID: 1, DestinationOwnerID: 2, Amount: 50_000})
	require.ErrorIs(t, err, failure.ErrCompensationFailed)
	assert.NotErrorIs(t, err, failure.ErrTransferFailed)
	assert.Equal(t, 500, failure.HTTPStatus(err))

	// Funds are in flight: debited, credited nowhere.
	assert.Equal(t, int64(50_000), f.balance(t, 1, 1))
	assert.Equal(t, int64(300_000), f.balance(t, 2, 2))

	open, err := f.store.List(context.Background(), reconcile.Filter{UnresolvedOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, int64(1), open[0].WalletID)
	assert.Equal(t, int64(50_000), open[0].Amount)
	assert.Equal(t, FlowName, open[0].Flow)
}

func TestTransferRefundSurvivesOpenWalletCircuit(t *testing.T) {
	var (
		mu      sync.Mutex
		credits int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/wallets/1":
			_ = json.NewEncoder(w).Encode(map[string]any{"wallet": map[string]any{"id": 1, "user_id": 1, "balance": 100_000}})
		case "/api/v1/wallets/1/debit":
			_ = json.NewEncoder(w).Encode(map[string]any{"wallet": map[string]any{"id": 1, "user_id": 1, "balance": 50_000}})
		case "/api/v1/wallets/by-owner/2":
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "down"})
		case "/api/v1/wallets/1/credit":
			mu.Lock()
			credits++
			mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{"wallet": map[string]any{"id": 1, "user_id": 1, "balance": 100_000}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	br := breaker.New("wallet", breaker.Config{ConsecutiveFailures: 1, OpenFor: time.Minute}, nil)
	client := walletclient.NewClient(srv.URL, time.Second, br)
	store := reconcile.NewMemoryStore()
	policy := saga.CompensationPolicy{Attempts: 3, BaseDelay: time.Millisecond, Timeout: time.Second}
	svc := NewService(client, nil, store, policy, logging.Discard())

	_, err := svc.Transfer(context.Background(), owner(1), TransferIntent{SourceWalletID: 1, DestinationOwnerID: 2, Amount: 50_000})
	require.ErrorIs(t, err, failure.ErrTransferFailed)
	assert.NotErrorIs(t, err, failure.ErrCompensationFailed)
	assert.Equal(t, "open", br.State())
	assert.Equal(t, 1, credits)

	open, err := store.List(context.Background(), reconcile.Filter{UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestTransferPreconditions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tests := []struct {
		name   string
		caller identity.Identity
		intent TransferIntent
		want   error
	}{
		{"missing source", owner(1), TransferIntent{DestinationOwnerID: 2, Amount: 1}, failure.ErrInvalidRequest},
		{"missing destination", owner(1), TransferIntent{SourceWalletID: 1, Amount: 1}, failure.ErrInvalidRequest},
		{"zero amount", owner(1), TransferIntent{SourceWalletID: 1, DestinationOwnerID: 2}, failure.ErrInvalidRequest},
		{"self transfer", owner(1), TransferIntent{SourceWalletID: 1, DestinationOwnerID: 1, Amount: 1}, failure.ErrInvalidRequest},
		{"foreign source", owner(2), TransferIntent{SourceWalletID: 1, DestinationOwnerID: 3, Amount: 1}, failure.ErrInvalidWallet},
		{"unknown source", owner(1), TransferIntent{SourceWalletID: 9, DestinationOwnerID: 2, Amount: 1}, failure.ErrInvalidWallet},
		{"insufficient", owner(1), TransferIntent{SourceWalletID: 1, DestinationOwnerID: 2, Amount: 100_001}, failure.ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Transfer(ctx, tt.caller, tt.intent)
			assert.ErrorIs(t, err, tt.want)
			assert.NotErrorIs(t, err, failure.ErrTransferFailed)
		})
	}
	assert.Equal(t, int64(100_000), f.balance(t, 1, 1))
	assert.Equal(t, int64(300_000), f.balance(t, 2, 2))
}

func TestTransferFrozenSourceIsNotDebited(t *testing.T) {
	f := newFixture()
	ledger.SetStatus(f.base, 1, ledger.StatusFrozen)

	_, err := f.svc.Transfer(context.Background(), owner(1), TransferIntent{SourceWalletID: 1, DestinationOwnerID: 2, Amount: 10})
	assert.ErrorIs(t, err, failure.ErrWalletInactive)
	assert.Equal(t, int64(100_000), f.balance(t, 1, 1))
}

func TestTransferFrozenDestinationStillReceives(t *testing.T) {
	f := newFixture()
	ledger.SetStatus(f.base, 2, ledger.StatusFrozen)

	_, err := f.svc.Transfer(context.Background(), owner(1), TransferIntent{SourceWalletID: 1, DestinationOwnerID: 2, Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(300_010), f.balance(t, 2, 2))
}

func TestConcurrentTransfersNeverOverdraw(t *testing.T) {
	f := newFixture()

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Transfer(context.Background(), owner(1), TransferIntent{SourceWalletID: 1, DestinationOwnerID: 2, Amount: 60_000})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, failure.ErrInsufficientBalance)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(40_000), f.balance(t, 1, 1))
	assert.Equal(t, int64(360_000), f.balance(t, 2, 2))
}

func TestTransferAuditFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.mem.Fail(errors.New("transaction log down"))

	_, err := f.svc.Transfer(context.Background(), owner(1), TransferIntent{SourceWalletID: 1, DestinationOwnerID: 2, Amount: 1_000})
	require.NoError(t, err)
	assert.Equal(t, int64(99_000), f.balance(t, 1, 1))
}
