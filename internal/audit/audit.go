// Package audit produces candidate ledger entries for the external transaction
// log. Entries are append-only on the remote side; this package never updates
// or deletes them.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/walletflow/walletflow/internal/failure"
	"github.com/walletflow/walletflow/internal/identity"
)

// EntryType classifies a money movement in the transaction log.
type EntryType string

const (
	TypeTopup      EntryType = "topup"
	TypePayment    EntryType = "payment"
	TypeTransfer   EntryType = "transfer"
	TypeWithdrawal EntryType = "withdrawal"
)

// Valid reports whether t is one of the known entry types.
func (t EntryType) Valid() bool {
	switch t {
	case TypeTopup, TypePayment, TypeTransfer, TypeWithdrawal:
		return true
	}
	return false
}

// Entry is a candidate ledger entry.
type Entry struct {
	WalletID    int64     `json:"wallet_id"`
	Type        EntryType `json:"type"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the fields the transaction log rejects.
func (e Entry) Validate() error {
	if e.WalletID <= 0 {
		return failure.New(failure.ErrInvalidRequest, "wallet_id is required")
	}
	if !e.Type.Valid() {
		return failure.New(failure.ErrInvalidRequest, fmt.Sprintf("unknown entry type %q", e.Type))
	}
	if e.Amount <= 0 {
		return failure.New(failure.ErrInvalidAmount, "amount must be positive")
	}
	return nil
}

// Recorder delivers entries to the transaction log on behalf of caller.
type Recorder interface {
	Record(ctx context.Context, caller identity.Identity, entry Entry) error
}

// Sink is what orchestrators hold: recording can never fail a movement.
type Sink interface {
	Record(ctx context.Context, caller identity.Identity, entry Entry)
}

// LogRecorder writes entries to the structured logger. It is the fallback when
// no transaction log is configured.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder constructs a logging recorder.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

// Record writes the entry to the logger.
func (r *LogRecorder) Record(_ context.Context, caller identity.Identity, entry Entry) error {
	if r == nil || r.logger == nil {
		return nil
	}
	r.logger.Info("ledger entry",
		slog.Int64("owner_id", caller.OwnerID()),
		slog.Int64("wallet_id", entry.WalletID),
		slog.String("type", string(entry.Type)),
		slog.Int64("amount", entry.Amount),
		slog.String("description", entry.Description),
	)
	return nil
}

// MemoryRecorder keeps entries in memory. Fail makes every call return err.
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []Entry
	owners  []int64
	err     error
}

// NewMemoryRecorder constructs an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record appends the entry or returns the configured failure.
func (r *MemoryRecorder) Record(_ context.Context, caller identity.Identity, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entry)
	r.owners = append(r.owners, caller.OwnerID())
	return nil
}

// Fail makes subsequent calls return err. A nil err restores success.
func (r *MemoryRecorder) Fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Entries returns a copy of the recorded entries.
func (r *MemoryRecorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// BestEffortRecorder wraps a Recorder so that failures are logged and counted
// but never returned.
type BestEffortRecorder struct {
	next    Recorder
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	failures int64
}

// BestEffort wraps rec. A non-positive timeout defaults to five seconds.
func BestEffort(rec Recorder, logger *slog.Logger, timeout time.Duration) *BestEffortRecorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BestEffortRecorder{
		next:    rec,
		logger:  logger,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record delivers the entry, logging a warning on failure.
func (b *BestEffortRecorder) Record(ctx context.Context, caller identity.Identity, entry Entry) {
	if b == nil || b.next == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = b.now()
	}
	entry.Description = strings.TrimSpace(entry.Description)

	err := entry.Validate()
	if err == nil {
		// The movement is already final; the caller's deadline must not cut the record short.
		recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		err = b.next.Record(recCtx, caller, entry)
		cancel()
	}
	if err == nil {
		return
	}

	b.mu.Lock()
	b.failures++
	b.mu.Unlock()
	b.logger.WarnContext(ctx, "ledger entry not recorded",
		slog.Int64("owner_id", caller.OwnerID()),
		slog.Int64("wallet_id", entry.WalletID),
		slog.String("type", string(entry.Type)),
		slog.Int64("amount", entry.Amount),
		slog.String("error", err.Error()),
	)
}

// Failures returns the number of entries that could not be recorded.
func (b *BestEffortRecorder) Failures() int64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
