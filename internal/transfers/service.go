// Package transfers moves funds from a caller's wallet to another owner's
// wallet as a saga: debit the source, resolve the destination, credit it, and
// credit the source back if anything after the debit fails.
package transfers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/walletflow/walletflow/internal/audit"
	"github.com/walletflow/walletflow/internal/breaker"
	"github.com/walletflow/walletflow/internal/failure"
	"github.com/walletflow/walletflow/internal/identity"
	"github.com/walletflow/walletflow/internal/ledger"
	"github.com/walletflow/walletflow/internal/reconcile"
	"github.com/walletflow/walletflow/internal/saga"
)

// Transfer states. Validated precedes the saga; the rest are reached by its steps.
const (
	StateValidated           saga.State = "validated"
	StateSourceDebited       saga.State = "source_debited"
	StateDestinationResolved saga.State = "destination_resolved"
	StateCreditedDestination saga.State = "destination_credited"
	StateRecorded            saga.State = "recorded"
	StateCompleted           saga.State = "completed"
)

// FlowName identifies transfers in logs and reconciliation records.
const FlowName = "transfer"

// TransferIntent describes a requested transfer. It lives for one call.
type TransferIntent struct {
	SourceWalletID     int64 `json:"from_wallet_id"`
	DestinationOwnerID int64 `json:"to_user_id"`
	Amount             int64 `json:"amount"`
}

// Validate checks the intent shape.
func (i TransferIntent) Validate() error {
	switch {
	case i.SourceWalletID <= 0:
		return failure.New(failure.ErrInvalidRequest, "from_wallet_id is required")
	case i.DestinationOwnerID <= 0:
		return failure.New(failure.ErrInvalidRequest, "to_user_id is required")
	case i.Amount <= 0:
		return failure.New(failure.ErrInvalidRequest, "amount must be positive")
	}
	return nil
}

// Transfer describes a completed transfer.
type Transfer struct {
	ID                  uuid.UUID `json:"id"`
	SourceWalletID      int64     `json:"from_wallet_id"`
	DestinationWalletID int64     `json:"to_wallet_id"`
	Amount              int64     `json:"amount"`
	CompletedAt         time.Time `json:"completed_at"`
}

// Service runs transfers.
type Service struct {
	ledger ledger.Ledger
	audit  audit.Sink
	store  reconcile.Store
	policy saga.CompensationPolicy
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a transfer service. A nil sink skips audit recording and
// a nil store only logs indeterminate transfers.
func NewService(l ledger.Ledger, sink audit.Sink, store reconcile.Store, policy saga.CompensationPolicy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger: l,
		audit:  sink,
		store:  store,
		policy: policy,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Transfer moves intent.Amount from the caller's source wallet to the single
// wallet of the destination owner.
//
// A failure before the debit is returned as is. A failure after it is reverted
// and reported as failure.ErrTransferFailed, unless the revert itself fails, in
// which case failure.ErrCompensationFailed is returned and the transfer is
// queued for manual reconciliation.
func (s *Service) Transfer(ctx context.Context, caller identity.Identity, intent TransferIntent) (Transfer, error) {
	if err := intent.Validate(); err != nil {
		return Transfer{}, err
	}
	if intent.DestinationOwnerID == caller.OwnerID() {
		return Transfer{}, failure.New(failure.ErrInvalidRequest, "cannot transfer to own wallet")
	}
	log := s.logger.With(
		slog.Int64("owner_id", caller.OwnerID()),
		slog.Int64("wallet_id", intent.SourceWalletID),
		slog.Int64("to_user_id", intent.DestinationOwnerID),
		slog.Int64("amount", intent.Amount),
	)

	source, err := s.ledger.Wallet(ctx, caller, intent.SourceWalletID)
	if err != nil {
		return Transfer{}, sourceError(err)
	}
	if source.OwnerID != caller.OwnerID() {
		return Transfer{}, failure.New(failure.ErrInvalidWallet, "source wallet not owned by caller")
	}
	if source.Balance < intent.Amount {
		return Transfer{}, failure.New(failure.ErrInsufficientBalance,
			fmt.Sprintf("balance %d is below %d", source.Balance, intent.Amount))
	}

	var destination ledger.Wallet
	flow := saga.New(FlowName, failure.ErrTransferFailed, s.policy, log).
		Then(StateSourceDebited,
			func(ctx context.Context) error {
				_, err := s.ledger.Debit(ctx, caller, source.ID, intent.Amount)
				return debitError(err)
			},
			func(ctx context.Context) error {
				// The refund is sent even while the wallet circuit is open.
				_, err := s.ledger.Credit(breaker.Bypass(ctx), caller, source.ID, intent.Amount)
				return err
			}).
		Then(StateDestinationResolved,
			func(ctx context.Context) error {
				w, err := s.ledger.WalletByOwner(ctx, caller, intent.DestinationOwnerID)
				if err != nil {
					return resolveError(err)
				}
				if w.ID == source.ID {
					return failure.New(failure.ErrInvalidRequest, "destination resolves to the source wallet")
				}
				destination = w
				return nil
			}, nil).
		Then(StateCreditedDestination,
			func(ctx context.Context) error {
				_, err := s.ledger.Credit(ctx, caller, destination.ID, intent.Amount)
				return err
			}, nil)

	outcome := flow.Run(ctx)
	if err := outcome.Err(); err != nil {
		if errors.Is(err, failure.ErrCompensationFailed) {
			s.flagIndeterminate(ctx, log, caller, intent, outcome, err)
		} else {
			log.WarnContext(ctx, "transfer failed",
				slog.String("failed_step", string(outcome.Failed)),
				slog.Bool("compensated", outcome.Compensated),
				slog.String("code", failure.Code(err)),
				slog.String("error", err.Error()),
			)
		}
		return Transfer{}, err
	}

	completed := Transfer{
		ID:                  uuid.New(),
		SourceWalletID:      source.ID,
		DestinationWalletID: destination.ID,
		Amount:              intent.Amount,
		CompletedAt:         s.now(),
	}
	if s.audit != nil {
		s.audit.Record(ctx, caller, audit.Entry{
			WalletID:    source.ID,
			Type:        audit.TypeTransfer,
			Amount:      intent.Amount,
			Description: fmt.Sprintf("Transfer to user %d", intent.DestinationOwnerID),
			CreatedAt:   completed.CompletedAt,
		})
	}
	log.DebugContext(ctx, "transfer recorded",
		slog.String("transfer_id", completed.ID.String()),
		slog.String("state", string(StateRecorded)),
	)
	log.InfoContext(ctx, "transfer completed",
		slog.String("transfer_id", completed.ID.String()),
		slog.Int64("to_wallet_id", destination.ID),
		slog.String("state", string(StateCompleted)),
	)
	return completed, nil
}

func (s *Service) flagIndeterminate(ctx context.Context, log *slog.Logger, caller identity.Identity, intent TransferIntent, outcome saga.Outcome, err error) {
	log.ErrorContext(ctx, "transfer left funds in flight",
		slog.String("failed_step", string(outcome.Failed)),
		slog.String("code", failure.Code(err)),
		slog.String("error", err.Error()),
	)
	if s.store == nil {
		return
	}
	rec, recErr := s.store.Record(context.WithoutCancel(ctx), reconcile.Inconsistency{
		Flow:     FlowName,
		WalletID: intent.SourceWalletID,
		OwnerID:  caller.OwnerID(),
		Amount:   intent.Amount,
		Reason:   err.Error(),
	})
	if recErr != nil {
		log.ErrorContext(ctx, "inconsistency not recorded", slog.String("error", recErr.Error()))
		return
	}
	log.ErrorContext(ctx, "inconsistency recorded", slog.String("inconsistency_id", rec.ID.String()))
}

func sourceError(err error) error {
	switch {
	case failure.IsTransport(err):
		return err
	case errors.Is(err, failure.ErrNotFound), errors.Is(err, failure.ErrUnauthorized):
		return failure.Wrap(failure.ErrInvalidWallet, err, "source wallet lookup")
	default:
		return err
	}
}

// debitError keeps the ledger's own rejections and classifies the rest as a
// failed transfer. Nothing was moved, so there is nothing to revert.
func debitError(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		failure.ErrInsufficientBalance,
		failure.ErrInvalidAmount,
		failure.ErrWalletInactive,
		failure.ErrUnauthorized,
		failure.ErrServiceUnavailable,
		failure.ErrTimeout,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return failure.Wrap(failure.ErrTransferFailed, err, "debit source")
}

// resolveError turns a missing or ambiguous owner into ErrDestinationNotFound.
// The ledger never guesses between several wallets.
func resolveError(err error) error {
	if errors.Is(err, failure.ErrNotFound) {
		return failure.Wrap(failure.ErrDestinationNotFound, err, "resolve destination")
	}
	return err
}
