package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/walletflow/walletflow/internal/audit"
	"github.com/walletflow/walletflow/internal/failure"
	"github.com/walletflow/walletflow/internal/identity"
	"github.com/walletflow/walletflow/internal/ledger"
)

// Service charges wallets on behalf of their owners.
type Service struct {
	ledger ledger.Ledger
	repo   Repository
	audit  audit.Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a payment service. A nil sink skips audit recording.
func NewService(l ledger.Ledger, repo Repository, sink audit.Sink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger: l,
		repo:   repo,
		audit:  sink,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Pay debits the intent's wallet and returns the completed payment. Once the
// debit succeeds the payment is final: neither record persistence nor audit
// recording can fail it.
func (s *Service) Pay(ctx context.Context, caller identity.Identity, intent PaymentIntent) (Payment, error) {
	if err := intent.Validate(); err != nil {
		return Payment{}, err
	}
	log := s.logger.With(
		slog.Int64("owner_id", caller.OwnerID()),
		slog.Int64("wallet_id", intent.WalletID),
		slog.Int64("amount", intent.Amount),
	)

	wallet, err := s.ledger.Wallet(ctx, caller, intent.WalletID)
	if err != nil {
		return Payment{}, s.fail(ctx, log, StateValidated, sourceError(err))
	}
	if wallet.OwnerID != caller.OwnerID() {
		return Payment{}, s.fail(ctx, log, StateValidated, failure.New(failure.ErrInvalidWallet, "wallet not owned by caller"))
	}
	if wallet.Balance < intent.Amount {
		return Payment{}, s.fail(ctx, log, StateValidated, failure.New(failure.ErrInsufficientBalance,
			fmt.Sprintf("balance %d is below %d", wallet.Balance, intent.Amount)))
	}

	if _, err := s.ledger.Debit(ctx, caller, intent.WalletID, intent.Amount); err != nil {
		return Payment{}, s.fail(ctx, log, StateValidated, debitError(err))
	}

	payment := Payment{
		ID:            uuid.New(),
		OwnerID:       caller.OwnerID(),
		WalletID:      intent.WalletID,
		Merchant:      intent.Merchant,
		Amount:        intent.Amount,
		Status:        StatusCompleted,
		PaymentMethod: MethodWallet,
		CreatedAt:     s.now(),
	}
	if s.repo != nil {
		if err := s.repo.Save(context.WithoutCancel(ctx), payment); err != nil {
			log.ErrorContext(ctx, "payment debited but not stored",
				slog.String("payment_id", payment.ID.String()),
				slog.String("state", string(StateDebited)),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.audit != nil {
		s.audit.Record(ctx, caller, audit.Entry{
			WalletID:    intent.WalletID,
			Type:        audit.TypePayment,
			Amount:      intent.Amount,
			Description: "Payment to " + intent.Merchant,
			CreatedAt:   payment.CreatedAt,
		})
	}
	log.DebugContext(ctx, "payment recorded",
		slog.String("payment_id", payment.ID.String()),
		slog.String("state", string(StateRecorded)),
	)

	log.InfoContext(ctx, "payment completed",
		slog.String("payment_id", payment.ID.String()),
		slog.String("merchant", payment.Merchant),
		slog.String("state", string(StateCompleted)),
	)
	return payment, nil
}

// Get returns one of the caller's payments.
func (s *Service) Get(ctx context.Context, caller identity.Identity, id uuid.UUID) (Payment, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if !caller.Owns(p.OwnerID) {
		return Payment{}, failure.New(failure.ErrUnauthorized, "payment belongs to another owner")
	}
	return p, nil
}

// List returns the caller's payments, newest first.
func (s *Service) List(ctx context.Context, caller identity.Identity) ([]Payment, error) {
	return s.repo.ListByOwner(ctx, caller.OwnerID())
}

func (s *Service) fail(ctx context.Context, log *slog.Logger, reached State, err error) error {
	log.InfoContext(ctx, "payment failed",
		slog.String("state", string(StateFailed)),
		slog.String("reached", string(reached)),
		slog.String("code", failure.Code(err)),
		slog.String("error", err.Error()),
	)
	return err
}

// sourceError maps a failed wallet lookup. Transport errors stay retryable.
func sourceError(err error) error {
	switch {
	case failure.IsTransport(err):
		return err
	case errors.Is(err, failure.ErrNotFound), errors.Is(err, failure.ErrUnauthorized):
		return failure.Wrap(failure.ErrInvalidWallet, err, "wallet lookup")
	default:
		return err
	}
}

// debitError keeps the business and transport rejections of the ledger and
// classifies anything else as a failed payment.
func debitError(err error) error {
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
	return failure.Wrap(failure.ErrPaymentFailed, err, "debit")
}
