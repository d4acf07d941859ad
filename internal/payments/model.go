package payments

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/walletflow/walletflow/internal/failure"
)

// State is a step of the payment state machine.
type State string

const (
	StateValidated State = "validated"
	StateDebited   State = "debited"
	StateRecorded  State = "recorded"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// StatusCompleted is the only status a stored payment can have: records are
// written after the debit is final.
const StatusCompleted = "completed"

// MethodWallet marks payments funded from a wallet balance.
const MethodWallet = "wallet"

// Payment is a completed charge against a wallet.
type Payment struct {
	ID            uuid.UUID `json:"id"`
	OwnerID       int64     `json:"user_id"`
	WalletID      int64     `json:"wallet_id"`
	Merchant      string    `json:"merchant"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	PaymentMethod string    `json:"payment_method"`
	CreatedAt     time.Time `json:"created_at"`
}

// PaymentIntent describes a requested charge. It lives for one Pay call.
type PaymentIntent struct {
	WalletID int64  `json:"wallet_id"`
	Merchant string `json:"merchant"`
	Amount   int64  `json:"amount"`
}

// Validate checks the intent shape.
func (i PaymentIntent) Validate() error {
	var missing []string
	if i.WalletID <= 0 {
		missing = append(missing, "wallet_id")
	}
	if strings.TrimSpace(i.Merchant) == "" {
		missing = append(missing, "merchant")
	}
	if i.Amount <= 0 {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		return failure.New(failure.ErrInvalidRequest, "missing or invalid fields: "+strings.Join(missing, ", "))
	}
	return nil
}
