// Package failure defines the error taxonomy shared by the ledger, the remote
// clients and the orchestrators, and how each kind surfaces over HTTP.
package failure

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidRequest reports a malformed money movement intent.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound reports a wallet or record that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized reports an ownership mismatch between caller and wallet.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidAmount reports a non-positive amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientBalance reports a debit larger than the available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidWallet reports a source wallet that is missing or not owned by the caller.
	ErrInvalidWallet = errors.New("invalid wallet")
	// ErrWalletInactive reports a debit against a frozen or closed wallet.
	ErrWalletInactive = errors.New("wallet inactive")
	// ErrDuplicateWallet reports an attempt to open a second wallet for one owner.
	ErrDuplicateWallet = errors.New("owner already has a wallet")
	// ErrDestinationNotFound reports that the destination owner did not resolve to exactly one wallet.
	ErrDestinationNotFound = errors.New("destination not found")
	// ErrServiceUnavailable reports a downstream transport failure.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrTimeout reports a downstream call that exceeded its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrPaymentFailed reports a payment that could not be debited.
	ErrPaymentFailed = errors.New("payment failed")
	// ErrTransferFailed reports a transfer that failed after its funds were safely reverted.
	ErrTransferFailed = errors.New("transfer failed")
	// ErrCompensationFailed reports funds left in an indeterminate state. Operators must
	// reconcile these manually.
	ErrCompensationFailed = errors.New("compensation failed")
)

type kindError struct {
	kind  error
	msg   string
	cause error
}

func (e *kindError) Error() string {
	text := e.kind.Error()
	if e.msg != "" {
		text += ": " + e.msg
	}
	if e.cause != nil {
		text += ": " + e.cause.Error()
	}
	return text
}

func (e *kindError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

// New returns an error of the given kind with extra context.
func New(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Wrap returns an error of the given kind that also matches cause with errors.Is.
func Wrap(kind, cause error, msg string) error {
	return &kindError{kind: kind, msg: msg, cause: cause}
}

// IsTransport reports whether err is a downstream transport failure the caller may retry.
func IsTransport(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrTimeout)
}

// The order matters: an error can match several kinds (a TransferFailed wraps the
// timeout that caused it), and the outermost outcome must win.
var table = []struct {
	kind   error
	status int
	code   string
}{
	{ErrCompensationFailed, http.StatusInternalServerError, "compensation_failed"},
	{ErrTransferFailed, http.StatusBadGateway, "transfer_failed"},
	{ErrPaymentFailed, http.StatusBadGateway, "payment_failed"},
	{ErrDestinationNotFound, http.StatusNotFound, "destination_not_found"},
	{ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{ErrInsufficientBalance, http.StatusBadRequest, "insufficient_balance"},
	{ErrInvalidWallet, http.StatusBadRequest, "invalid_wallet"},
	{ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{ErrNotFound, http.StatusNotFound, "not_found"},
	{ErrWalletInactive, http.StatusConflict, "wallet_inactive"},
	{ErrDuplicateWallet, http.StatusConflict, "duplicate_wallet"},
	{ErrTimeout, http.StatusGatewayTimeout, "timeout"},
	{ErrServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
}

// HTTPStatus maps err to the status code returned to API callers.
func HTTPStatus(err error) int {
	for _, row := range table {
		if errors.Is(err, row.kind) {
			return row.status
		}
	}
	return http.StatusInternalServerError
}

// Code returns a stable machine readable code for err.
func Code(err error) string {
	for _, row := range table {
		if errors.Is(err, row.kind) {
			return row.code
		}
	}
	return "internal"
}

// FromCode is the inverse of Code and is used by HTTP clients to rebuild the
// kind reported by a remote service. Unknown codes yield nil.
func FromCode(code string) error {
	for _, row := range table {
		if row.code == code {
			return row.kind
		}
	}
	return nil
}
