// Package walletclient provides a ledger.Ledger backed by the wallet service.
// Every call forwards the caller's credential, runs under a bounded timeout and
// is never retried; a timeout is treated like any other rejection.
package walletclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/walletflow/walletflow/internal/breaker"
	"github.com/walletflow/walletflow/internal/failure"
	"github.com/walletflow/walletflow/internal/identity"
	"github.com/walletflow/walletflow/internal/ledger"
)

const apiPrefix = "/api/v1"

// Client is a client for the wallet service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *breaker.Breaker
}

var _ ledger.Ledger = (*Client)(nil)

// NewClient creates a wallet service client. A nil breaker disables circuit breaking.
func NewClient(baseURL string, timeout time.Duration, br *breaker.Breaker) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    br,
	}
}

type walletEnvelope struct {
	Wallet ledger.Wallet `json:"wallet"`
}

type walletsEnvelope struct {
	Wallets []ledger.Wallet `json:"wallets"`
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type createRequest struct {
	Currency string `json:"currency,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Wallet calls GET /wallets/{id}.
func (c *Client) Wallet(ctx context.Context, caller identity.Identity, id int64) (ledger.Wallet, error) {
	var out walletEnvelope
	err := c.do(ctx, caller, http.MethodGet, fmt.Sprintf("/wallets/%d", id), nil, &out)
	return out.Wallet, err
}

// WalletByOwner calls GET /wallets/by-owner/{owner_id}.
func (c *Client) WalletByOwner(ctx context.Context, caller identity.Identity, ownerID int64) (ledger.Wallet, error) {
	var out walletEnvelope
	err := c.do(ctx, caller, http.MethodGet, fmt.Sprintf("/wallets/by-owner/%d", ownerID), nil, &out)
	return out.Wallet, err
}

// Wallets calls GET /wallets.
func (c *Client) Wallets(ctx context.Context, caller identity.Identity) ([]ledger.Wallet, error) {
	var out walletsEnvelope
	err := c.do(ctx, caller, http.MethodGet, "/wallets", nil, &out)
	return out.Wallets, err
}

// Create calls POST /wallets.
func (c *Client) Create(ctx context.Context, caller identity.Identity, currency string) (ledger.Wallet, error) {
	var out walletEnvelope
	err := c.do(ctx, caller, http.MethodPost, "/wallets", createRequest{Currency: currency}, &out)
	return out.Wallet, err
}

// Debit calls POST /wallets/{id}/debit.
func (c *Client) Debit(ctx context.Context, caller identity.Identity, id, amount int64) (ledger.Wallet, error) {
	return c.move(ctx, caller, fmt.Sprintf("/wallets/%d/debit", id), id, amount)
}

// Credit calls POST /wallets/{id}/credit. A context marked with
// breaker.Bypass sends the call even while the circuit is open.
func (c *Client) Credit(ctx context.Context, caller identity.Identity, id, amount int64) (ledger.Wallet, error) {
	return c.move(ctx, caller, fmt.Sprintf("/wallets/%d/credit", id), id, amount)
}

// move posts a balance change. Once the service answered 2xx the change is
// applied, so an unreadable body only costs the snapshot.
func (c *Client) move(ctx context.Context, caller identity.Identity, path string, id, amount int64) (ledger.Wallet, error) {
	var out walletEnvelope
	err := c.do(ctx, caller, http.MethodPost, path, amountRequest{Amount: amount}, &out)
	if errors.Is(err, errUnreadable) {
		return ledger.Wallet{ID: id}, nil
	}
	return out.Wallet, err
}

// errUnreadable marks a 2xx response whose body did not decode.
var errUnreadable = errors.New("unreadable wallet service response")

func (c *Client) do(ctx context.Context, caller identity.Identity, method, path string, payload, out any) error {
	if c.baseURL == "" {
		return failure.New(failure.ErrServiceUnavailable, "wallet service base url is empty")
	}
	err := c.breaker.DoContext(ctx, func() error {
		return c.roundTrip(ctx, caller, method, path, payload, out)
	})
	if errors.Is(err, errUnreadable) {
		return failure.Wrap(failure.ErrServiceUnavailable, err, "decode wallet service response")
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, caller identity.Identity, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	identity.Forward(req, caller)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errUnreadable, err)
	}
	return nil
}

func transportError(method, path string, err error) error {
	msg := fmt.Sprintf("%s %s", method, path)
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return failure.Wrap(failure.ErrTimeout, err, msg)
	}
	return failure.Wrap(failure.ErrServiceUnavailable, err, msg)
}

func statusError(resp *http.Response) error {
	var eb errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &eb)
	msg := strings.TrimSpace(eb.Error)
	if msg == "" {
		msg = fmt.Sprintf("wallet service returned status %d", resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusGatewayTimeout:
		return failure.New(failure.ErrTimeout, msg)
	case resp.StatusCode >= 500:
		return failure.New(failure.ErrServiceUnavailable, msg)
	}

	if kind := failure.FromCode(eb.Code); kind != nil && !failure.IsTransport(kind) {
		return failure.New(kind, msg)
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return failure.New(failure.ErrUnauthorized, msg)
	case http.StatusNotFound:
		return failure.New(failure.ErrNotFound, msg)
	case http.StatusConflict:
		return failure.New(failure.ErrWalletInactive, msg)
	default:
		return failure.New(failure.ErrInvalidRequest, msg)
	}
}
