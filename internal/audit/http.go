package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/walletflow/walletflow/internal/breaker"
	"github.com/walletflow/walletflow/internal/failure"
	"github.com/walletflow/walletflow/internal/identity"
)

// DefaultPath is where the transaction log accepts new entries.
const DefaultPath = "/ledger-entries"

// HTTPRecorder posts entries to the transaction log service.
type HTTPRecorder struct {
	url        string
	httpClient *http.Client
	breaker    *breaker.Breaker
}

// NewHTTPRecorder creates a recorder for baseURL. An empty path uses DefaultPath.
func NewHTTPRecorder(baseURL, path string, timeout time.Duration, br *breaker.Breaker) *HTTPRecorder {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPRecorder{
		url:        strings.TrimRight(strings.TrimSpace(baseURL), "/") + path,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    br,
	}
}

type entryRequest struct {
	WalletID    int64     `json:"wallet_id"`
	Type        EntryType `json:"type"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
}

// Record posts the entry with the caller's credential and expects 201 Created.
func (r *HTTPRecorder) Record(ctx context.Context, caller identity.Identity, entry Entry) error {
	raw, err := json.Marshal(entryRequest{
		WalletID:    entry.WalletID,
		Type:        entry.Type,
		Amount:      entry.Amount,
		Description: entry.Description,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	return r.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		identity.Forward(req, caller)

		resp, err := r.httpClient.Do(req)
		if err != nil {
			var netErr net.Error
			if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
				return failure.Wrap(failure.ErrTimeout, err, "record ledger entry")
			}
			return failure.Wrap(failure.ErrServiceUnavailable, err, "record ledger entry")
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusCreated:
			return nil
		case resp.StatusCode >= 500:
			return failure.New(failure.ErrServiceUnavailable, fmt.Sprintf("transaction log returned status %d", resp.StatusCode))
		default:
			return failure.New(failure.ErrInvalidRequest, fmt.Sprintf("transaction log returned status %d", resp.StatusCode))
		}
	})
}
