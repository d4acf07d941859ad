package wallet

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletflow/walletflow/internal/identity"
	"github.com/walletflow/walletflow/internal/ledger"
	"github.com/walletflow/walletflow/internal/logging"
	"github.com/walletflow/walletflow/internal/middleware"
)

const handlerSecret = "wallet-secret"

func newTestApp(t *testing.T, seed ...ledger.Wallet) *fiber.App {
	t.Helper()
	svc, _, _ := newService(seed...)
	h := NewHandler(svc)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logging.Discard())})
	api := app.Group("/api/v1", middleware.Authenticate(identity.NewVerifier(handlerSecret)))
	api.Get("/wallets", h.List)
	api.Post("/wallets", h.Create)
	api.Get("/wallets/by-owner/:ownerId", h.ByOwner)
	api.Get("/wallets/:id", h.Get)
	api.Get("/wallets/:id/balance", h.Balance)
	api.Post("/wallets/:id/topup", h.Topup)
	api.Post("/wallets/:id/debit", h.Debit)
	api.Post("/wallets/:id/credit", h.Credit)
	return app
}

func call(t *testing.T, app *fiber.App, ownerID int64, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	cred, err := identity.NewIssuer(handlerSecret, time.Hour).Issue(ownerID)
	require.NoError(t, err)
	req.Header.Set(fiber.HeaderAuthorization, cred.Header())

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestHandlerCreateAndList(t *testing.T) {
	app := newTestApp(t)

	status, body := call(t, app, 3, fiber.MethodPost, "/api/v1/wallets", `{"currency":"usd"}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	created := body["wallet"].(map[string]any)
	assert.EqualValues(t, 3, created["user_id"])
	assert.Equal(t, "USD", created["currency"])

	status, body = call(t, app, 3, fiber.MethodPost, "/api/v1/wallets", "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "duplicate_wallet", body["code"])

	status, body = call(t, app, 3, fiber.MethodGet, "/api/v1/wallets", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["wallets"], 1)
}

func TestHandlerDebitErrorsCarryCodes(t *testing.T) {
	app := newTestApp(t, ledger.Wallet{ID: 1, OwnerID: 3, Balance: 50})

	tests := []struct {
		owner  int64
		path   string
		body   string
		status int
		code   string
	}{
		{3, "/api/v1/wallets/1/debit", `{"amount":80}`, 400, "insufficient_balance"},
		{3, "/api/v1/wallets/1/debit", `{"amount":0}`, 400, "invalid_amount"},
		{4, "/api/v1/wallets/1/debit", `{"amount":10}`, 403, "unauthorized"},
		{3, "/api/v1/wallets/9/debit", `{"amount":10}`, 404, "not_found"},
		{3, "/api/v1/wallets/abc/debit", `{"amount":10}`, 400, "invalid_request"},
		{3, "/api/v1/wallets/1/debit", `{"amount":`, 400, "invalid_request"},
	}
	for _, tt := range tests {
		status, body := call(t, app, tt.owner, fiber.MethodPost, tt.path, tt.body)
		assert.Equal(t, tt.status, status, tt.path+" "+tt.body)
		assert.Equal(t, tt.code, body["code"], tt.path+" "+tt.body)
	}

	status, body := call(t, app, 3, fiber.MethodGet, "/api/v1/wallets/1/balance", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 50, body["balance"])
}

func TestHandlerDebitCreditTopup(t *testing.T) {
	app := newTestApp(t,
		ledger.Wallet{ID: 1, OwnerID: 3, Balance: 50},
		ledger.Wallet{ID: 2, OwnerID: 4},
	)

	status, body := call(t, app, 3, fiber.MethodPost, "/api/v1/wallets/1/debit", `{"amount":20}`)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 30, body["wallet"].(map[string]any)["balance"])

	// Credit is allowed on wallets of other owners.
	status, body = call(t, app, 3, fiber.MethodPost, "/api/v1/wallets/2/credit", `{"amount":20}`)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 20, body["wallet"].(map[string]any)["balance"])

	// Topup is not.
	status, body = call(t, app, 3, fiber.MethodPost, "/api/v1/wallets/2/topup", `{"amount":20}`)
	assert.Equal(t, fiber.StatusForbidden, status, body)

	status, body = call(t, app, 3, fiber.MethodPost, "/api/v1/wallets/1/topup", `{"amount":70}`)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "Topup successful", body["message"])
	assert.EqualValues(t, 100, body["balance"])
}

func TestHandlerByOwner(t *testing.T) {
	app := newTestApp(t,
		ledger.Wallet{ID: 1, OwnerID: 3},
		ledger.Wallet{ID: 2, OwnerID: 4},
		ledger.Wallet{ID: 3, OwnerID: 4},
	)

	status, body := call(t, app, 4, fiber.MethodGet, "/api/v1/wallets/by-owner/3", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["wallet"].(map[string]any)["id"])

	status, body = call(t, app, 3, fiber.MethodGet, "/api/v1/wallets/by-owner/4", "")
	assert.Equal(t, fiber.StatusNotFound, status, "an owner with two wallets is ambiguous")
	assert.Equal(t, "not_found", body["code"])

	status, _ = call(t, app, 3, fiber.MethodGet, "/api/v1/wallets/by-owner/5", "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestHandlerRequiresAuthentication(t *testing.T) {
	app := newTestApp(t)
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/wallets", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
