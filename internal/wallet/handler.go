package wallet

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/walletflow/walletflow/internal/failure"
	"github.com/walletflow/walletflow/internal/identity"
	"github.com/walletflow/walletflow/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Currency string `json:"currency"`
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

func caller(c *fiber.Ctx) (identity.Identity, error) {
	id, ok := identity.FromContext(c.UserContext())
	if !ok {
		return identity.Identity{}, fiber.NewError(http.StatusUnauthorized, "missing identity")
	}
	return id, nil
}

func int64Param(c *fiber.Ctx, name string) (int64, error) {
	v, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || v <= 0 {
		return 0, failure.New(failure.ErrInvalidRequest, "invalid "+name)
	}
	return v, nil
}

func parseAmount(c *fiber.Ctx) (int64, error) {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return 0, failure.Wrap(failure.ErrInvalidRequest, err, "decode body")
	}
	return req.Amount, nil
}

// List returns the caller's wallets.
func (h *Handler) List(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	wallets, err := h.service.List(c.UserContext(), who)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"wallets": wallets})
}

// Create opens a wallet for the authenticated owner.
func (h *Handler) Create(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	var req createRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return failure.Wrap(failure.ErrInvalidRequest, err, "decode body")
		}
	}
	w, err := h.service.Create(c.UserContext(), who, req.Currency)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"wallet": w})
}

// Get returns one wallet.
func (h *Handler) Get(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := int64Param(c, "id")
	if err != nil {
		return err
	}
	w, err := h.service.Get(c.UserContext(), who, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"wallet": w})
}

// Balance returns the wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := int64Param(c, "id")
	if err != nil {
		return err
	}
	balance, err := h.service.Balance(c.UserContext(), who, id)
	if err != nil {
		return err
	}
	return c.JSON(balance)
}

// ByOwner resolves the wallet of another owner, used to address transfers.
func (h *Handler) ByOwner(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	ownerID, err := int64Param(c, "ownerId")
	if err != nil {
		return err
	}
	w, err := h.service.ByOwner(c.UserContext(), who, ownerID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"wallet": w})
}

// Debit removes funds from a wallet the caller owns.
func (h *Handler) Debit(c *fiber.Ctx) error {
	return h.move(c, h.service.Debit)
}

// Credit adds funds to a wallet.
func (h *Handler) Credit(c *fiber.Ctx) error {
	return h.move(c, h.service.Credit)
}

// Topup adds funds to a wallet the caller owns.
func (h *Handler) Topup(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := int64Param(c, "id")
	if err != nil {
		return err
	}
	amount, err := parseAmount(c)
	if err != nil {
		return err
	}
	w, err := h.service.Topup(c.UserContext(), who, id, amount)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Topup successful",
		"balance": w.Balance,
		"wallet":  w,
	})
}

type movement func(ctx context.Context, caller identity.Identity, id, amount int64) (ledger.Wallet, error)

func (h *Handler) move(c *fiber.Ctx, op movement) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := int64Param(c, "id")
	if err != nil {
		return err
	}
	amount, err := parseAmount(c)
	if err != nil {
		return err
	}
	w, err := op(c.UserContext(), who, id, amount)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"wallet": w})
}
