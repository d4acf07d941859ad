package payments

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/walletflow/walletflow/internal/failure"
	"github.com/walletflow/walletflow/internal/identity"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Pay charges a wallet for a merchant payment.
func (h *Handler) Pay(c *fiber.Ctx) error {
	caller, ok := identity.FromContext(c.UserContext())
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing identity")
	}
	var req PaymentIntent
	if err := c.BodyParser(&req); err != nil {
		return failure.Wrap(failure.ErrInvalidRequest, err, "decode body")
	}

	payment, err := h.service.Pay(c.UserContext(), caller, req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "Payment successful",
		"payment": payment,
	})
}

// List returns the caller's payments.
func (h *Handler) List(c *fiber.Ctx) error {
	caller, ok := identity.FromContext(c.UserContext())
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing identity")
	}
	payments, err := h.service.List(c.UserContext(), caller)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"payments": payments})
}

// Get returns one payment.
func (h *Handler) Get(c *fiber.Ctx) error {
	caller, ok := identity.FromContext(c.UserContext())
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing identity")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return failure.New(failure.ErrInvalidRequest, "invalid payment id")
	}
	payment, err := h.service.Get(c.UserContext(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"payment": payment})
}
