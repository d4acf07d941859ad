package transfers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/walletflow/walletflow/internal/failure"
	"github.com/walletflow/walletflow/internal/identity"
)

// Handler exposes the transfer endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs a transfer handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Transfer moves funds to another owner's wallet.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	caller, ok := identity.FromContext(c.UserContext())
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing identity")
	}
	var req TransferIntent
	if err := c.BodyParser(&req); err != nil {
		return failure.Wrap(failure.ErrInvalidRequest, err, "decode body")
	}

	res, err := h.service.Transfer(c.UserContext(), caller, req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message":        "Transfer successful",
		"id":             res.ID,
		"from_wallet_id": res.SourceWalletID,
		"to_wallet_id":   res.DestinationWalletID,
		"amount":         res.Amount,
		"completed_at":   res.CompletedAt,
	})
}
