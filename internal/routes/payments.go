package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/walletflow/walletflow/internal/payments"
	"github.com/walletflow/walletflow/internal/reconcile"
	"github.com/walletflow/walletflow/internal/transfers"
)

// RegisterPaymentRoutes wires payment endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, limit fiber.Handler) {
	r.Post("/payments/pay", limit, h.Pay)
	r.Get("/payments", h.List)
	r.Get("/payments/:id", h.Get)
}

// RegisterTransferRoutes wires transfer endpoints under the payment API.
func RegisterTransferRoutes(r fiber.Router, h *transfers.Handler, limit fiber.Handler) {
	r.Post("/payments/transfer", limit, h.Transfer)
}

// RegisterReconcileRoutes wires the inconsistency queue.
func RegisterReconcileRoutes(r fiber.Router, h *reconcile.Handler) {
	r.Get("/reconciliation", h.List)
	r.Post("/reconciliation/:id/resolve", h.Resolve)
}
