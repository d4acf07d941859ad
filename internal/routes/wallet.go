package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/walletflow/walletflow/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints. limit guards topups,
// the only route that brings new funds in.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, limit fiber.Handler) {
	r.Get("/wallets", h.List)
	r.Post("/wallets", h.Create)
	r.Get("/wallets/by-owner/:ownerId", h.ByOwner)
	r.Get("/wallets/:id", h.Get)
	r.Get("/wallets/:id/balance", h.Balance)
	r.Post("/wallets/:id/topup", limit, h.Topup)
	r.Post("/wallets/:id/debit", h.Debit)
	r.Post("/wallets/:id/credit", h.Credit)
}
