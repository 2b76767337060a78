package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet-ledger/internal/wallet"
)

// RegisterWalletRoutes wires wallet and transaction endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallet", h.Get)
	r.Post("/wallet/deposit", h.Deposit)
	r.Post("/wallet/withdraw", h.Withdraw)
	r.Post("/wallet/transfer", h.Transfer)
	r.Get("/transactions", h.ListTransactions)
	r.Get("/transactions/:id", h.GetTransaction)
}
