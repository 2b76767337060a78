package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet-ledger/internal/webhook"
)

// RegisterWebhookRoutes wires settlement network callbacks. They are
// authenticated by signature rather than bearer token.
func RegisterWebhookRoutes(app *fiber.App, h *webhook.Handler) {
	if h == nil {
		return
	}
	app.Post("/webhooks/:network", h.Receive)
}
