package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet-ledger/internal/identity"
)

// RegisterIdentityRoutes wires user registration.
func RegisterIdentityRoutes(r fiber.Router, ids *identity.Service, logger *slog.Logger) {
	r.Post("/identity/register", func(c *fiber.Ctx) error {
		var req struct {
			Phone string `json:"phone"`
			PIN   string `json:"pin"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		user, err := ids.Register(c.UserContext(), identity.Credentials{Phone: req.Phone, PIN: req.PIN})
		if errors.Is(err, identity.ErrUserExists) {
			return fiber.NewError(http.StatusConflict, err.Error())
		}
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		logger.Info("identity.register completed",
			slog.String("user_id", user.ID),
			slog.Int("status", http.StatusCreated),
		)
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"user_id": user.ID,
			"phone":   user.Phone,
		})
	})
}
