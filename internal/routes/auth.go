package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet-ledger/internal/auth"
	"github.com/congo-pay/wallet-ledger/internal/middleware"
)

// RegisterAuthRoutes wires login behind the optional rate limiter and logout
// behind its own token check. Register these before any group-level
// middleware on the same prefix.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, tokens middleware.TokenVerifier, rateLimiter fiber.Handler) {
	login := []fiber.Handler{h.Login}
	if rateLimiter != nil {
		login = append([]fiber.Handler{rateLimiter}, login...)
	}
	r.Post("/auth/login", login...)
	r.Post("/auth/logout", middleware.JWTAuth(tokens), h.Logout)
}
