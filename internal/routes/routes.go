package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet-ledger/internal/auth"
	"github.com/congo-pay/wallet-ledger/internal/config"
	"github.com/congo-pay/wallet-ledger/internal/identity"
	"github.com/congo-pay/wallet-ledger/internal/middleware"
	"github.com/congo-pay/wallet-ledger/internal/savings"
	"github.com/congo-pay/wallet-ledger/internal/wallet"
	"github.com/congo-pay/wallet-ledger/internal/webhook"
)

// Deps aggregates the services routes are wired to.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	Identity *identity.Service
	Tokens   *auth.Service
	Wallet   *wallet.Service
	Savings  *savings.Engine
	Webhooks *webhook.Handler
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	RegisterWebhookRoutes(app, d.Webhooks)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterIdentityRoutes(api, d.Identity, d.Logger)
	RegisterAuthRoutes(api, auth.NewHandler(d.Identity, d.Tokens), d.Tokens, middleware.LoginRateLimit(d.Cache, 5))

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(d.Tokens))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	protected.Get("/me", func(c *fiber.Ctx) error {
		user, err := d.Identity.Get(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		}
		return c.JSON(fiber.Map{
			"user_id":    user.ID,
			"phone":      user.Phone,
			"created_at": user.CreatedAt,
			"last_login": user.LastLogin,
		})
	})
	RegisterWalletRoutes(protected, wallet.NewHandler(d.Wallet))
	RegisterSavingsRoutes(protected, d.Savings)

	return nil
}
