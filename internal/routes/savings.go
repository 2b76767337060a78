package routes

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet-ledger/internal/middleware"
	"github.com/congo-pay/wallet-ledger/internal/savings"
)

type lockResponse struct {
	ID                         string          `json:"id"`
	LockedAmount               decimal.Decimal `json:"locked_amount"`
	DurationMonths             int             `json:"duration_months"`
	InterestRate               decimal.Decimal `json:"interest_rate"`
	EarlyWithdrawalPenaltyRate decimal.Decimal `json:"early_withdrawal_penalty_rate"`
	Status                     string          `json:"status"`
	LockedAt                   time.Time       `json:"locked_at"`
	MaturesAt                  time.Time       `json:"matures_at"`
	PayoutAmount               decimal.Decimal `json:"payout_amount"`
	PenaltyAmount              decimal.Decimal `json:"penalty_amount"`
	WithdrawnAt                *time.Time      `json:"withdrawn_at,omitempty"`
}

func newLockResponse(l savings.Lock) lockResponse {
	return lockResponse{
		ID:                         l.ID,
		LockedAmount:               l.LockedAmount,
		DurationMonths:             l.DurationMonths,
		InterestRate:               l.InterestRate,
		EarlyWithdrawalPenaltyRate: l.EarlyWithdrawalPenaltyRate,
		Status:                     string(l.Status),
		LockedAt:                   l.LockedAt,
		MaturesAt:                  l.MaturesAt,
		PayoutAmount:               l.PayoutAmount,
		PenaltyAmount:              l.PenaltyAmount,
		WithdrawnAt:                l.WithdrawnAt,
	}
}

// RegisterSavingsRoutes wires savings lock endpoints.
func RegisterSavingsRoutes(r fiber.Router, engine *savings.Engine) {
	group := r.Group("/savings/locks")

	group.Post("/", func(c *fiber.Ctx) error {
		var req struct {
			ID             string          `json:"id"`
			Amount         decimal.Decimal `json:"amount"`
			DurationMonths int             `json:"duration_months"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		l, err := engine.CreateLock(c.UserContext(), savings.CreateLockInput{
			ID:             req.ID,
			UserID:         middleware.UserID(c),
			Amount:         req.Amount,
			DurationMonths: req.DurationMonths,
		})
		if err != nil {
			return err
		}
		return c.Status(http.StatusCreated).JSON(newLockResponse(l))
	})

	group.Get("/", func(c *fiber.Ctx) error {
		locks, err := engine.List(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return err
		}
		out := make([]lockResponse, 0, len(locks))
		for _, l := range locks {
			out = append(out, newLockResponse(l))
		}
		return c.JSON(fiber.Map{"locks": out})
	})

	group.Get("/:lockId/quote", func(c *fiber.Ctx) error {
		q, err := engine.Quote(c.UserContext(), middleware.UserID(c), c.Params("lockId"))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"lock_id":       q.LockID,
			"as_of":         q.AsOf,
			"early":         q.Early,
			"accrued_value": q.AccruedValue,
			"penalty":       q.Penalty,
			"payout":        q.Payout,
		})
	})

	group.Post("/:lockId/withdraw", func(c *fiber.Ctx) error {
		l, err := engine.Withdraw(c.UserContext(), middleware.UserID(c), c.Params("lockId"))
		if err != nil {
			return err
		}
		return c.JSON(newLockResponse(l))
	})
}
