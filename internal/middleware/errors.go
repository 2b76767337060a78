package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet-ledger/internal/hold"
	"github.com/congo-pay/wallet-ledger/internal/ledger"
	"github.com/congo-pay/wallet-ledger/internal/processor"
	"github.com/congo-pay/wallet-ledger/internal/savings"
	"github.com/congo-pay/wallet-ledger/internal/transaction"
)

// StatusFor maps a domain error to an HTTP status code.
func StatusFor(err error) int {
	var (
		fe   *fiber.Error
		ve   *transaction.ValidationError
		perr *processor.Error
	)
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.As(err, &ve), errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, transaction.ErrNotFound), errors.Is(err, savings.ErrLockNotFound), errors.Is(err, ledger.ErrWalletNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrConflict), errors.Is(err, transaction.ErrStaleStatus),
		errors.Is(err, savings.ErrAlreadyWithdrawn), errors.Is(err, savings.ErrDuplicateLock), errors.Is(err, savings.ErrFundingFailed):
		return http.StatusConflict
	case errors.Is(err, hold.ErrHoldExpired):
		return http.StatusGone
	case errors.As(err, &perr), errors.Is(err, processor.ErrUnknownNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders errors as {"error": message} with the mapped status.
// Internal errors are logged and their detail withheld.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := StatusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			requestID := RequestIDFrom(c)
			logger.Error("unhandled request error",
				slog.String("path", c.Path()),
				slog.String("request_id", requestID),
				slog.Any("error", err))
			msg = http.StatusText(status)
		}
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
}
