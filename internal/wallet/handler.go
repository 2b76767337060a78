package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet-ledger/internal/middleware"
	"github.com/congo-pay/wallet-ledger/internal/transaction"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type depositRequest struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	MethodRef string          `json:"method_ref"`
}

type transferRequest struct {
	ID       string          `json:"id"`
	ToUserID string          `json:"to_user_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type transactionResponse struct {
	Transaction TransactionView `json:"transaction"`
	Error       string          `json:"error,omitempty"`
}

// Get returns the caller's wallet.
func (h *Handler) Get(c *fiber.Ctx) error {
	view, err := h.service.Wallet(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(view)
}

// Deposit credits the caller's wallet from an external method.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	tx, err := h.service.Deposit(c.UserContext(), transaction.DepositInput{
		ID:        req.ID,
		UserID:    middleware.UserID(c),
		Amount:    req.Amount,
		MethodRef: req.MethodRef,
	})
	return respond(c, tx, err)
}

// Withdraw pays out of the caller's wallet to an external method.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	tx, err := h.service.Withdraw(c.UserContext(), transaction.WithdrawInput{
		ID:        req.ID,
		UserID:    middleware.UserID(c),
		Amount:    req.Amount,
		MethodRef: req.MethodRef,
	})
	return respond(c, tx, err)
}

// Transfer moves funds from the caller to another wallet.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	tx, err := h.service.Transfer(c.UserContext(), transaction.TransferInput{
		ID:       req.ID,
		UserID:   middleware.UserID(c),
		ToUserID: req.ToUserID,
		Amount:   req.Amount,
	})
	return respond(c, tx, err)
}

// ListTransactions returns the caller's recent transactions.
func (h *Handler) ListTransactions(c *fiber.Ctx) error {
	txs, err := h.service.Transactions(c.UserContext(), middleware.UserID(c), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	out := make([]TransactionView, 0, len(txs))
	for _, tx := range txs {
		out = append(out, NewTransactionView(tx))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out})
}

// GetTransaction returns one of the caller's transactions.
func (h *Handler) GetTransaction(c *fiber.Ctx) error {
	tx, err := h.service.Transaction(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(NewTransactionView(tx))
}

// respond writes the transaction record whenever one was created, even when
// the operation failed, so clients can see the recorded failure reason.
func respond(c *fiber.Ctx, tx transaction.Transaction, err error) error {
	if tx.ID == "" {
		if err == nil {
			return fiber.NewError(http.StatusInternalServerError, "no transaction recorded")
		}
		return err
	}
	body := transactionResponse{Transaction: NewTransactionView(tx)}
	if err != nil {
		body.Error = err.Error()
		return c.Status(middleware.StatusFor(err)).JSON(body)
	}
	status := http.StatusOK
	if !tx.Status.Terminal() {
		status = http.StatusAccepted
	}
	return c.Status(status).JSON(body)
}
