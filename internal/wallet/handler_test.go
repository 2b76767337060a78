package wallet

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet-ledger/internal/fee"
	"github.com/congo-pay/wallet-ledger/internal/hold"
	"github.com/congo-pay/wallet-ledger/internal/ledger"
	"github.com/congo-pay/wallet-ledger/internal/logging"
	"github.com/congo-pay/wallet-ledger/internal/middleware"
	"github.com/congo-pay/wallet-ledger/internal/processor"
	"github.com/congo-pay/wallet-ledger/internal/transaction"
)

func newTestApp(t *testing.T) (*fiber.App, ledger.Store) {
	t.Helper()
	logger := logging.Discard()
	store := ledger.NewInMemory()
	ledger.SeedBalance(store, "alice", decimal.RequireFromString("1000"))
	holds := hold.NewManager(hold.NewMemoryRepository(), store, time.Minute, logger)
	dispatcher, err := processor.NewDispatcher(processor.Config{
		Routing: processor.RoutingFixed,
		Default: processor.NetworkA,
	}, logger, processor.NewNetworkA(), processor.NewNetworkB())
	require.NoError(t, err)
	orch := transaction.NewOrchestrator(transaction.NewMemoryRepository(), store, holds, dispatcher, fee.Default(), logger)
	h := NewHandler(NewService(store, orch))

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logger)})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(middleware.UserIDKey, c.Get("X-Test-User"))
		return c.Next()
	})
	app.Get("/wallet", h.Get)
	app.Post("/wallet/withdraw", h.Withdraw)
	app.Post("/wallet/transfer", h.Transfer)
	app.Get("/transactions", h.ListTransactions)
	app.Get("/transactions/:id", h.GetTransaction)
	return app, store
}

func do(t *testing.T, app *fiber.App, method, path, user, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("X-Test-User", user)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestWithdrawCompletesAndUpdatesWallet(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := do(t, app, http.MethodPost, "/wallet/withdraw", "alice", `{"id":"w-1","amount":"100","method_ref":"msisdn:242060000001"}`)
	require.Equal(t, http.StatusOK, status, body)
	tx := body["transaction"].(map[string]any)
	assert.Equal(t, "completed", tx["status"])
	assert.Equal(t, "2.5", tx["fee_amount"])

	status, body = do(t, app, http.MethodGet, "/wallet", "alice", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "897.5", body["balance"])
	assert.Equal(t, "897.5", body["available"])
}

func TestFailedWithdrawalReturnsRecordedTransaction(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := do(t, app, http.MethodPost, "/wallet/withdraw", "alice", `{"id":"w-big","amount":"5000","method_ref":"msisdn:242060000001"}`)
	require.Equal(t, http.StatusPaymentRequired, status, body)
	tx := body["transaction"].(map[string]any)
	assert.Equal(t, "failed", tx["status"])
	assert.Equal(t, transaction.ReasonInsufficientFunds, tx["failure_reason"])
}

func TestTransferValidationIsBadRequest(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := do(t, app, http.MethodPost, "/wallet/transfer", "alice", `{"id":"t-1","to_user_id":"alice","amount":"10"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "to_user_id")
}

func TestTransactionsAreScopedToOwner(t *testing.T) {
	app, _ := newTestApp(t)

	status, _ := do(t, app, http.MethodPost, "/wallet/transfer", "alice", `{"id":"t-2","to_user_id":"bob","amount":"100"}`)
	require.Equal(t, http.StatusOK, status)

	status, body := do(t, app, http.MethodGet, "/transactions/t-2", "alice", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "transfer", body["kind"])

	status, _ = do(t, app, http.MethodGet, "/transactions/t-2", "bob", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = do(t, app, http.MethodGet, "/transactions?limit=5", "alice", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["transactions"], 1)
}
