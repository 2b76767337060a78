package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet-ledger/internal/ledger"
	"github.com/congo-pay/wallet-ledger/internal/transaction"
)

// View is the wallet as presented to its owner.
type View struct {
	UserID            string          `json:"user_id"`
	Balance           decimal.Decimal `json:"balance"`
	PendingHold       decimal.Decimal `json:"pending_hold"`
	Available         decimal.Decimal `json:"available"`
	Version           int64           `json:"version"`
	LastTransactionID string          `json:"last_transaction_id,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func newView(w ledger.Wallet) View {
	return View{
		UserID:            w.UserID,
		Balance:           w.Balance,
		PendingHold:       w.PendingHold,
		Available:         w.Available(),
		Version:           w.Version,
		LastTransactionID: w.LastTransactionID,
		UpdatedAt:         w.LastUpdated,
	}
}

// TransactionView is the JSON form of a transaction.
type TransactionView struct {
	ID                 string          `json:"id"`
	Kind               string          `json:"kind"`
	Status             string          `json:"status"`
	Amount             decimal.Decimal `json:"amount"`
	FeeAmount          decimal.Decimal `json:"fee_amount"`
	NetAmount          decimal.Decimal `json:"net_amount"`
	CounterpartyUserID string          `json:"counterparty_user_id,omitempty"`
	MethodRef          string          `json:"method_ref,omitempty"`
	Network            string          `json:"network,omitempty"`
	ProcessorRef       string          `json:"processor_ref,omitempty"`
	FailureReason      string          `json:"failure_reason,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	FailedAt           *time.Time      `json:"failed_at,omitempty"`
}

// NewTransactionView converts a transaction for an API response.
func NewTransactionView(tx transaction.Transaction) TransactionView {
	return TransactionView{
		ID:                 tx.ID,
		Kind:               string(tx.Kind),
		Status:             string(tx.Status),
		Amount:             tx.Amount,
		FeeAmount:          tx.FeeAmount,
		NetAmount:          tx.NetAmount,
		CounterpartyUserID: tx.CounterpartyUserID,
		MethodRef:          tx.ExternalMethodRef,
		Network:            string(tx.Network),
		ProcessorRef:       tx.ProcessorRef,
		FailureReason:      tx.FailureReason,
		CreatedAt:          tx.CreatedAt,
		CompletedAt:        tx.CompletedAt,
		FailedAt:           tx.FailedAt,
	}
}
