package wallet

import (
	"context"

	"github.com/congo-pay/wallet-ledger/internal/ledger"
	"github.com/congo-pay/wallet-ledger/internal/transaction"
)

// Transactions is the subset of the orchestrator the wallet API drives.
type Transactions interface {
	Deposit(ctx context.Context, in transaction.DepositInput) (transaction.Transaction, error)
	Withdraw(ctx context.Context, in transaction.WithdrawInput) (transaction.Transaction, error)
	Transfer(ctx context.Context, in transaction.TransferInput) (transaction.Transaction, error)
	Get(ctx context.Context, id string) (transaction.Transaction, error)
	List(ctx context.Context, userID string, limit int) ([]transaction.Transaction, error)
}

// Service exposes wallet reads and user-initiated operations.
type Service struct {
	store ledger.Store
	txs   Transactions
}

// NewService builds a wallet service instance.
func NewService(store ledger.Store, txs Transactions) *Service {
	return &Service{store: store, txs: txs}
}

// Wallet returns the user's wallet, provisioning it on first access.
func (s *Service) Wallet(ctx context.Context, userID string) (View, error) {
	w, err := s.store.GetWallet(ctx, userID)
	if err != nil {
		return View{}, err
	}
	return newView(w), nil
}

// Transaction returns one of the user's transactions. Transactions owned by
// someone else are reported as not found.
func (s *Service) Transaction(ctx context.Context, userID, id string) (transaction.Transaction, error) {
	tx, err := s.txs.Get(ctx, id)
	if err != nil {
		return transaction.Transaction{}, err
	}
	if tx.UserID != userID {
		return transaction.Transaction{}, transaction.ErrNotFound
	}
	return tx, nil
}

// Transactions lists the user's most recent transactions.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]transaction.Transaction, error) {
	return s.txs.List(ctx, userID, limit)
}

// Deposit starts an inbound settlement into the user's wallet.
func (s *Service) Deposit(ctx context.Context, in transaction.DepositInput) (transaction.Transaction, error) {
	return s.txs.Deposit(ctx, in)
}

// Withdraw starts an outbound settlement from the user's wallet.
func (s *Service) Withdraw(ctx context.Context, in transaction.WithdrawInput) (transaction.Transaction, error) {
	return s.txs.Withdraw(ctx, in)
}

// Transfer moves funds to another user's wallet.
func (s *Service) Transfer(ctx context.Context, in transaction.TransferInput) (transaction.Transaction, error) {
	return s.txs.Transfer(ctx, in)
}
