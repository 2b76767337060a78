package ledger

import "github.com/shopspring/decimal"

// SeedBalance is a test helper that overwrites the balance of a wallet held by
// the in-memory store. It does not bump the version.
func SeedBalance(s Store, userID string, amount decimal.Decimal) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		w := mem.walletLocked(userID)
		w.Balance = amount
		mem.wallets[userID] = w
	}
}
