// Package fee computes operation fees. It is pure: no I/O and no clock, so
// callers can quote a fee before reserving any funds.
package fee

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind identifies the operation a fee is computed for.
type Kind string

const (
	KindDeposit         Kind = "deposit"
	KindWithdrawal      Kind = "withdrawal"
	KindTransfer        Kind = "transfer"
	KindEarlyWithdrawal Kind = "early_savings_withdrawal"
)

var (
	// DefaultWithdrawalFee is the flat fee charged on every external withdrawal.
	DefaultWithdrawalFee = decimal.RequireFromString("2.50")
	// DefaultTransferRate is the share of the principal charged on transfers.
	DefaultTransferRate = decimal.RequireFromString("0.02")
	// DefaultEarlyWithdrawalRate is the share of the locked principal charged
	// when a savings lock is broken before maturity.
	DefaultEarlyWithdrawalRate = decimal.RequireFromString("0.05")
)

// Policy holds the fee parameters. The zero value charges nothing; use
// Default for the production schedule.
type Policy struct {
	WithdrawalFlat      decimal.Decimal
	TransferRate        decimal.Decimal
	EarlyWithdrawalRate decimal.Decimal
}

// Default returns the standard fee schedule.
func Default() Policy {
	return Policy{
		WithdrawalFlat:      DefaultWithdrawalFee,
		TransferRate:        DefaultTransferRate,
		EarlyWithdrawalRate: DefaultEarlyWithdrawalRate,
	}
}

// WithWithdrawalFee returns a copy of the policy with a different flat fee.
func (p Policy) WithWithdrawalFee(flat decimal.Decimal) Policy {
	p.WithdrawalFlat = flat
	return p
}

// Compute returns the fee for an operation of the given kind on amount. For
// KindEarlyWithdrawal, amount is the originally locked principal. Results are
// rounded to cents.
func (p Policy) Compute(kind Kind, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("fee: negative amount %s", amount)
	}
	switch kind {
	case KindDeposit:
		return decimal.Zero, nil
	case KindWithdrawal:
		return p.WithdrawalFlat.Round(2), nil
	case KindTransfer:
		return amount.Mul(p.TransferRate).Round(2), nil
	case KindEarlyWithdrawal:
		return amount.Mul(p.EarlyWithdrawalRate).Round(2), nil
	default:
		return decimal.Zero, fmt.Errorf("fee: unknown kind %q", kind)
	}
}
