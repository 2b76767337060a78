// Package savings manages time-locked, interest-bearing sub-balances.
package savings

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status of a savings lock.
type Status string

const (
	StatusActive    Status = "active"
	StatusMatured   Status = "matured"
	StatusWithdrawn Status = "withdrawn"
)

var (
	// ErrLockNotFound is returned when no lock matches.
	ErrLockNotFound = errors.New("savings lock not found")
	// ErrAlreadyWithdrawn is returned by Repository.MarkWithdrawn when another
	// caller already withdrew the lock.
	ErrAlreadyWithdrawn = errors.New("savings lock already withdrawn")
	// ErrDuplicateLock is returned when a lock id is reused.
	ErrDuplicateLock = errors.New("savings lock already exists")
	// ErrFundingFailed is returned when the wallet debit backing a lock did
	// not land, or was refunded. The lock id cannot be reused.
	ErrFundingFailed = errors.New("savings lock funding failed")
)

// Tier maps a lock duration to its annual interest rate.
type Tier struct {
	DurationMonths int
	Rate           decimal.Decimal
}

// DefaultTiers is the rate card offered to customers.
var DefaultTiers = []Tier{
	{DurationMonths: 3, Rate: decimal.RequireFromString("0.015")},
	{DurationMonths: 6, Rate: decimal.RequireFromString("0.02")},
	{DurationMonths: 12, Rate: decimal.RequireFromString("0.03")},
	{DurationMonths: 24, Rate: decimal.RequireFromString("0.04")},
}

// Lock is a ring-fenced amount committed for DurationMonths.
type Lock struct {
	ID                         string
	UserID                     string
	LockedAmount               decimal.Decimal
	DurationMonths             int
	InterestRate               decimal.Decimal
	EarlyWithdrawalPenaltyRate decimal.Decimal
	FundingTransactionID       string
	PayoutTransactionID        string
	PayoutAmount               decimal.Decimal
	PenaltyAmount              decimal.Decimal
	Status                     Status
	LockedAt                   time.Time
	MaturesAt                  time.Time
	WithdrawnAt                *time.Time
}

// Matured reports whether the lock has reached its maturity date at now.
func (l Lock) Matured(now time.Time) bool {
	return !now.Before(l.MaturesAt)
}

// StatusAt reports the lock's status as seen at now. Active locks past their
// maturity date read as matured; nothing is persisted.
func (l Lock) StatusAt(now time.Time) Status {
	if l.Status == StatusActive && l.Matured(now) {
		return StatusMatured
	}
	return l.Status
}

// AccruedValue is the principal plus simple interest for the whole months
// elapsed by now, capped at the lock duration and rounded to cents.
func (l Lock) AccruedValue(now time.Time) decimal.Decimal {
	months := ElapsedMonths(l.LockedAt, now)
	if months > l.DurationMonths {
		months = l.DurationMonths
	}
	growth := l.InterestRate.Mul(decimal.NewFromInt(int64(months))).Div(decimal.NewFromInt(12))
	return l.LockedAmount.Mul(decimal.NewFromInt(1).Add(growth)).Round(2)
}

// ElapsedMonths counts whole calendar months from start to now.
func ElapsedMonths(start, now time.Time) int {
	if !now.After(start) {
		return 0
	}
	start, now = start.UTC(), now.UTC()
	months := (now.Year()-start.Year())*12 + int(now.Month()) - int(start.Month())
	if start.AddDate(0, months, 0).After(now) {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
