package savings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const lockColumns = `id, user_id, locked_amount, duration_months, interest_rate, early_withdrawal_penalty_rate,
    funding_transaction_id, COALESCE(payout_transaction_id, ''), payout_amount, penalty_amount, status,
    locked_at, matures_at, withdrawn_at`

// PostgresRepository stores savings locks in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a savings repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a lock.
func (r *PostgresRepository) Create(ctx context.Context, l Lock) error {
	_, err := r.db.Exec(ctx, `INSERT INTO savings_locks (id, user_id, locked_amount, duration_months, interest_rate,
            early_withdrawal_penalty_rate, funding_transaction_id, status, locked_at, matures_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.ID, l.UserID, l.LockedAmount, l.DurationMonths, l.InterestRate, l.EarlyWithdrawalPenaltyRate,
		l.FundingTransactionID, string(l.Status), l.LockedAt.UTC(), l.MaturesAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateLock
		}
		return fmt.Errorf("insert savings lock: %w", err)
	}
	return nil
}

// Get fetches a lock by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Lock, error) {
	return scanLock(r.db.QueryRow(ctx, `SELECT `+lockColumns+` FROM savings_locks WHERE id = $1`, id))
}

// List returns the user's locks, newest first.
func (r *PostgresRepository) List(ctx context.Context, userID string) ([]Lock, error) {
	rows, err := r.db.Query(ctx, `SELECT `+lockColumns+` FROM savings_locks WHERE user_id = $1 ORDER BY locked_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Lock
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// MarkWithdrawn flips an active lock to withdrawn.
func (r *PostgresRepository) MarkWithdrawn(ctx context.Context, l Lock) (Lock, error) {
	updated, err := scanLock(r.db.QueryRow(ctx, `UPDATE savings_locks
        SET status = 'withdrawn', payout_transaction_id = $2, payout_amount = $3, penalty_amount = $4, withdrawn_at = $5
        WHERE id = $1 AND status = 'active'
        RETURNING `+lockColumns, l.ID, l.PayoutTransactionID, l.PayoutAmount, l.PenaltyAmount, l.WithdrawnAt))
	if errors.Is(err, ErrLockNotFound) {
		current, getErr := r.Get(ctx, l.ID)
		if getErr != nil {
			return Lock{}, getErr
		}
		return current, ErrAlreadyWithdrawn
	}
	return updated, err
}

func scanLock(row pgx.Row) (Lock, error) {
	var l Lock
	var status string
	var payout, penalty decimal.NullDecimal
	err := row.Scan(&l.ID, &l.UserID, &l.LockedAmount, &l.DurationMonths, &l.InterestRate, &l.EarlyWithdrawalPenaltyRate,
		&l.FundingTransactionID, &l.PayoutTransactionID, &payout, &penalty, &status,
		&l.LockedAt, &l.MaturesAt, &l.WithdrawnAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lock{}, ErrLockNotFound
		}
		return Lock{}, err
	}
	l.Status = Status(status)
	if payout.Valid {
		l.PayoutAmount = payout.Decimal
	}
	if penalty.Valid {
		l.PenaltyAmount = penalty.Decimal
	}
	l.LockedAt = l.LockedAt.UTC()
	l.MaturesAt = l.MaturesAt.UTC()
	return l, nil
}
