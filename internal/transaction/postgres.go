package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/wallet-ledger/internal/processor"
)

const txColumns = `id, user_id, kind, amount, fee_amount, net_amount, status,
    COALESCE(counterparty_user_id, ''), COALESCE(external_method_ref, ''), COALESCE(network, ''),
    COALESCE(hold_id, ''), COALESCE(processor_ref, ''), internal, COALESCE(failure_reason, ''),
    created_at, updated_at, completed_at, failed_at`

// PostgresRepository stores transactions in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a transaction repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the transaction unless its id is already taken.
func (r *PostgresRepository) Create(ctx context.Context, tx Transaction) (Transaction, bool, error) {
	tag, err := r.db.Exec(ctx, `INSERT INTO transactions (id, user_id, kind, amount, fee_amount, net_amount, status,
            counterparty_user_id, external_method_ref, network, hold_id, processor_ref, internal, failure_reason,
            created_at, updated_at, completed_at, failed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''),
            NULLIF($12, ''), $13, NULLIF($14, ''), $15, $16, $17, $18)
        ON CONFLICT (id) DO NOTHING`,
		tx.ID, tx.UserID, string(tx.Kind), tx.Amount, tx.FeeAmount, tx.NetAmount, string(tx.Status),
		tx.CounterpartyUserID, tx.ExternalMethodRef, string(tx.Network), tx.HoldID, tx.ProcessorRef, tx.Internal,
		tx.FailureReason, tx.CreatedAt.UTC(), tx.UpdatedAt.UTC(), tx.CompletedAt, tx.FailedAt)
	if err != nil {
		return Transaction{}, false, fmt.Errorf("insert transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := r.Get(ctx, tx.ID)
		return existing, false, err
	}
	return tx, true, nil
}

// Get fetches a transaction by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, id))
}

// GetByProcessorRef fetches the transaction a network reference belongs to.
func (r *PostgresRepository) GetByProcessorRef(ctx context.Context, ref string) (Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE processor_ref = $1`, ref))
}

// Update writes the mutable fields when the stored status still equals from.
func (r *PostgresRepository) Update(ctx context.Context, tx Transaction, from Status) (Transaction, error) {
	updated, err := scanTransaction(r.db.QueryRow(ctx, `UPDATE transactions
        SET status = $3, fee_amount = $4, net_amount = $5, network = NULLIF($6, ''), hold_id = NULLIF($7, ''),
            processor_ref = NULLIF($8, ''), failure_reason = NULLIF($9, ''), updated_at = $10,
            completed_at = $11, failed_at = $12
        WHERE id = $1 AND status = $2
        RETURNING `+txColumns,
		tx.ID, string(from), string(tx.Status), tx.FeeAmount, tx.NetAmount, string(tx.Network), tx.HoldID,
		tx.ProcessorRef, tx.FailureReason, tx.UpdatedAt.UTC(), tx.CompletedAt, tx.FailedAt))
	if errors.Is(err, ErrNotFound) {
		current, getErr := r.Get(ctx, tx.ID)
		if getErr != nil {
			return Transaction{}, getErr
		}
		return current, ErrStaleStatus
	}
	return updated, err
}

// List returns the user's transactions newest first.
func (r *PostgresRepository) List(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+txColumns+` FROM transactions
        WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// ListProcessing returns stale processing transactions, oldest first.
func (r *PostgresRepository) ListProcessing(ctx context.Context, olderThan time.Time, limit int) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+txColumns+` FROM transactions
        WHERE status = 'processing' AND updated_at < $1 ORDER BY updated_at LIMIT $2`, olderThan.UTC(), limit)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var tx Transaction
	var kind, status, network string
	err := row.Scan(&tx.ID, &tx.UserID, &kind, &tx.Amount, &tx.FeeAmount, &tx.NetAmount, &status,
		&tx.CounterpartyUserID, &tx.ExternalMethodRef, &network, &tx.HoldID, &tx.ProcessorRef, &tx.Internal,
		&tx.FailureReason, &tx.CreatedAt, &tx.UpdatedAt, &tx.CompletedAt, &tx.FailedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	tx.Kind = Kind(kind)
	tx.Status = Status(status)
	tx.Network = processor.Network(network)
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.UpdatedAt = tx.UpdatedAt.UTC()
	return tx, nil
}
