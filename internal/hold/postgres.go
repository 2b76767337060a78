package hold

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const holdColumns = `id, user_id, transaction_id, amount, kind, status, created_at, expires_at, closed_at`

// PostgresRepository stores holds in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a hold repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a hold record.
func (r *PostgresRepository) Create(ctx context.Context, h Hold) error {
	_, err := r.db.Exec(ctx, `INSERT INTO holds (`+holdColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		h.ID, h.UserID, h.TransactionID, h.Amount, h.Kind, string(h.Status), h.CreatedAt.UTC(), h.ExpiresAt.UTC(), h.ClosedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateHold
		}
		return fmt.Errorf("insert hold: %w", err)
	}
	return nil
}

// Get fetches a hold by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Hold, error) {
	return scanHold(r.db.QueryRow(ctx, `SELECT `+holdColumns+` FROM holds WHERE id = $1`, id))
}

// GetByTransaction fetches the hold owned by a transaction.
func (r *PostgresRepository) GetByTransaction(ctx context.Context, transactionID string) (Hold, error) {
	return scanHold(r.db.QueryRow(ctx, `SELECT `+holdColumns+` FROM holds WHERE transaction_id = $1`, transactionID))
}

// Close transitions an active hold. The status predicate makes the transition
// a compare-and-swap: only one closer wins.
func (r *PostgresRepository) Close(ctx context.Context, id string, to Status, at time.Time) (Hold, error) {
	h, err := scanHold(r.db.QueryRow(ctx, `UPDATE holds SET status = $2, closed_at = $3
        WHERE id = $1 AND status = 'active' RETURNING `+holdColumns, id, string(to), at.UTC()))
	if errors.Is(err, ErrHoldNotFound) {
		current, getErr := r.Get(ctx, id)
		if getErr != nil {
			return Hold{}, getErr
		}
		return current, ErrNotActive
	}
	return h, err
}

// ListExpired returns active holds whose expiry has passed, oldest first.
func (r *PostgresRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]Hold, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT `+holdColumns+` FROM holds
        WHERE status = 'active' AND expires_at <= $1 ORDER BY expires_at LIMIT $2`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	return collectHolds(rows)
}

// ListActive returns the user's active holds.
func (r *PostgresRepository) ListActive(ctx context.Context, userID string) ([]Hold, error) {
	rows, err := r.db.Query(ctx, `SELECT `+holdColumns+` FROM holds
        WHERE user_id = $1 AND status = 'active' ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	return collectHolds(rows)
}

func collectHolds(rows pgx.Rows) ([]Hold, error) {
	defer rows.Close()
	var out []Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHold(row pgx.Row) (Hold, error) {
	var h Hold
	var status string
	if err := row.Scan(&h.ID, &h.UserID, &h.TransactionID, &h.Amount, &h.Kind, &status, &h.CreatedAt, &h.ExpiresAt, &h.ClosedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Hold{}, ErrHoldNotFound
		}
		return Hold{}, err
	}
	h.Status = Status(status)
	h.CreatedAt = h.CreatedAt.UTC()
	h.ExpiresAt = h.ExpiresAt.UTC()
	return h, nil
}
