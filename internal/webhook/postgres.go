package webhook

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/wallet-ledger/internal/processor"
)

// PostgresRepository stores webhook events in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds an event log backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Record appends an event.
func (r *PostgresRepository) Record(ctx context.Context, e Event) error {
	var payload any
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}
	_, err := r.db.Exec(ctx, `INSERT INTO webhook_events (id, network, processor_ref, event_type, payload, disposition, received_at)
        VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)`,
		e.ID, string(e.Network), e.ProcessorRef, e.Type, payload, string(e.Disposition), e.ReceivedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// ListByProcessorRef returns the events received for a reference, oldest first.
func (r *PostgresRepository) ListByProcessorRef(ctx context.Context, ref string) ([]Event, error) {
	rows, err := r.db.Query(ctx, `SELECT id, network, processor_ref, event_type, COALESCE(payload::text, ''), disposition, received_at
        FROM webhook_events WHERE processor_ref = $1 ORDER BY received_at`, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var network, disposition, payload string
		if err := rows.Scan(&e.ID, &network, &e.ProcessorRef, &e.Type, &payload, &disposition, &e.ReceivedAt); err != nil {
			return nil, err
		}
		e.Network = processor.Network(network)
		e.Disposition = Disposition(disposition)
		if payload != "" {
			e.Payload = []byte(payload)
		}
		e.ReceivedAt = e.ReceivedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
