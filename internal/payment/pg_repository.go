package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saifyeddes/GestionClinic-sub000/internal/appointment"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const intentColumns = `id, appointment_id, amount_minor_units, currency, payer_email, status,
	redirect_url, created_at, reconciled_at`

func scanIntent(row pgx.Row) (*PaymentIntent, error) {
	var (
		in     PaymentIntent
		status string
	)

	err := row.Scan(
		&in.ID,
		&in.AppointmentID,
		&in.AmountMinorUnits,
		&in.Currency,
		&in.PayerEmail,
		&status,
		&in.RedirectURL,
		&in.CreatedAt,
		&in.ReconciledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}

	in.Status = IntentStatus(status)
	return &in, nil
}

func (r *PgRepository) CreateIntent(ctx context.Context, in PaymentIntent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payment_intents (id, appointment_id, amount_minor_units, currency, payer_email,
			status, redirect_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`, in.ID, in.AppointmentID, in.AmountMinorUnits, in.Currency, in.PayerEmail, string(in.Status), in.RedirectURL)
	if err != nil {
		return fmt.Errorf("insert payment intent: %w", err)
	}
	return nil
}

func (r *PgRepository) GetIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+intentColumns+`
		FROM payment_intents
		WHERE id = $1
	`, id)
	return scanIntent(row)
}

func (r *PgRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]PaymentIntent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+intentColumns+`
		FROM payment_intents
		WHERE status = 'PENDING'
		  AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []PaymentIntent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *in)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) MarkExpired(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_intents
		SET status = 'EXPIRED'
		WHERE id = $1
		  AND status = 'PENDING'
	`, id)
	if err != nil {
		return fmt.Errorf("expire payment intent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrNotPending(ctx, r.pool, id)
	}
	return nil
}

func (r *PgRepository) Settle(ctx context.Context, intentID string, appt appointment.Appointment, patch *appointment.Patch) (*appointment.Appointment, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin settle tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE payment_intents
		SET status = 'RECONCILED',
		    reconciled_at = now()
		WHERE id = $1
		  AND status <> 'RECONCILED'
	`, intentID)
	if err != nil {
		return nil, fmt.Errorf("claim payment intent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, r.missOrNotPending(ctx, tx, intentID)
	}

	var updated *appointment.Appointment
	if patch != nil {
		updated, err = appointment.ConditionalUpdateTx(ctx, tx, appt.ID, appt.Status, appt.PaymentStatus, *patch)
	} else {
		updated, err = appointment.GetAppointmentTx(ctx, tx, appt.ID)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit settle tx: %w", err)
	}
	return updated, nil
}

func (r *PgRepository) missOrNotPending(ctx context.Context, q appointment.Querier, id string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payment_intents WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check payment intent exists: %w", err)
	}
	if !exists {
		return ErrIntentNotFound
	}
	return ErrIntentNotPending
}
