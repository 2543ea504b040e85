package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const appointmentColumns = `id, doctor_id, patient_id, created_by_id, status, payment_status,
	scheduled_at, duration_minutes, notes, created_at, updated_at`

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a             Appointment
		status        string
		paymentStatus string
	)

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.CreatedByID,
		&status,
		&paymentStatus,
		&a.ScheduledAt,
		&a.DurationMinutes,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = Status(status)
	a.PaymentStatus = PaymentStatus(paymentStatus)
	return &a, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return GetAppointmentTx(ctx, r.pool, id)
}

// GetAppointmentTx reads an appointment through q, so callers holding a
// transaction see their own writes.
func GetAppointmentTx(ctx context.Context, q Querier, id uuid.UUID) (*Appointment, error) {
	row := q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, created_by_id, status, payment_status,
			scheduled_at, duration_minutes, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.DoctorID, a.PatientID, a.CreatedByID, string(a.Status), string(a.PaymentStatus),
		a.ScheduledAt, a.DurationMinutes, a.Notes)

	return scanAppointment(row)
}

func (r *PgRepository) ConditionalUpdate(ctx context.Context, id uuid.UUID, expected Status, expectedPayment PaymentStatus, patch Patch) (*Appointment, error) {
	return ConditionalUpdateTx(ctx, r.pool, id, expected, expectedPayment, patch)
}

// ConditionalUpdateTx is the single write path for status and payment status.
// The WHERE clause carries the values the caller read; zero rows means either the
// appointment is gone or someone else changed it first.
func ConditionalUpdateTx(ctx context.Context, q Querier, id uuid.UUID, expected Status, expectedPayment PaymentStatus, patch Patch) (*Appointment, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("%w: empty patch", ErrInvalidInput)
	}

	row := q.QueryRow(ctx, `
		UPDATE appointments
		SET status = COALESCE($4, status),
		    payment_status = COALESCE($5, payment_status),
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		  AND payment_status = $3
		RETURNING `+appointmentColumns,
		id, string(expected), string(expectedPayment), statusArg(patch.Status), paymentArg(patch.PaymentStatus))

	updated, err := scanAppointment(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("conditional update: %w", err)
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check appointment exists: %w", err)
	}
	if !exists {
		return nil, ErrAppointmentNotFound
	}
	return nil, ErrConflict
}

func statusArg(s *Status) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func paymentArg(s *PaymentStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.From != nil {
		add("scheduled_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("scheduled_at < $%d", *f.To)
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY scheduled_at ASC, id ASC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// CreatePatient and CreateDoctor exist for seeding; the clinic CRUD that owns
// these tables lives outside this service.
func (r *PgRepository) CreatePatient(ctx context.Context, p Patient) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
	`, p.ID, p.Name, p.Email)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *PgRepository) CreateDoctor(ctx context.Context, d Doctor) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO doctors (id, name, specialty, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
	`, d.ID, d.Name, d.Specialty)
	if err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}
