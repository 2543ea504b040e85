package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgAccountStore struct {
	pool *pgxpool.Pool
}

func NewPgAccountStore(pool *pgxpool.Pool) *PgAccountStore {
	return &PgAccountStore{pool: pool}
}

func (s *PgAccountStore) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	var (
		a    Account
		role string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, role, patient_id, doctor_id, active
		FROM accounts
		WHERE id = $1
	`, id).Scan(&a.ID, &a.Email, &role, &a.PatientID, &a.DoctorID, &a.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	a.Role, err = ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", id, err)
	}
	return &a, nil
}

// CreateAccount inserts an account row. Used by seeding and the admin CLI.
func (s *PgAccountStore) CreateAccount(ctx context.Context, a Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, email, role, patient_id, doctor_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
	`, a.ID, a.Email, string(a.Role), a.PatientID, a.DoctorID, a.Active)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}
