package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/saifyeddes/GestionClinic-sub000/internal/auth"
	"github.com/saifyeddes/GestionClinic-sub000/internal/config"
	"github.com/saifyeddes/GestionClinic-sub000/internal/db"
	"github.com/saifyeddes/GestionClinic-sub000/internal/logging"
)

const batchSize = 500

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

// SeedConfig sizes the generated data set from SEED_* variables.
type SeedConfig struct {
	Doctors  int `envconfig:"DOCTORS" default:"50"`
	Patients int `envconfig:"PATIENTS" default:"5000"`
}

func loadSeedConfig() (SeedConfig, error) {
	var sc SeedConfig
	if err := envconfig.Process("SEED", &sc); err != nil {
		return SeedConfig{}, fmt.Errorf("process SEED env: %w", err)
	}
	if sc.Doctors < 0 || sc.Patients < 0 {
		return SeedConfig{}, fmt.Errorf("SEED_DOCTORS and SEED_PATIENTS must be >= 0")
	}
	return sc, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel, "seed")

	sc, err := loadSeedConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid seed config")
	}
	logger.Info().Int("doctors", sc.Doctors).Int("patients", sc.Patients).Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, logger)
	if err == nil {
		err = db.Migrate(ctx, pool)
	}
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres setup error")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	ctx = context.Background()
	if err := seedStaff(ctx, pool, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed staff")
	}
	if err := seedDoctors(ctx, pool, sc.Doctors, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(ctx, pool, sc.Patients, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

// seedStaff creates one admin and one receptionist. Re-running keeps the
// existing rows.
func seedStaff(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
	staff := []struct {
		email string
		role  auth.Role
	}{
		{"admin@clinic.local", auth.RoleAdmin},
		{"reception@clinic.local", auth.RoleReceptionist},
	}

	for _, s := range staff {
		var id uuid.UUID
		err := pool.QueryRow(ctx, `
			INSERT INTO accounts (id, email, role, active, created_at, updated_at)
			VALUES ($1, $2, $3, true, now(), now())
			ON CONFLICT (email) DO UPDATE SET updated_at = accounts.updated_at
			RETURNING id
		`, uuid.New(), s.email, string(s.role)).Scan(&id)
		if err != nil {
			return err
		}
		logger.Info().Str("email", s.email).Str("role", string(s.role)).Str("account_id", id.String()).Msg("staff account ready")
	}
	return nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding doctors")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		if _, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, "Dr. "+gofakeit.Name(), spec); err != nil {
			return err
		}
		if err := insertAccount(ctx, tx, auth.Account{
			ID:       uuid.New(),
			Email:    gofakeit.Email(),
			Role:     auth.RoleDoctor,
			DoctorID: &id,
			Active:   true,
		}); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("doctors seeded")
	return nil
}

// seedPatients gives roughly half of the patients a login.
func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			email := gofakeit.Email()

			if _, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, gofakeit.Name(), email); err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			if !gofakeit.Bool() {
				continue
			}
			if err := insertAccount(ctx, tx, auth.Account{
				ID:        uuid.New(),
				Email:     email,
				Role:      auth.RolePatient,
				PatientID: &id,
				Active:    true,
			}); err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}

// insertAccount skips emails the faker has already handed out.
func insertAccount(ctx context.Context, tx pgx.Tx, a auth.Account) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO accounts (id, email, role, patient_id, doctor_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (email) DO NOTHING
	`, a.ID, a.Email, string(a.Role), a.PatientID, a.DoctorID, a.Active)
	return err
}
