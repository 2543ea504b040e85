package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/saifyeddes/GestionClinic-sub000/internal/config"
	"github.com/saifyeddes/GestionClinic-sub000/internal/db"
	"github.com/saifyeddes/GestionClinic-sub000/internal/logging"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Operator tooling for the clinic appointment service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(accountCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(sweepCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env bundles what every database-backed command needs.
type env struct {
	cfg    config.Config
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.Env, cfg.LogLevel, "clinicctl")

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN, logger)
	if err != nil {
		return nil, err
	}

	return &env{cfg: cfg, pool: pool, logger: logger}, nil
}

func (e *env) Close() {
	e.pool.Close()
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := db.Migrate(cmd.Context(), e.pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}
