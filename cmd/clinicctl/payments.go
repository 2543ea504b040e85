package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/saifyeddes/GestionClinic-sub000/internal/appointment"
	"github.com/saifyeddes/GestionClinic-sub000/internal/events"
	"github.com/saifyeddes/GestionClinic-sub000/internal/payment"
	redisclient "github.com/saifyeddes/GestionClinic-sub000/internal/redis"
)

// withEngine builds a payment engine against the live stores and runs fn.
func withEngine(ctx context.Context, fn func(*payment.Engine, *env) error) error {
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	rdb, err := redisclient.NewRedisClient(ctx, e.cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	provider, err := payment.NewProvider(e.cfg)
	if err != nil {
		return err
	}

	engine := payment.NewEngine(
		payment.NewPgRepository(e.pool),
		appointment.NewPgRepository(e.pool),
		provider,
		redisclient.NewRedisLocker(rdb, e.cfg.LockTTL),
		events.NewPgSink(e.pool),
		e.cfg,
		e.logger,
	)
	return fn(engine, e)
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [session-id]",
		Short: "Reconcile one checkout session against the payment provider",
		Long: `Reconcile one checkout session against the payment provider.

Safe to repeat: a session that was already applied reports already_reconciled
and changes nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(engine *payment.Engine, _ *env) error {
				res, err := engine.Reconcile(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				out := map[string]any{
					"outcome":    string(res.Outcome),
					"session_id": res.SessionID,
				}
				if res.Appointment != nil {
					out["appointment_id"] = res.Appointment.ID
					out["status"] = res.Appointment.Status
					out["payment_status"] = res.Appointment.PaymentStatus
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
}

func sweepCmd() *cobra.Command {
	var olderThan string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one pass of the stale intent sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(engine *payment.Engine, e *env) error {
				ttl := e.cfg.IntentTTL
				if olderThan != "" {
					d, err := parseDuration(olderThan)
					if err != nil {
						return err
					}
					ttl = d
				}

				report, err := engine.ExpireStale(cmd.Context(), ttl)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "checked=%d reconciled=%d expired=%d failed=%d\n",
					report.Checked, report.Reconciled, report.Expired, report.Failed)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "", "intent age cutoff (defaults to INTENT_TTL)")
	return cmd
}

func parseDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", d)
	}
	return d, nil
}
