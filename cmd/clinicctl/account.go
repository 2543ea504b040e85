package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/saifyeddes/GestionClinic-sub000/internal/auth"
)

func tokenCmd() *cobra.Command {
	var ttl string

	cmd := &cobra.Command{
		Use:   "token [account-id]",
		Short: "Mint a bearer token for an existing account",
		Long: `Mint a bearer token for an existing account.

The role and email are read from the account row, so the token carries what
the resolver will accept. The account must be active.

Examples:
  clinicctl token 4b0c1a9e-1f0e-4f5e-8d7e-2a0f3b2c9d11
  clinicctl token 4b0c1a9e-1f0e-4f5e-8d7e-2a0f3b2c9d11 --ttl 15m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id: %w", err)
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			acct, err := auth.NewPgAccountStore(e.pool).GetAccount(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !acct.Active {
				return fmt.Errorf("account %s is deactivated", id)
			}

			lifetime := e.cfg.TokenTTL
			if ttl != "" {
				if lifetime, err = parseDuration(ttl); err != nil {
					return err
				}
			}

			token, err := auth.NewJWTVerifier(e.cfg.JWTSecret, e.cfg.JWTIssuer).Issue(acct.ID, acct.Role, acct.Email, lifetime)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&ttl, "ttl", "", "token lifetime (defaults to TOKEN_TTL)")
	return cmd
}

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage login accounts",
	}
	cmd.AddCommand(accountCreateCmd())
	return cmd
}

func accountCreateCmd() *cobra.Command {
	var (
		email     string
		role      string
		patientID string
		doctorID  string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an active account",
		Long: `Create an active account.

PATIENT accounts must name their patient record and DOCTOR accounts their
doctor record.

Examples:
  clinicctl account create --email front@clinic.local --role RECEPTIONIST
  clinicctl account create --email jane@example.com --role PATIENT --patient-id <uuid>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := buildAccount(email, role, patientID, doctorID)
			if err != nil {
				return err
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := auth.NewPgAccountStore(e.pool).CreateAccount(cmd.Context(), acct); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), acct.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&role, "role", "", "ADMIN, DOCTOR, PATIENT or RECEPTIONIST")
	cmd.Flags().StringVar(&patientID, "patient-id", "", "patient record for PATIENT accounts")
	cmd.Flags().StringVar(&doctorID, "doctor-id", "", "doctor record for DOCTOR accounts")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}

// buildAccount validates the flag combination before anything touches the database.
func buildAccount(email, role, patientID, doctorID string) (auth.Account, error) {
	r, err := auth.ParseRole(role)
	if err != nil {
		return auth.Account{}, err
	}

	acct := auth.Account{ID: uuid.New(), Email: email, Role: r, Active: true}
	if email == "" {
		return acct, fmt.Errorf("email is required")
	}

	link := func(raw, flag string) (*uuid.UUID, error) {
		if raw == "" {
			return nil, fmt.Errorf("--%s is required for %s accounts", flag, r)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid --%s: %w", flag, err)
		}
		return &id, nil
	}

	switch r {
	case auth.RolePatient:
		acct.PatientID, err = link(patientID, "patient-id")
	case auth.RoleDoctor:
		acct.DoctorID, err = link(doctorID, "doctor-id")
	}
	return acct, err
}
