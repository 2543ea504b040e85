// Package payment starts provider checkouts for appointments and merges
// provider confirmations into appointment state exactly once per session.
package payment

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/saifyeddes/GestionClinic-sub000/internal/appointment"
)

var (
	ErrNotPayable          = errors.New("appointment is not payable")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrIntentNotFound      = errors.New("payment intent not found")
	// ErrIntentNotPending means the intent was already claimed by another reconcile.
	ErrIntentNotPending = errors.New("payment intent is not pending")
)

type IntentStatus string

const (
	IntentPending    IntentStatus = "PENDING"
	IntentReconciled IntentStatus = "RECONCILED"
	IntentExpired    IntentStatus = "EXPIRED"
)

// PaymentIntent ties one provider session to one appointment. ID is the
// provider session id and doubles as the idempotency key.
type PaymentIntent struct {
	ID               string
	AppointmentID    uuid.UUID
	AmountMinorUnits int64
	Currency         string
	PayerEmail       string
	Status           IntentStatus
	RedirectURL      string
	CreatedAt        time.Time
	ReconciledAt     *time.Time
}

type Outcome string

const (
	OutcomeReconciled        Outcome = "reconciled"
	OutcomeAlreadyReconciled Outcome = "already_reconciled"
	OutcomeNotPaid           Outcome = "not_paid"
	OutcomeUnknown           Outcome = "unknown"
)

// Result is what a reconcile attempt reports. Appointment is the state after the
// attempt and is nil when the session is unknown.
type Result struct {
	Outcome     Outcome
	SessionID   string
	Appointment *appointment.Appointment
}

// SweepReport summarizes one ExpireStale pass.
type SweepReport struct {
	Checked    int
	Reconciled int
	Expired    int
	Failed     int
}
