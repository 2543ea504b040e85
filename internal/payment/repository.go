package payment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/saifyeddes/GestionClinic-sub000/internal/appointment"
)

// Repository stores payment intents. Settle is the only write that touches an
// appointment, and it does so together with claiming the intent.
type Repository interface {
	CreateIntent(ctx context.Context, in PaymentIntent) error
	GetIntent(ctx context.Context, id string) (*PaymentIntent, error)
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]PaymentIntent, error)
	// MarkExpired moves a PENDING intent to EXPIRED, or returns ErrIntentNotPending.
	MarkExpired(ctx context.Context, id string) error

	// Settle claims the intent (anything but RECONCILED becomes RECONCILED) and,
	// when patch is non-nil, applies it to appt conditional on appt's status and
	// payment status. Either both happen or neither does. A lost claim is
	// ErrIntentNotPending; a lost appointment condition is appointment.ErrConflict.
	// It returns the appointment as stored afterwards.
	Settle(ctx context.Context, intentID string, appt appointment.Appointment, patch *appointment.Patch) (*appointment.Appointment, error)
}

// AppointmentReader is the slice of the appointment store the engine reads from.
type AppointmentReader interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}
